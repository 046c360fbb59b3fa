package handlers

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/meddb/internal/directory"
	"github.com/localnerve/meddb/internal/types"
)

// DirectoryHandler searches the external person directories
type DirectoryHandler struct {
	Searcher directory.Searcher
}

// EmailExistsResponse is the answer of GET /api/directory/exists
type EmailExistsResponse struct {
	Email  string `json:"email"`
	Exists bool   `json:"exists"`
}

// Search handles GET /api/directory/search
// @Summary Search the person directories
// @Description Merged results from the configured directories, at most 10 per directory.
// @Description At least one of name, email or username is required.
// @Tags Directory
// @Produce json
// @Param name query string false "Name contains"
// @Param email query string false "E-mail contains"
// @Param username query string false "Exact username"
// @Success 200 {array} directory.PersonRecord
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 502 {object} utils.ErrorResponseStruct
// @Router /directory/search [get]
func (h *DirectoryHandler) Search(c *fiber.Ctx) error {
	var q directory.Query
	if err := c.QueryParser(&q); err != nil {
		return respondError(c, fmt.Errorf("invalid query: %v: %w", err, types.ErrValidation), "directorySearch")
	}
	records, err := h.Searcher.Search(c.UserContext(), q)
	if err != nil {
		return respondError(c, err, "directorySearch")
	}
	if records == nil {
		records = []directory.PersonRecord{}
	}
	return c.Status(fiber.StatusOK).JSON(records)
}

// EmailExists handles GET /api/directory/exists?email=
// @Summary Check that an e-mail is known to a directory
// @Tags Directory
// @Produce json
// @Param email query string true "E-mail"
// @Success 200 {object} EmailExistsResponse
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 502 {object} utils.ErrorResponseStruct
// @Router /directory/exists [get]
func (h *DirectoryHandler) EmailExists(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		return respondError(c, fmt.Errorf("email is required: %w", types.ErrValidation), "directoryEmailExists")
	}
	exists, err := directory.CheckEmailExists(c.UserContext(), h.Searcher, email)
	if err != nil {
		return respondError(c, err, "directoryEmailExists")
	}
	return c.Status(fiber.StatusOK).JSON(EmailExistsResponse{Email: email, Exists: exists})
}
