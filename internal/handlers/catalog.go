package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/meddb/internal/services"
	"github.com/localnerve/meddb/internal/types"
	"github.com/localnerve/meddb/internal/utils"
	"gorm.io/gorm"
)

// CatalogHandler handles the role, union and committee type lookup tables
type CatalogHandler struct {
	DB *gorm.DB
}

// NameRequest is the body for creating or renaming a role or committee type
type NameRequest struct {
	Name string `json:"name"`
}

// UnionRequest is the body for creating or updating a union
type UnionRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// GetCommitteeTypes handles GET /api/committee-types
// @Summary List committee types
// @Description Protected types are only listed with include_protected=true
// @Tags Catalog
// @Produce json
// @Param include_protected query bool false "Include protected types"
// @Success 200 {array} models.CommitteeType
// @Router /committee-types [get]
func (h *CatalogHandler) GetCommitteeTypes(c *fiber.Ctx) error {
	list, err := services.GetAllCommitteeTypes(h.DB, c.QueryBool("include_protected", false))
	if err != nil {
		return respondError(c, err, "getCommitteeTypes")
	}
	return c.Status(fiber.StatusOK).JSON(list)
}

// CreateCommitteeType handles POST /api/committee-types
// @Summary Create a committee type
// @Tags Catalog
// @Accept json
// @Produce json
// @Param request body NameRequest true "Committee type"
// @Success 201 {object} models.CommitteeType
// @Failure 400 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /committee-types [post]
func (h *CatalogHandler) CreateCommitteeType(c *fiber.Ctx) error {
	name, err := bodyName(c)
	if err != nil {
		return respondError(c, err, "createCommitteeType")
	}
	ct, err := services.CreateCommitteeType(h.DB, name)
	if err != nil {
		return respondError(c, err, "createCommitteeType")
	}
	return c.Status(fiber.StatusCreated).JSON(ct)
}

// UpdateCommitteeType handles PUT /api/committee-types/:id
// @Summary Rename a committee type
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path int true "Committee type ID"
// @Param request body NameRequest true "Committee type"
// @Success 200 {object} models.CommitteeType
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /committee-types/{id} [put]
func (h *CatalogHandler) UpdateCommitteeType(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err, "updateCommitteeType")
	}
	name, err := bodyName(c)
	if err != nil {
		return respondError(c, err, "updateCommitteeType")
	}
	ct, err := services.UpdateCommitteeType(h.DB, id, name)
	if err != nil {
		return respondError(c, err, "updateCommitteeType")
	}
	return c.Status(fiber.StatusOK).JSON(ct)
}

// DeleteCommitteeType handles DELETE /api/committee-types/:id
// @Summary Delete a committee type
// @Description Protected types and types still used by a committee cannot be deleted
// @Tags Catalog
// @Produce json
// @Param id path int true "Committee type ID"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /committee-types/{id} [delete]
func (h *CatalogHandler) DeleteCommitteeType(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err, "deleteCommitteeType")
	}
	ct, err := services.GetCommitteeTypeByID(h.DB, id)
	if err != nil {
		return respondError(c, err, "deleteCommitteeType")
	}
	if ct.IsProtected {
		return respondError(c, fmt.Errorf("committee type %q: %w", ct.Name, types.ErrProtected), "deleteCommitteeType")
	}
	if err := services.DeleteCommitteeType(h.DB, id); err != nil {
		return respondError(c, err, "deleteCommitteeType")
	}
	return utils.MutationSuccessResponse(c, 1)
}

// GetRoles handles GET /api/roles
// @Summary List roles
// @Tags Catalog
// @Produce json
// @Success 200 {array} models.Role
// @Router /roles [get]
func (h *CatalogHandler) GetRoles(c *fiber.Ctx) error {
	list, err := services.GetAllRoles(h.DB)
	if err != nil {
		return respondError(c, err, "getRoles")
	}
	return c.Status(fiber.StatusOK).JSON(list)
}

// CreateRole handles POST /api/roles
// @Summary Create a role
// @Tags Catalog
// @Accept json
// @Produce json
// @Param request body NameRequest true "Role"
// @Success 201 {object} models.Role
// @Security CookieAuth
// @Router /roles [post]
func (h *CatalogHandler) CreateRole(c *fiber.Ctx) error {
	name, err := bodyName(c)
	if err != nil {
		return respondError(c, err, "createRole")
	}
	role, err := services.CreateRole(h.DB, name)
	if err != nil {
		return respondError(c, err, "createRole")
	}
	return c.Status(fiber.StatusCreated).JSON(role)
}

// UpdateRole handles PUT /api/roles/:id
// @Summary Rename a role
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path int true "Role ID"
// @Param request body NameRequest true "Role"
// @Success 200 {object} models.Role
// @Security CookieAuth
// @Router /roles/{id} [put]
func (h *CatalogHandler) UpdateRole(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err, "updateRole")
	}
	name, err := bodyName(c)
	if err != nil {
		return respondError(c, err, "updateRole")
	}
	role, err := services.UpdateRole(h.DB, id, name)
	if err != nil {
		return respondError(c, err, "updateRole")
	}
	return c.Status(fiber.StatusOK).JSON(role)
}

// DeleteRole handles DELETE /api/roles/:id
// @Summary Delete a role
// @Description Roles still held by a member cannot be deleted
// @Tags Catalog
// @Produce json
// @Param id path int true "Role ID"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /roles/{id} [delete]
func (h *CatalogHandler) DeleteRole(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err, "deleteRole")
	}
	if err := services.DeleteRole(h.DB, id); err != nil {
		return respondError(c, err, "deleteRole")
	}
	return utils.MutationSuccessResponse(c, 1)
}

// GetUnions handles GET /api/unions
// @Summary List unions
// @Tags Catalog
// @Produce json
// @Success 200 {array} models.Union
// @Router /unions [get]
func (h *CatalogHandler) GetUnions(c *fiber.Ctx) error {
	list, err := services.GetAllUnions(h.DB)
	if err != nil {
		return respondError(c, err, "getUnions")
	}
	return c.Status(fiber.StatusOK).JSON(list)
}

// CreateUnion handles POST /api/unions
// @Summary Create a union
// @Tags Catalog
// @Accept json
// @Produce json
// @Param request body UnionRequest true "Union"
// @Success 201 {object} models.Union
// @Security CookieAuth
// @Router /unions [post]
func (h *CatalogHandler) CreateUnion(c *fiber.Ctx) error {
	var req UnionRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err, "createUnion")
	}
	name, err := requireName("name", req.Name)
	if err != nil {
		return respondError(c, err, "createUnion")
	}
	union, err := services.CreateUnion(h.DB, name, req.Description)
	if err != nil {
		return respondError(c, err, "createUnion")
	}
	return c.Status(fiber.StatusCreated).JSON(union)
}

// UpdateUnion handles PUT /api/unions/:id
// @Summary Update a union
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path int true "Union ID"
// @Param request body UnionRequest true "Union"
// @Success 200 {object} models.Union
// @Security CookieAuth
// @Router /unions/{id} [put]
func (h *CatalogHandler) UpdateUnion(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err, "updateUnion")
	}
	var req UnionRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err, "updateUnion")
	}
	name, err := requireName("name", req.Name)
	if err != nil {
		return respondError(c, err, "updateUnion")
	}
	union, err := services.UpdateUnion(h.DB, id, name, req.Description)
	if err != nil {
		return respondError(c, err, "updateUnion")
	}
	return c.Status(fiber.StatusOK).JSON(union)
}

// DeleteUnion handles DELETE /api/unions/:id
// @Summary Delete a union
// @Description Members of the union are kept without a union
// @Tags Catalog
// @Produce json
// @Param id path int true "Union ID"
// @Success 200 {object} utils.SuccessResponseStruct
// @Security CookieAuth
// @Router /unions/{id} [delete]
func (h *CatalogHandler) DeleteUnion(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err, "deleteUnion")
	}
	if err := services.DeleteUnion(h.DB, id); err != nil {
		return respondError(c, err, "deleteUnion")
	}
	return utils.MutationSuccessResponse(c, 1)
}

func bodyName(c *fiber.Ctx) (string, error) {
	var req NameRequest
	if err := parseBody(c, &req); err != nil {
		return "", err
	}
	return requireName("name", req.Name)
}
