// committees.go
//
// MED-Database committee and member registry service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of meddb.
// meddb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// meddb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with meddb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package handlers

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/meddb/internal/models"
	"github.com/localnerve/meddb/internal/services"
	"github.com/localnerve/meddb/internal/tree"
	"github.com/localnerve/meddb/internal/types"
	"github.com/localnerve/meddb/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CommitteeHandler handles committee, tree and member routes
type CommitteeHandler struct {
	DB            *gorm.DB
	Log           *zap.Logger
	DropOrphans   bool
	PriorityRoles []string
	// TopCommitteeID is expanded when nothing is selected.
	TopCommitteeID uint
}

// CreateCommitteeRequest is the body of POST /api/committees
type CreateCommitteeRequest struct {
	Name     string        `json:"name"`
	TypeID   types.FlexID  `json:"typeId"`
	ParentID *types.FlexID `json:"parentId"`
}

// UpdateCommitteeRequest is the body of PATCH /api/committees/:id.
// An explicit null parentId moves the committee to the top level.
type UpdateCommitteeRequest struct {
	Name     *string          `json:"name"`
	TypeID   *types.FlexID    `json:"typeId"`
	ParentID types.OptionalID `json:"parentId" swaggertype:"integer"`
}

// AddMemberRequest is the body of POST /api/committees/:id/members
type AddMemberRequest struct {
	Name          string        `json:"name"`
	Email         string        `json:"email"`
	Organization  *string       `json:"organization"`
	Username      *string       `json:"username"`
	UnionID       *types.FlexID `json:"unionId"`
	FoundInSystem *bool         `json:"foundInSystem"`
	RoleID        types.FlexID  `json:"roleId"`
}

// MembersResponse lists the members of one committee
type MembersResponse struct {
	Members []models.CommitteeMembership `json:"members"`
	Mailto  []string                     `json:"mailto"`
}

// projection loads every committee and builds the display tree
func (h *CommitteeHandler) projection() (*tree.Projection, error) {
	committees, err := services.GetCommittees(h.DB)
	if err != nil {
		return nil, err
	}
	return tree.Build(committees, tree.Options{DropOrphans: h.DropOrphans, Log: h.Log}), nil
}

// GetTree handles GET /api/committees/tree
// @Summary Get the committee tree
// @Description Get all committees as a sorted tree with parent and node lookups
// @Tags Committees
// @Produce json
// @Success 200 {object} tree.Projection
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /committees/tree [get]
func (h *CommitteeHandler) GetTree(c *fiber.Ctx) error {
	p, err := h.projection()
	if err != nil {
		return respondError(c, err, "getCommitteeTree")
	}
	return c.Status(fiber.StatusOK).JSON(p)
}

// SearchTree handles GET /api/committees/search?q=
// @Summary Search committees
// @Description Case-insensitive label search; every hit carries the path to expand
// @Tags Committees
// @Produce json
// @Param q query string true "Search text"
// @Success 200 {array} tree.Hit
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /committees/search [get]
func (h *CommitteeHandler) SearchTree(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		return respondError(c, fmt.Errorf("q is required: %w", types.ErrValidation), "searchCommittees")
	}
	p, err := h.projection()
	if err != nil {
		return respondError(c, err, "searchCommittees")
	}
	hits := p.Search(q)
	if hits == nil {
		hits = []tree.Hit{}
	}
	return c.Status(fiber.StatusOK).JSON(hits)
}

// GetCommittee handles GET /api/committees/:id
// @Summary Get a committee
// @Tags Committees
// @Produce json
// @Param id path int true "Committee ID"
// @Success 200 {object} models.Committee
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /committees/{id} [get]
func (h *CommitteeHandler) GetCommittee(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err, "getCommittee")
	}
	committee, err := services.GetCommitteeByID(h.DB, id)
	if err != nil {
		return respondError(c, err, "getCommittee")
	}
	return c.Status(fiber.StatusOK).JSON(committee)
}

// GetChildren handles GET /api/committees/:id/children
// @Summary Get the direct children of a committee
// @Tags Committees
// @Produce json
// @Param id path int true "Committee ID"
// @Success 200 {array} models.Committee
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /committees/{id}/children [get]
func (h *CommitteeHandler) GetChildren(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err, "getCommitteeChildren")
	}
	if _, err := services.GetCommitteeByID(h.DB, id); err != nil {
		return respondError(c, err, "getCommitteeChildren")
	}
	children, err := services.GetCommitteesByParentID(h.DB, id)
	if err != nil {
		return respondError(c, err, "getCommitteeChildren")
	}
	return c.Status(fiber.StatusOK).JSON(children)
}

// CreateCommittee handles POST /api/committees
// @Summary Create a committee
// @Tags Committees
// @Accept json
// @Produce json
// @Param request body CreateCommitteeRequest true "Committee"
// @Success 201 {object} models.Committee
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 403 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /committees [post]
func (h *CommitteeHandler) CreateCommittee(c *fiber.Ctx) error {
	var req CreateCommitteeRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err, "createCommittee")
	}
	name, err := requireName("name", req.Name)
	if err != nil {
		return respondError(c, err, "createCommittee")
	}

	input := services.CommitteeInput{Name: name, TypeID: req.TypeID.Uint()}
	if req.ParentID != nil {
		parentID := req.ParentID.Uint()
		input.ParentID = &parentID
	}

	committee, err := services.CreateCommittee(h.DB, input)
	if err != nil {
		return respondError(c, err, "createCommittee")
	}
	return c.Status(fiber.StatusCreated).JSON(committee)
}

// UpdateCommittee handles PATCH /api/committees/:id
// @Summary Update a committee
// @Description Partial update. parentId null moves the committee to the top level, an absent parentId leaves it.
// @Tags Committees
// @Accept json
// @Produce json
// @Param id path int true "Committee ID"
// @Param request body UpdateCommitteeRequest true "Changes"
// @Success 200 {object} models.Committee
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /committees/{id} [patch]
func (h *CommitteeHandler) UpdateCommittee(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err, "updateCommittee")
	}
	var req UpdateCommitteeRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err, "updateCommittee")
	}

	update := services.CommitteeUpdate{Parent: req.ParentID}
	if req.Name != nil {
		name, err := requireName("name", *req.Name)
		if err != nil {
			return respondError(c, err, "updateCommittee")
		}
		update.Name = &name
	}
	if req.TypeID != nil {
		typeID := req.TypeID.Uint()
		update.TypeID = &typeID
	}

	committee, err := services.UpdateCommittee(h.DB, id, update)
	if err != nil {
		return respondError(c, err, "updateCommittee")
	}
	return c.Status(fiber.StatusOK).JSON(committee)
}

// DeleteCommittee handles DELETE /api/committees/:id
// @Summary Delete a committee
// @Description Deletes the committee with its memberships and persons left without any membership. Children move to the top level.
// @Tags Committees
// @Produce json
// @Param id path int true "Committee ID"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /committees/{id} [delete]
func (h *CommitteeHandler) DeleteCommittee(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err, "deleteCommittee")
	}
	if err := services.DeleteCommittee(h.DB, id); err != nil {
		return respondError(c, err, "deleteCommittee")
	}
	h.Log.Info("committee deleted", zap.Uint("committee_id", id))
	return utils.MutationSuccessResponse(c, 1)
}

// GetMembers handles GET /api/committees/:id/members
// @Summary Get the members of a committee
// @Description Members of exactly this committee ordered by role priority, with a mailto list
// @Tags Members
// @Produce json
// @Param id path int true "Committee ID"
// @Success 200 {object} MembersResponse
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /committees/{id}/members [get]
func (h *CommitteeHandler) GetMembers(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err, "getCommitteeMembers")
	}
	members, err := services.GetCommitteeMembers(h.DB, id)
	if err != nil {
		return respondError(c, err, "getCommitteeMembers")
	}
	services.SortMembers(members, h.PriorityRoles)

	resp := MembersResponse{Members: members, Mailto: services.MailtoList(members)}
	if resp.Members == nil {
		resp.Members = []models.CommitteeMembership{}
	}
	if resp.Mailto == nil {
		resp.Mailto = []string{}
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// AddMember handles POST /api/committees/:id/members
// @Summary Add a member
// @Description Upserts the person by e-mail and adds the membership. Adding an existing membership is not an error.
// @Tags Members
// @Accept json
// @Produce json
// @Param id path int true "Committee ID"
// @Param request body AddMemberRequest true "Member"
// @Success 201 {object} models.CommitteeMembership
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /committees/{id}/members [post]
func (h *CommitteeHandler) AddMember(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err, "addCommitteeMember")
	}
	var req AddMemberRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err, "addCommitteeMember")
	}
	name, err := requireName("name", req.Name)
	if err != nil {
		return respondError(c, err, "addCommitteeMember")
	}
	email, err := requireName("email", req.Email)
	if err != nil {
		return respondError(c, err, "addCommitteeMember")
	}

	member := services.NewMember{
		Person: services.PersonInput{
			Name:          name,
			Email:         email,
			Organization:  req.Organization,
			Username:      req.Username,
			FoundInSystem: req.FoundInSystem,
		},
		RoleID: req.RoleID.Uint(),
	}
	if req.UnionID != nil {
		unionID := req.UnionID.Uint()
		member.Person.UnionID = &unionID
	}

	membership, err := services.AddCommitteeMember(h.DB, id, member)
	if err != nil {
		return respondError(c, err, "addCommitteeMember")
	}
	return c.Status(fiber.StatusCreated).JSON(membership)
}

// DeleteMember handles DELETE /api/committees/:id/members/:personId/:roleId
// @Summary Remove a member
// @Description Removes one membership; the person is deleted when it was their last
// @Tags Members
// @Produce json
// @Param id path int true "Committee ID"
// @Param personId path int true "Person ID"
// @Param roleId path int true "Role ID"
// @Success 200 {object} utils.SuccessResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /committees/{id}/members/{personId}/{roleId} [delete]
func (h *CommitteeHandler) DeleteMember(c *fiber.Ctx) error {
	var ids [3]uint
	for i, name := range []string{"id", "personId", "roleId"} {
		id, err := paramID(c, name)
		if err != nil {
			return respondError(c, err, "deleteCommitteeMember")
		}
		ids[i] = id
	}
	if err := services.DeleteCommitteeMember(h.DB, ids[0], ids[1], ids[2]); err != nil {
		return respondError(c, err, "deleteCommitteeMember")
	}
	return utils.MutationSuccessResponse(c, 1)
}
