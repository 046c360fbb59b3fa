// selection.go
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
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/meddb/internal/tree"
	"github.com/localnerve/meddb/internal/types"
	"go.uber.org/zap"
)

// SelectionRequest carries the client-held state and the checked set the tree widget reported.
// Reported may be a single id or an array.
type SelectionRequest struct {
	State    tree.Selection               `json:"state"`
	Reported types.FlexList[types.FlexID] `json:"reported" swaggertype:"array,integer"`
}

// ApplySelection handles POST /api/selection
// @Summary Apply a tree selection report
// @Description Computes the next single-select state. Nothing is kept on the server.
// @Tags Committees
// @Accept json
// @Produce json
// @Param request body SelectionRequest true "State and report"
// @Success 200 {object} tree.Transition
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /selection [post]
func (h *CommitteeHandler) ApplySelection(c *fiber.Ctx) error {
	var req SelectionRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err, "applySelection")
	}

	p, err := h.projection()
	if err != nil {
		return respondError(c, err, "applySelection")
	}

	machine := tree.Machine{Parents: p.Parents, DefaultExpanded: []uint{}}
	if _, ok := p.Nodes[h.TopCommitteeID]; ok {
		machine.DefaultExpanded = []uint{h.TopCommitteeID}
	}

	state := req.State
	if state.Checked == nil {
		state.Checked = []uint{}
	}
	if state.Expanded == nil {
		state.Expanded = []uint{}
	}

	transition := machine.Apply(state, types.IDs(req.Reported))
	if transition.Warning != "" {
		h.Log.Warn("selection report cleared",
			zap.Uints("reported", types.IDs(req.Reported)),
			zap.Uints("previous", state.Checked))
	}
	return c.Status(fiber.StatusOK).JSON(transition)
}
