// common.go
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
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/meddb/internal/types"
	"github.com/localnerve/meddb/internal/utils"
	"gorm.io/gorm"
)

// noneValue selects persons without a union in the unions filter.
const noneValue = "none"

// parseQueryList extracts the values of key from the query string,
// supporting both repeated keys and comma-separated values. Order is kept, duplicates dropped.
func parseQueryList(c *fiber.Ctx, key string) []string {
	seen := make(map[string]struct{})
	var out []string

	args := c.Context().QueryArgs()
	for k, value := range args.All() {
		if string(k) != key {
			continue
		}
		for _, v := range types.SplitList(string(value)) {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// parseIDs converts query values to ids. "none" is reported separately when allowNone is set.
func parseIDs(key string, values []string, allowNone bool) (ids []uint, none bool, err error) {
	for _, v := range values {
		if allowNone && strings.EqualFold(v, noneValue) {
			none = true
			continue
		}
		id, perr := strconv.ParseUint(v, 10, 64)
		if perr != nil || id == 0 {
			return nil, false, fmt.Errorf("%s: invalid id %q: %w", key, v, types.ErrValidation)
		}
		ids = append(ids, uint(id))
	}
	return ids, none, nil
}

// paramID reads a positive numeric route parameter.
func paramID(c *fiber.Ctx, name string) (uint, error) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%s: invalid id %q: %w", name, raw, types.ErrValidation)
	}
	return uint(id), nil
}

// parseBody decodes a JSON request body, reporting malformed input as a validation error.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("invalid request body: %v: %w", err, types.ErrValidation)
	}
	return nil
}

// requireName trims name and rejects an empty one.
func requireName(field, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%s is required: %w", field, types.ErrValidation)
	}
	return name, nil
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, types.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, types.ErrCycle), errors.Is(err, types.ErrInUse), errors.Is(err, types.ErrProtected),
		errors.Is(err, types.ErrDuplicate), errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated):
		return fiber.StatusConflict
	case types.IsExternal(err):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// respondError renders err in the standard error body.
func respondError(c *fiber.Ctx, err error, errorType string) error {
	return utils.ErrorResponse(c, err.Error(), statusFor(err), errorType)
}

// ErrorHandler is the fiber error handler. It renders middleware and fiber errors in the standard body.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	message := err.Error()
	errorType := "unknown"

	var fe *fiber.Error
	var ce *types.CustomError
	switch {
	case errors.As(err, &ce):
		code = ce.Code
		message = ce.Message
		errorType = ce.Type
	case errors.As(err, &fe):
		code = fe.Code
		message = fe.Message
	}

	return utils.ErrorResponse(c, message, code, errorType)
}
