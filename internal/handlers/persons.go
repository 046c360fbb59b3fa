package handlers

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/meddb/internal/models"
	"github.com/localnerve/meddb/internal/services"
	"github.com/localnerve/meddb/internal/types"
	"gorm.io/gorm"
)

// PersonHandler handles person listings
type PersonHandler struct {
	DB *gorm.DB
}

// GetPersons handles GET /api/persons
// @Summary List persons
// @Description All filters are combined with AND. committees includes every committee below the given ids.
// @Description unions may contain "none" for persons without a union.
// @Tags Persons
// @Produce json
// @Param roles query string false "Role ids, comma separated or repeated"
// @Param committees query string false "Top committee ids, comma separated or repeated"
// @Param unions query string false "Union ids or none, comma separated or repeated"
// @Param in_system query bool false "Filter on found in system"
// @Success 200 {array} models.Person
// @Failure 400 {object} utils.ErrorResponseStruct
// @Router /persons [get]
func (h *PersonHandler) GetPersons(c *fiber.Ctx) error {
	filter, err := personFilter(c)
	if err != nil {
		return respondError(c, err, "getPersons")
	}
	persons, err := services.GetPersonsByRolesAndTopCommittees(h.DB, filter)
	if err != nil {
		return respondError(c, err, "getPersons")
	}
	return c.Status(fiber.StatusOK).JSON(nonNil(persons))
}

// GetPersonsNotInSystem handles GET /api/persons/not-in-system
// @Summary List persons the directories could not confirm
// @Tags Persons
// @Produce json
// @Success 200 {array} models.Person
// @Router /persons/not-in-system [get]
func (h *PersonHandler) GetPersonsNotInSystem(c *fiber.Ctx) error {
	persons, err := services.GetPersonsNotInSystem(h.DB)
	if err != nil {
		return respondError(c, err, "getPersonsNotInSystem")
	}
	return c.Status(fiber.StatusOK).JSON(nonNil(persons))
}

// GetPerson handles GET /api/persons/:id
// @Summary Get a person with memberships
// @Tags Persons
// @Produce json
// @Param id path int true "Person ID"
// @Success 200 {object} models.Person
// @Failure 404 {object} utils.ErrorResponseStruct
// @Router /persons/{id} [get]
func (h *PersonHandler) GetPerson(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err, "getPerson")
	}
	person, err := services.GetPersonByID(h.DB, id)
	if err != nil {
		return respondError(c, err, "getPerson")
	}
	return c.Status(fiber.StatusOK).JSON(person)
}

func personFilter(c *fiber.Ctx) (services.PersonFilter, error) {
	var filter services.PersonFilter
	var err error

	if filter.RoleIDs, _, err = parseIDs("roles", parseQueryList(c, "roles"), false); err != nil {
		return filter, err
	}
	if filter.TopCommitteeIDs, _, err = parseIDs("committees", parseQueryList(c, "committees"), false); err != nil {
		return filter, err
	}
	if filter.UnionIDs, filter.IncludeNoUnion, err = parseIDs("unions", parseQueryList(c, "unions"), true); err != nil {
		return filter, err
	}

	if raw := c.Query("in_system"); raw != "" {
		v, perr := strconv.ParseBool(raw)
		if perr != nil {
			return filter, fmt.Errorf("in_system: invalid value %q: %w", raw, types.ErrValidation)
		}
		filter.InSystem = &v
	}
	return filter, nil
}

func nonNil(persons []models.Person) []models.Person {
	if persons == nil {
		return []models.Person{}
	}
	return persons
}
