// person_service.go
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

package services

import (
	"errors"
	"strings"

	"github.com/localnerve/meddb/internal/models"
	"github.com/localnerve/meddb/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/hints"
)

// PersonInput is the upsert payload keyed by Email.
// Nil Organization, Username and UnionID leave the stored value unchanged.
// Nil FoundInSystem means true.
type PersonInput struct {
	Name          string
	Email         string
	Organization  *string
	Username      *string
	UnionID       *uint
	FoundInSystem *bool
}

// PersonFilter narrows GetPersonsByRolesAndTopCommittees. Empty fields do not filter.
// RoleIDs and TopCommitteeIDs must hold on the same membership.
type PersonFilter struct {
	RoleIDs         []uint
	TopCommitteeIDs []uint
	UnionIDs        []uint
	IncludeNoUnion  bool
	InSystem        *bool
}

// DirectoryMatch is the outcome of one reconciliation step for a person.
// Nil fields are left unchanged.
type DirectoryMatch struct {
	Email         *string
	Organization  *string
	FoundInSystem bool
}

// AddOrUpdatePerson inserts a person or merges into the one with the same e-mail
func AddOrUpdatePerson(db *gorm.DB, input PersonInput) (*models.Person, error) {
	var person models.Person
	err := db.Transaction(func(tx *gorm.DB) error {
		return upsertPerson(tx, input, &person)
	})
	if err != nil {
		return nil, err
	}
	return &person, nil
}

func upsertPerson(tx *gorm.DB, input PersonInput, person *models.Person) error {
	found := true
	if input.FoundInSystem != nil {
		found = *input.FoundInSystem
	}

	if input.UnionID != nil {
		if err := requireRow(tx, &models.Union{}, *input.UnionID, "union"); err != nil {
			return err
		}
	}

	err := tx.Where("email = ?", input.Email).First(person).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		*person = models.Person{
			Name:          input.Name,
			Email:         input.Email,
			Organization:  input.Organization,
			Username:      input.Username,
			UnionID:       input.UnionID,
			FoundInSystem: found,
		}
		return tx.Create(person).Error
	case err != nil:
		return err
	}

	person.Name = input.Name
	person.FoundInSystem = found
	if input.Organization != nil {
		person.Organization = input.Organization
	}
	if input.Username != nil {
		person.Username = input.Username
	}
	if input.UnionID != nil {
		person.UnionID = input.UnionID
	}
	return tx.Omit("Union", "Memberships").Save(person).Error
}

// GetPersonByID returns one person with union and memberships loaded
func GetPersonByID(db *gorm.DB, id uint) (*models.Person, error) {
	var person models.Person
	err := db.Preload("Union").
		Preload("Memberships.Role").
		Preload("Memberships.Committee").
		First(&person, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFoundf("person %d", id)
		}
		return nil, err
	}
	return &person, nil
}

// GetPersonByEmail finds a person by exact e-mail
func GetPersonByEmail(db *gorm.DB, email string) (*models.Person, error) {
	var person models.Person
	if err := db.Where("email = ?", email).First(&person).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFoundf("person %q", email)
		}
		return nil, err
	}
	return &person, nil
}

// ListPersons returns every person in id order. Used by the batch jobs.
func ListPersons(db *gorm.DB) ([]models.Person, error) {
	var persons []models.Person
	err := db.Session(&gorm.Session{Logger: db.Logger.LogMode(logger.Silent)}).
		Clauses(hints.Comment("select", "meddb:batch")).
		Order("id").
		Find(&persons).Error
	return persons, err
}

// GetPersonsNotInSystem lists persons the last reconciliation could not confirm
func GetPersonsNotInSystem(db *gorm.DB) ([]models.Person, error) {
	notInSystem := false
	return GetPersonsByRolesAndTopCommittees(db, PersonFilter{InSystem: &notInSystem})
}

// GetPersonsByRoles lists persons holding any of the roles in any committee
func GetPersonsByRoles(db *gorm.DB, roleIDs []uint) ([]models.Person, error) {
	return GetPersonsByRolesAndTopCommittees(db, PersonFilter{RoleIDs: roleIDs})
}

// GetPersonsByRolesAndTopCommittees applies every non-empty filter with AND.
// Committee filtering includes all committees below the given top ids.
func GetPersonsByRolesAndTopCommittees(db *gorm.DB, filter PersonFilter) ([]models.Person, error) {
	query := db.Model(&models.Person{})

	if len(filter.RoleIDs) > 0 || len(filter.TopCommitteeIDs) > 0 {
		memberships := db.Model(&models.CommitteeMembership{}).Select("person_id")
		if len(filter.RoleIDs) > 0 {
			memberships = memberships.Where("role_id IN ?", filter.RoleIDs)
		}
		if len(filter.TopCommitteeIDs) > 0 {
			committeeIDs, err := DescendantIDs(db, filter.TopCommitteeIDs)
			if err != nil {
				return nil, err
			}
			memberships = memberships.Where("committee_id IN ?", committeeIDs)
		}
		query = query.Where("id IN (?)", memberships)
	}

	switch {
	case len(filter.UnionIDs) > 0 && filter.IncludeNoUnion:
		query = query.Where(db.Where("union_id IN ?", filter.UnionIDs).Or("union_id IS NULL"))
	case len(filter.UnionIDs) > 0:
		query = query.Where("union_id IN ?", filter.UnionIDs)
	case filter.IncludeNoUnion:
		query = query.Where("union_id IS NULL")
	}

	if filter.InSystem != nil {
		query = query.Where("found_in_system = ?", *filter.InSystem)
	}

	var persons []models.Person
	err := query.
		Preload("Union").
		Preload("Memberships.Role").
		Preload("Memberships.Committee").
		Order("name").
		Order("id").
		Find(&persons).Error
	return persons, err
}

// ApplyDirectoryMatch stores a reconciliation outcome for one person and commits it
func ApplyDirectoryMatch(db *gorm.DB, personID uint, match DirectoryMatch) error {
	changes := map[string]interface{}{"found_in_system": match.FoundInSystem}
	if match.Email != nil {
		changes["email"] = *match.Email
	}
	if match.Organization != nil {
		changes["organization"] = *match.Organization
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &models.Person{}, personID, "person"); err != nil {
			return err
		}
		return tx.Model(&models.Person{}).Where("id = ?", personID).Updates(changes).Error
	})
}

// FixEmailLikeNames replaces names that contain '@' with the local part of that name,
// dots turned into spaces. The stored e-mail is not consulted. It returns the number of
// persons changed.
func FixEmailLikeNames(db *gorm.DB) (int, error) {
	var persons []models.Person
	if err := db.Where("name LIKE ?", "%@%").Find(&persons).Error; err != nil {
		return 0, err
	}

	fixed := 0
	for _, person := range persons {
		name := NameFromEmail(person.Name)
		if name == "" || name == person.Name {
			continue
		}
		if err := db.Model(&models.Person{}).
			Where("id = ?", person.ID).
			Update("name", name).Error; err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, nil
}

// NameFromEmail turns "jane.doe@org.dk" into "jane doe"
func NameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return strings.TrimSpace(strings.ReplaceAll(local, ".", " "))
}

// deleteOrphanPersons removes the candidates that no longer hold any membership
func deleteOrphanPersons(tx *gorm.DB, candidates []uint) error {
	if len(candidates) == 0 {
		return nil
	}
	return tx.Where("id IN ?", candidates).
		Where("id NOT IN (?)", tx.Model(&models.CommitteeMembership{}).Select("person_id")).
		Delete(&models.Person{}).Error
}
