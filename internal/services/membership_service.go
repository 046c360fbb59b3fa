// membership_service.go
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
	"sort"
	"strings"

	"github.com/localnerve/meddb/internal/models"
	"github.com/localnerve/meddb/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NewMember is the add-member flow payload: upsert the person, then create the membership
type NewMember struct {
	Person PersonInput
	RoleID uint
}

// CreateCommitteeMember inserts a membership. An existing identical membership is not an error.
func CreateCommitteeMember(db *gorm.DB, personID, committeeID, roleID uint) (*models.CommitteeMembership, error) {
	var membership models.CommitteeMembership
	err := db.Transaction(func(tx *gorm.DB) error {
		return createMembership(tx, personID, committeeID, roleID, &membership)
	})
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// AddCommitteeMember upserts the person by e-mail and adds the membership in one transaction
func AddCommitteeMember(db *gorm.DB, committeeID uint, member NewMember) (*models.CommitteeMembership, error) {
	var membership models.CommitteeMembership
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := requireCommittee(tx, committeeID); err != nil {
			return err
		}
		if err := requireRow(tx, &models.Role{}, member.RoleID, "role"); err != nil {
			return err
		}
		var person models.Person
		if err := upsertPerson(tx, member.Person, &person); err != nil {
			return err
		}
		return createMembership(tx, person.ID, committeeID, member.RoleID, &membership)
	})
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func createMembership(tx *gorm.DB, personID, committeeID, roleID uint, membership *models.CommitteeMembership) error {
	if err := requireRow(tx, &models.Person{}, personID, "person"); err != nil {
		return err
	}
	if err := requireCommittee(tx, committeeID); err != nil {
		return err
	}
	if err := requireRow(tx, &models.Role{}, roleID, "role"); err != nil {
		return err
	}

	row := models.CommitteeMembership{PersonID: personID, CommitteeID: committeeID, RoleID: roleID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return err
	}

	return tx.Preload("Person").
		Preload("Role").
		Where("person_id = ? AND committee_id = ? AND role_id = ?", personID, committeeID, roleID).
		First(membership).Error
}

// DeleteCommitteeMember removes one membership and the person when it was their last
func DeleteCommitteeMember(db *gorm.DB, committeeID, personID, roleID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("person_id = ? AND committee_id = ? AND role_id = ?", personID, committeeID, roleID).
			Delete(&models.CommitteeMembership{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return types.NotFoundf("membership person %d role %d in committee %d", personID, roleID, committeeID)
		}
		return deleteOrphanPersons(tx, []uint{personID})
	})
}

// GetCommitteeMembers returns the memberships of exactly one committee with person and role loaded
func GetCommitteeMembers(db *gorm.DB, committeeID uint) ([]models.CommitteeMembership, error) {
	if err := requireCommittee(db, committeeID); err != nil {
		return nil, err
	}
	var memberships []models.CommitteeMembership
	err := db.Preload("Person.Union").
		Preload("Role").
		Where("committee_id = ?", committeeID).
		Find(&memberships).Error
	return memberships, err
}

// SortMembers orders memberships by the position of the role in priority,
// then role name, then person name. Roles not in priority come last.
func SortMembers(memberships []models.CommitteeMembership, priority []string) {
	rank := make(map[string]int, len(priority))
	for i, name := range priority {
		rank[strings.ToLower(name)] = i
	}
	rankOf := func(m models.CommitteeMembership) int {
		if m.Role != nil {
			if r, ok := rank[strings.ToLower(m.Role.Name)]; ok {
				return r
			}
		}
		return len(priority)
	}
	roleName := func(m models.CommitteeMembership) string {
		if m.Role == nil {
			return ""
		}
		return m.Role.Name
	}
	personName := func(m models.CommitteeMembership) string {
		if m.Person == nil {
			return ""
		}
		return m.Person.Name
	}

	sort.SliceStable(memberships, func(i, j int) bool {
		a, b := memberships[i], memberships[j]
		if ra, rb := rankOf(a), rankOf(b); ra != rb {
			return ra < rb
		}
		if na, nb := roleName(a), roleName(b); na != nb {
			return na < nb
		}
		return personName(a) < personName(b)
	})
}

// MailtoList returns the distinct member e-mails in membership order
func MailtoList(memberships []models.CommitteeMembership) []string {
	seen := make(map[string]bool)
	var emails []string
	for _, m := range memberships {
		if m.Person == nil || m.Person.Email == "" || seen[m.Person.Email] {
			continue
		}
		seen[m.Person.Email] = true
		emails = append(emails, m.Person.Email)
	}
	return emails
}
