// committee_service.go
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
	"fmt"

	"github.com/localnerve/meddb/internal/models"
	"github.com/localnerve/meddb/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// CommitteeInput is the input for CreateCommittee
type CommitteeInput struct {
	Name     string
	TypeID   uint
	ParentID *uint
}

// CommitteeUpdate is a partial update. Nil fields are left unchanged.
// Parent.Set with Parent.Valid false moves the committee to the top level.
type CommitteeUpdate struct {
	Name   *string
	TypeID *uint
	Parent types.OptionalID
}

// GetCommittees returns every committee with its type loaded
func GetCommittees(db *gorm.DB) ([]models.Committee, error) {
	var committees []models.Committee
	err := db.Session(&gorm.Session{Logger: db.Logger.LogMode(logger.Silent)}).
		Preload("Type").
		Order("id").
		Find(&committees).Error
	return committees, err
}

// GetCommitteeByID returns one committee with its type loaded
func GetCommitteeByID(db *gorm.DB, id uint) (*models.Committee, error) {
	var committee models.Committee
	if err := db.Preload("Type").First(&committee, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFoundf("committee %d", id)
		}
		return nil, err
	}
	return &committee, nil
}

// GetCommitteesByParentID returns the direct children of a committee
func GetCommitteesByParentID(db *gorm.DB, parentID uint) ([]models.Committee, error) {
	var committees []models.Committee
	err := db.Preload("Type").
		Where("parent_id = ?", parentID).
		Order("name").
		Find(&committees).Error
	return committees, err
}

// CreateCommittee inserts a committee under parentID, or at the top level when parentID is nil
func CreateCommittee(db *gorm.DB, input CommitteeInput) (*models.Committee, error) {
	committee := models.Committee{
		Name:     input.Name,
		TypeID:   input.TypeID,
		ParentID: input.ParentID,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := requireCommitteeType(tx, input.TypeID); err != nil {
			return err
		}
		if input.ParentID != nil {
			if err := requireCommittee(tx, *input.ParentID); err != nil {
				return err
			}
		}
		if err := tx.Create(&committee).Error; err != nil {
			return err
		}
		return tx.Preload("Type").First(&committee, committee.ID).Error
	})
	if err != nil {
		return nil, err
	}

	return &committee, nil
}

// UpdateCommittee applies a partial update. A move under the committee itself or one of its
// descendants is rejected with types.ErrCycle.
func UpdateCommittee(db *gorm.DB, id uint, update CommitteeUpdate) (*models.Committee, error) {
	var committee models.Committee

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&committee, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.NotFoundf("committee %d", id)
			}
			return err
		}

		changes := map[string]interface{}{}

		if update.Name != nil {
			changes["name"] = *update.Name
		}
		if update.TypeID != nil {
			if err := requireCommitteeType(tx, *update.TypeID); err != nil {
				return err
			}
			changes["type_id"] = *update.TypeID
		}
		if update.Parent.Set {
			parentID := update.Parent.Ptr()
			if parentID != nil {
				if err := requireCommittee(tx, *parentID); err != nil {
					return err
				}
				if err := checkMove(tx, id, *parentID); err != nil {
					return err
				}
			}
			changes["parent_id"] = parentID
		}

		if len(changes) > 0 {
			if err := tx.Model(&committee).Updates(changes).Error; err != nil {
				return err
			}
		}

		return tx.Preload("Type").First(&committee, id).Error
	})
	if err != nil {
		return nil, err
	}

	return &committee, nil
}

// DeleteCommittee removes a committee, its memberships and any person left without memberships.
// Direct children become top-level committees; they are not reattached to the grandparent.
func DeleteCommittee(db *gorm.DB, id uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := requireCommittee(tx, id); err != nil {
			return err
		}

		var personIDs []uint
		if err := tx.Model(&models.CommitteeMembership{}).
			Where("committee_id = ?", id).
			Distinct().
			Pluck("person_id", &personIDs).Error; err != nil {
			return err
		}

		if err := tx.Where("committee_id = ?", id).Delete(&models.CommitteeMembership{}).Error; err != nil {
			return err
		}

		if err := deleteOrphanPersons(tx, personIDs); err != nil {
			return err
		}

		if err := tx.Model(&models.Committee{}).
			Where("parent_id = ?", id).
			Update("parent_id", nil).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Committee{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return types.NotFoundf("committee %d", id)
		}
		return nil
	})
}

// DescendantIDs returns the given committee ids plus every committee below them.
// Unknown ids are kept so an empty filter never widens to "all".
func DescendantIDs(db *gorm.DB, topIDs []uint) ([]uint, error) {
	children, err := childIndex(db)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint]bool, len(topIDs))
	queue := append([]uint(nil), topIDs...)
	var out []uint
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		queue = append(queue, children[id]...)
	}
	return out, nil
}

// checkMove rejects making newParentID the parent of id when newParentID lies in id's subtree.
func checkMove(tx *gorm.DB, id, newParentID uint) error {
	if id == newParentID {
		return fmt.Errorf("committee %d cannot be its own parent: %w", id, types.ErrCycle)
	}

	subtree, err := DescendantIDs(tx, []uint{id})
	if err != nil {
		return err
	}
	for _, d := range subtree {
		if d == newParentID {
			return fmt.Errorf("committee %d is below committee %d: %w", newParentID, id, types.ErrCycle)
		}
	}
	return nil
}

// childIndex maps parent id to child ids over the whole table.
func childIndex(db *gorm.DB) (map[uint][]uint, error) {
	var rows []struct {
		ID       uint
		ParentID *uint
	}
	if err := db.Model(&models.Committee{}).Select("id", "parent_id").Find(&rows).Error; err != nil {
		return nil, err
	}

	children := make(map[uint][]uint)
	for _, r := range rows {
		if r.ParentID != nil {
			children[*r.ParentID] = append(children[*r.ParentID], r.ID)
		}
	}
	return children, nil
}

func requireCommittee(tx *gorm.DB, id uint) error {
	return requireRow(tx, &models.Committee{}, id, "committee")
}

func requireCommitteeType(tx *gorm.DB, id uint) error {
	return requireRow(tx, &models.CommitteeType{}, id, "committee type")
}

func requireRow(tx *gorm.DB, model interface{}, id uint, entity string) error {
	var count int64
	if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return types.NotFoundf("%s %d", entity, id)
	}
	return nil
}
