package services

import (
	"errors"
	"fmt"

	"github.com/localnerve/meddb/internal/models"
	"github.com/localnerve/meddb/internal/types"
	"gorm.io/gorm"
)

// Committee types

// GetAllCommitteeTypes lists committee types; protected defaults only when includeProtected is set
func GetAllCommitteeTypes(db *gorm.DB, includeProtected bool) ([]models.CommitteeType, error) {
	var committeeTypes []models.CommitteeType
	query := db.Order("name")
	if !includeProtected {
		query = query.Where("is_protected = ?", false)
	}
	err := query.Find(&committeeTypes).Error
	return committeeTypes, err
}

// GetCommitteeTypeByID returns one committee type
func GetCommitteeTypeByID(db *gorm.DB, id uint) (*models.CommitteeType, error) {
	var committeeType models.CommitteeType
	if err := db.First(&committeeType, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFoundf("committee type %d", id)
		}
		return nil, err
	}
	return &committeeType, nil
}

// CreateCommitteeType inserts an unprotected committee type
func CreateCommitteeType(db *gorm.DB, name string) (*models.CommitteeType, error) {
	committeeType := models.CommitteeType{Name: name}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := requireUniqueName(tx, &models.CommitteeType{}, name, 0, "committee type"); err != nil {
			return err
		}
		return tx.Create(&committeeType).Error
	})
	if err != nil {
		return nil, err
	}
	return &committeeType, nil
}

// UpdateCommitteeType renames a committee type
func UpdateCommitteeType(db *gorm.DB, id uint, name string) (*models.CommitteeType, error) {
	var committeeType models.CommitteeType
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&committeeType, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.NotFoundf("committee type %d", id)
			}
			return err
		}
		if err := requireUniqueName(tx, &models.CommitteeType{}, name, id, "committee type"); err != nil {
			return err
		}
		committeeType.Name = name
		return tx.Save(&committeeType).Error
	})
	if err != nil {
		return nil, err
	}
	return &committeeType, nil
}

// DeleteCommitteeType removes a committee type that no committee uses.
// Protection of seeded types is enforced by the caller.
func DeleteCommitteeType(db *gorm.DB, id uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := requireCommitteeType(tx, id); err != nil {
			return err
		}
		if err := requireUnused(tx, &models.Committee{}, "type_id = ?", id, "committee type"); err != nil {
			return err
		}
		return tx.Delete(&models.CommitteeType{}, id).Error
	})
}

// Roles

// GetAllRoles lists roles by name
func GetAllRoles(db *gorm.DB) ([]models.Role, error) {
	var roles []models.Role
	err := db.Order("name").Find(&roles).Error
	return roles, err
}

// CreateRole inserts a role
func CreateRole(db *gorm.DB, name string) (*models.Role, error) {
	role := models.Role{Name: name}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := requireUniqueName(tx, &models.Role{}, name, 0, "role"); err != nil {
			return err
		}
		return tx.Create(&role).Error
	})
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// UpdateRole renames a role
func UpdateRole(db *gorm.DB, id uint, name string) (*models.Role, error) {
	var role models.Role
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&role, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.NotFoundf("role %d", id)
			}
			return err
		}
		if err := requireUniqueName(tx, &models.Role{}, name, id, "role"); err != nil {
			return err
		}
		role.Name = name
		return tx.Save(&role).Error
	})
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// DeleteRole removes a role that no membership uses
func DeleteRole(db *gorm.DB, id uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &models.Role{}, id, "role"); err != nil {
			return err
		}
		if err := requireUnused(tx, &models.CommitteeMembership{}, "role_id = ?", id, "role"); err != nil {
			return err
		}
		return tx.Delete(&models.Role{}, id).Error
	})
}

// Unions

// GetAllUnions lists unions by name
func GetAllUnions(db *gorm.DB) ([]models.Union, error) {
	var unions []models.Union
	err := db.Order("name").Find(&unions).Error
	return unions, err
}

// GetUnionByID returns one union
func GetUnionByID(db *gorm.DB, id uint) (*models.Union, error) {
	var union models.Union
	if err := db.First(&union, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFoundf("union %d", id)
		}
		return nil, err
	}
	return &union, nil
}

// CreateUnion inserts a union
func CreateUnion(db *gorm.DB, name string, description *string) (*models.Union, error) {
	union := models.Union{Name: name, Description: description}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := requireUniqueName(tx, &models.Union{}, name, 0, "union"); err != nil {
			return err
		}
		return tx.Create(&union).Error
	})
	if err != nil {
		return nil, err
	}
	return &union, nil
}

// UpdateUnion replaces name and description
func UpdateUnion(db *gorm.DB, id uint, name string, description *string) (*models.Union, error) {
	var union models.Union
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&union, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.NotFoundf("union %d", id)
			}
			return err
		}
		if err := requireUniqueName(tx, &models.Union{}, name, id, "union"); err != nil {
			return err
		}
		union.Name = name
		union.Description = description
		return tx.Save(&union).Error
	})
	if err != nil {
		return nil, err
	}
	return &union, nil
}

// DeleteUnion removes a union and clears it from every member person
func DeleteUnion(db *gorm.DB, id uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &models.Union{}, id, "union"); err != nil {
			return err
		}
		if err := tx.Model(&models.Person{}).
			Where("union_id = ?", id).
			Update("union_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Union{}, id).Error
	})
}

func requireUnused(tx *gorm.DB, model interface{}, where string, id uint, entity string) error {
	var count int64
	if err := tx.Model(model).Where(where, id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%s %d is used %d times: %w", entity, id, count, types.ErrInUse)
	}
	return nil
}

// requireUniqueName rejects name when another row than exceptID already carries it
func requireUniqueName(tx *gorm.DB, model interface{}, name string, exceptID uint, entity string) error {
	var count int64
	if err := tx.Model(model).Where("name = ? AND id <> ?", name, exceptID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%s %q: %w", entity, name, types.ErrDuplicate)
	}
	return nil
}
