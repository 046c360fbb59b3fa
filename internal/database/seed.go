package database

import (
	"github.com/localnerve/meddb/internal/models"
	"gorm.io/gorm"
)

// DefaultCommitteeTypes are created on startup and cannot be deleted through the API.
var DefaultCommitteeTypes = []string{"Udvalg", "Arbejdsmiljøgruppe", "Ukendt"}

// Seed inserts the protected committee types that do not exist yet.
func Seed(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var existing []string
		if err := tx.Model(&models.CommitteeType{}).Pluck("name", &existing).Error; err != nil {
			return err
		}

		have := make(map[string]struct{}, len(existing))
		for _, name := range existing {
			have[name] = struct{}{}
		}

		var toCreate []models.CommitteeType
		for _, name := range DefaultCommitteeTypes {
			if _, ok := have[name]; !ok {
				toCreate = append(toCreate, models.CommitteeType{Name: name, IsProtected: true})
			}
		}
		if len(toCreate) == 0 {
			return nil
		}
		return tx.Create(&toCreate).Error
	})
}
