package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/localnerve/meddb/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// schoolRow maps the externally managed school directory table.
type schoolRow struct {
	Username *string `gorm:"column:DQnummer"`
	Name     *string `gorm:"column:Navn"`
	Email    *string `gorm:"column:Mail"`
	School   *string `gorm:"column:Skole"`
}

func (r schoolRow) record() PersonRecord {
	return newRecord(deref(r.Name), deref(r.Email), deref(r.School), deref(r.Username))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// School searches the read-only school directory database.
type School struct {
	db    *gorm.DB
	table string
}

// NewSchool creates a School client over table, which may be schema qualified ("skolead.person").
func NewSchool(db *gorm.DB, table string) *School {
	return &School{db: db, table: table}
}

// Search matches username and e-mail exactly and name by substring, all ignoring case.
// Any matching criterion is enough.
func (s *School) Search(ctx context.Context, q Query) ([]PersonRecord, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var conditions []clause.Expression
	if q.Username != "" {
		conditions = append(conditions, lowerEquals("DQnummer", q.Username))
	}
	if q.Name != "" {
		conditions = append(conditions, clause.Expr{
			SQL:  "LOWER(?) LIKE ?",
			Vars: []interface{}{clause.Column{Name: "Navn"}, "%" + strings.ToLower(q.Name) + "%"},
		})
	}
	if q.Email != "" {
		conditions = append(conditions, lowerEquals("Mail", q.Email))
	}

	var rows []schoolRow
	err := s.db.WithContext(ctx).
		Table(s.table).
		Clauses(clause.Where{Exprs: []clause.Expression{clause.Or(conditions...)}}).
		Limit(SearchLimit).
		Find(&rows).Error
	if err != nil {
		return nil, s.fail(err)
	}

	records := make([]PersonRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.record())
	}
	return records, nil
}

// FindByEmail returns the record whose e-mail equals email, ignoring case.
func (s *School) FindByEmail(ctx context.Context, email string) (*PersonRecord, bool, error) {
	if strings.TrimSpace(email) == "" {
		return nil, false, Query{}.Validate()
	}

	var row schoolRow
	err := s.db.WithContext(ctx).
		Table(s.table).
		Clauses(clause.Where{Exprs: []clause.Expression{lowerEquals("Mail", email)}}).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, s.fail(err)
	}
	record := row.record()
	return &record, true, nil
}

// Ping checks the school database connection.
func (s *School) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return s.fail(err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return s.fail(err)
	}
	return nil
}

func (s *School) fail(err error) error {
	return &types.ExternalServiceError{Service: "school", Err: err}
}

func lowerEquals(column, value string) clause.Expression {
	return clause.Expr{
		SQL:  "LOWER(?) = ?",
		Vars: []interface{}{clause.Column{Name: column}, strings.ToLower(value)},
	}
}
