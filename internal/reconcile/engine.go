// engine.go
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

// Package reconcile verifies stored person e-mails against the external directories.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/localnerve/meddb/internal/directory"
	"github.com/localnerve/meddb/internal/models"
	"github.com/localnerve/meddb/internal/services"
	"github.com/localnerve/meddb/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Triggers recorded on a run.
const (
	TriggerSchedule = "schedule"
	TriggerStartup  = "startup"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
)

// ErrAlreadyRunning is returned when a run is requested while another is in progress.
var ErrAlreadyRunning = fmt.Errorf("reconciliation already running: %w", types.ErrInUse)

// Outcome classifies what happened to one person.
type Outcome string

const (
	OutcomeCorrected      Outcome = "corrected"
	OutcomeVerified       Outcome = "verified"
	OutcomeSchool         Outcome = "school"
	OutcomeAlias          Outcome = "alias"
	OutcomeAliasCorrected Outcome = "alias_corrected"
	OutcomeUnresolved     Outcome = "unresolved"
	OutcomeFailed         Outcome = "failed"
)

// SchoolLookup finds a person in the school directory by exact e-mail.
type SchoolLookup interface {
	FindByEmail(ctx context.Context, email string) (*directory.PersonRecord, bool, error)
}

// AliasLookup finds accounts carrying an e-mail alias.
type AliasLookup interface {
	SearchAlias(ctx context.Context, alias string) ([]directory.PersonRecord, error)
}

// PersonResult is stored in the run details for every person that was not plainly verified.
type PersonResult struct {
	PersonID uint    `json:"personId"`
	Email    string  `json:"email"`
	Outcome  Outcome `json:"outcome"`
	NewEmail string  `json:"newEmail,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// Options holds the optional collaborators of an Engine. Leave School or Alias nil to skip that fallback.
type Options struct {
	School           SchoolLookup
	Alias            AliasLookup
	Log              *zap.Logger
	Metrics          *Metrics
	CopyOrganization bool
}

// UseDirectories sets the fallbacks from the configured clients, leaving unconfigured ones nil.
func (o *Options) UseDirectories(c *directory.Clients) {
	if c.School != nil {
		o.School = c.School
	}
	if c.Graph != nil {
		o.Alias = c.Graph
	}
}

// Engine runs reconciliation passes. Only one pass runs at a time.
type Engine struct {
	db      *gorm.DB
	primary directory.Searcher
	opts    Options
	log     *zap.Logger
	running sync.Mutex
	now     func() time.Time
}

// New creates an Engine over the application database and the primary directory.
func New(db *gorm.DB, primary directory.Searcher, opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{db: db, primary: primary, opts: opts, log: log, now: time.Now}
}

// Run reconciles every person once, committing each person's changes immediately.
// Directory failures for one person are recorded and the pass continues.
func (e *Engine) Run(ctx context.Context, trigger string) (*models.ReconciliationRun, error) {
	if !e.running.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer e.running.Unlock()
	return e.run(ctx, trigger)
}

// Start claims the engine and runs a pass in the background, calling done with the result.
// It returns ErrAlreadyRunning without starting anything when a pass is in progress.
func (e *Engine) Start(ctx context.Context, trigger string, done func(*models.ReconciliationRun, error)) error {
	if !e.running.TryLock() {
		return ErrAlreadyRunning
	}
	go func() {
		run, err := e.run(ctx, trigger)
		e.running.Unlock()
		if done != nil {
			done(run, err)
		}
	}()
	return nil
}

func (e *Engine) run(ctx context.Context, trigger string) (*models.ReconciliationRun, error) {
	started := e.now()
	run := &models.ReconciliationRun{ID: uuid.NewString(), Trigger: trigger, StartedAt: started}
	if err := e.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("create reconciliation run: %w", err)
	}
	log := e.log.With(zap.String("run_id", run.ID), zap.String("trigger", trigger))
	log.Info("reconciliation started")

	results, runErr := e.pass(ctx, run, log)

	finished := e.now()
	run.FinishedAt = &finished
	if runErr != nil {
		run.Error = runErr.Error()
	}
	details, err := models.NewJSON(results)
	if err != nil {
		return run, err
	}
	run.Details = details
	if err := e.db.Save(run).Error; err != nil {
		log.Error("failed to store reconciliation run", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	e.opts.Metrics.observeRun(trigger, runErr, finished.Sub(started), finished)
	log.Info("reconciliation finished",
		zap.Int("processed", run.Processed),
		zap.Int("corrected", run.Corrected),
		zap.Int("verified", run.Verified),
		zap.Int("unresolved", run.Unresolved),
		zap.Int("failed", run.Failed),
		zap.Duration("elapsed", finished.Sub(started)))

	return run, runErr
}

func (e *Engine) pass(ctx context.Context, run *models.ReconciliationRun, log *zap.Logger) ([]PersonResult, error) {
	persons, err := services.ListPersons(e.db.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}

	results := []PersonResult{}
	for _, person := range persons {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result := e.reconcilePerson(ctx, person)
		run.Processed++
		switch result.Outcome {
		case OutcomeCorrected, OutcomeAliasCorrected:
			run.Corrected++
		case OutcomeVerified, OutcomeSchool, OutcomeAlias:
			run.Verified++
		case OutcomeUnresolved:
			run.Unresolved++
		case OutcomeFailed:
			run.Failed++
			log.Warn("reconciliation failed for person",
				zap.Uint("person_id", person.ID),
				zap.String("email", person.Email),
				zap.String("reason", result.Reason))
		}
		e.opts.Metrics.observePerson(result.Outcome)

		if result.Outcome != OutcomeVerified {
			results = append(results, result)
		}
	}
	return results, nil
}

// WellFormed is the deliberately crude malformed-address test: both '@' and '.' must occur.
func WellFormed(email string) bool {
	return strings.Contains(email, "@") && strings.Contains(email, ".")
}

func (e *Engine) reconcilePerson(ctx context.Context, person models.Person) PersonResult {
	result := PersonResult{PersonID: person.ID, Email: person.Email}
	failed := func(err error) PersonResult {
		result.Outcome = OutcomeFailed
		result.Reason = err.Error()
		return result
	}

	if !WellFormed(person.Email) {
		records, err := e.primary.Search(ctx, directory.Query{Email: person.Email})
		if err != nil {
			return failed(err)
		}
		if len(records) != 1 || !directory.HasValue(records[0].Email) {
			result.Outcome = OutcomeUnresolved
			result.Reason = fmt.Sprintf("%d directory matches", len(records))
			return result
		}
		return e.adopt(ctx, person, records[0], OutcomeCorrected, result)
	}

	records, err := e.primary.Search(ctx, directory.Query{Email: person.Email})
	if err != nil {
		return failed(err)
	}
	if match := directory.FindExact(records, person.Email); match != nil {
		update := services.DirectoryMatch{FoundInSystem: true}
		if e.opts.CopyOrganization && directory.HasValue(match.Organization) {
			update.Organization = &match.Organization
		}
		if err := services.ApplyDirectoryMatch(e.db.WithContext(ctx), person.ID, update); err != nil {
			return failed(err)
		}
		result.Outcome = OutcomeVerified
		return result
	}

	if e.opts.School != nil {
		record, found, err := e.opts.School.FindByEmail(ctx, strings.ToLower(person.Email))
		if err != nil {
			return failed(err)
		}
		if found {
			update := services.DirectoryMatch{FoundInSystem: true}
			if e.opts.CopyOrganization && directory.HasValue(record.Organization) {
				update.Organization = &record.Organization
			}
			if err := services.ApplyDirectoryMatch(e.db.WithContext(ctx), person.ID, update); err != nil {
				return failed(err)
			}
			result.Outcome = OutcomeSchool
			return result
		}
	}

	if e.opts.Alias != nil {
		records, err := e.opts.Alias.SearchAlias(ctx, person.Email)
		if err != nil {
			return failed(err)
		}
		if len(records) == 1 {
			if !directory.HasValue(records[0].Email) || strings.EqualFold(records[0].Email, person.Email) {
				if err := services.ApplyDirectoryMatch(e.db.WithContext(ctx), person.ID, services.DirectoryMatch{FoundInSystem: true}); err != nil {
					return failed(err)
				}
				result.Outcome = OutcomeAlias
				return result
			}
			return e.adopt(ctx, person, records[0], OutcomeAliasCorrected, result)
		}
	}

	result.Outcome = OutcomeUnresolved
	result.Reason = "not found in any directory"
	return result
}

// adopt replaces the person's e-mail with the directory record's and marks the person found.
// An address already held by another person is left unresolved.
func (e *Engine) adopt(ctx context.Context, person models.Person, record directory.PersonRecord, outcome Outcome, result PersonResult) PersonResult {
	db := e.db.WithContext(ctx)

	existing, err := services.GetPersonByEmail(db, record.Email)
	switch {
	case err == nil && existing.ID != person.ID:
		result.Outcome = OutcomeUnresolved
		result.NewEmail = record.Email
		result.Reason = fmt.Sprintf("e-mail already belongs to person %d", existing.ID)
		return result
	case err != nil && !errors.Is(err, types.ErrNotFound):
		result.Outcome = OutcomeFailed
		result.Reason = err.Error()
		return result
	}

	update := services.DirectoryMatch{Email: &record.Email, FoundInSystem: true}
	if e.opts.CopyOrganization && directory.HasValue(record.Organization) {
		update.Organization = &record.Organization
	}
	if err := services.ApplyDirectoryMatch(db, person.ID, update); err != nil {
		result.Outcome = OutcomeFailed
		result.Reason = err.Error()
		return result
	}

	result.Outcome = outcome
	result.NewEmail = record.Email
	return result
}

// ListRuns returns the most recent runs first.
func ListRuns(db *gorm.DB, limit int) ([]models.ReconciliationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.ReconciliationRun
	err := db.Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
