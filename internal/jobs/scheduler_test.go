package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/localnerve/meddb/internal/directory"
	"github.com/localnerve/meddb/internal/models"
	"github.com/localnerve/meddb/internal/reconcile"
	"github.com/localnerve/meddb/internal/services"
	"github.com/localnerve/meddb/internal/testutil"
)

type countingReconciler struct {
	calls    atomic.Int32
	triggers chan string
}

func (c *countingReconciler) Run(_ context.Context, trigger string) (*models.ReconciliationRun, error) {
	c.calls.Add(1)
	if c.triggers != nil {
		c.triggers <- trigger
	}
	return &models.ReconciliationRun{ID: "run", Trigger: trigger}, nil
}

func TestNewRejectsInvalidSchedule(t *testing.T) {
	db := testutil.OpenDB(t)
	if _, err := New(db, &countingReconciler{}, Config{ReconcileSchedule: "not a cron"}, nil); err == nil {
		t.Errorf("Expected an invalid reconcile schedule to fail")
	}
	if _, err := New(db, nil, Config{MaintenanceSchedule: "61 * * * *"}, nil); err == nil {
		t.Errorf("Expected an invalid maintenance schedule to fail")
	}
}

func TestMaintainRepairsNames(t *testing.T) {
	db := testutil.OpenDB(t)
	if _, err := services.AddOrUpdatePerson(db, services.PersonInput{Name: "kim.larsen@org.dk", Email: "kim.larsen@org.dk"}); err != nil {
		t.Fatalf("AddOrUpdatePerson failed: %v", err)
	}

	s, err := New(db, nil, Config{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.Maintain()

	p, err := services.GetPersonByEmail(db, "kim.larsen@org.dk")
	if err != nil {
		t.Fatalf("GetPersonByEmail failed: %v", err)
	}
	if p.Name != "kim larsen" {
		t.Errorf("Expected repaired name, got %q", p.Name)
	}
}

func TestRunOnStart(t *testing.T) {
	db := testutil.OpenDB(t)
	rec := &countingReconciler{triggers: make(chan string, 1)}

	s, err := New(db, rec, Config{ReconcileSchedule: "0 8 * * *", RunOnStart: true}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.Start()
	defer s.Stop()

	select {
	case trigger := <-rec.triggers:
		if trigger != reconcile.TriggerStartup {
			t.Errorf("Expected startup trigger, got %q", trigger)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Expected a reconciliation run on start")
	}
}

// blockingDirectory holds every search until released or cancelled.
type blockingDirectory struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingDirectory) Search(ctx context.Context, q directory.Query) ([]directory.PersonRecord, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return nil, nil
}

func TestReconcileAsyncReportsRunInProgress(t *testing.T) {
	db := testutil.OpenDB(t)
	if _, err := services.AddOrUpdatePerson(db, services.PersonInput{Name: "Kim", Email: "kim@org.dk"}); err != nil {
		t.Fatalf("AddOrUpdatePerson failed: %v", err)
	}
	dir := &blockingDirectory{entered: make(chan struct{}, 1), release: make(chan struct{})}
	engine := reconcile.New(db, dir, reconcile.Options{})

	s, err := New(db, engine, Config{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.Start()

	if err := s.ReconcileAsync(reconcile.TriggerManual); err != nil {
		t.Fatalf("ReconcileAsync failed: %v", err)
	}
	select {
	case <-dir.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected the background run to reach the directory")
	}

	if err := s.ReconcileAsync(reconcile.TriggerManual); !errors.Is(err, reconcile.ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning while a run is in progress, got %v", err)
	}

	close(dir.release)
	s.Stop()

	// Stop waits for the background run, so it is stored as finished.
	runs, err := reconcile.ListRuns(db, 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].FinishedAt == nil {
		t.Errorf("Expected one finished run after Stop, got %+v", runs)
	}
}

func TestStopWaitsForStartupRun(t *testing.T) {
	db := testutil.OpenDB(t)
	if _, err := services.AddOrUpdatePerson(db, services.PersonInput{Name: "Kim", Email: "kim@org.dk"}); err != nil {
		t.Fatalf("AddOrUpdatePerson failed: %v", err)
	}
	dir := &blockingDirectory{entered: make(chan struct{}, 1), release: make(chan struct{})}
	engine := reconcile.New(db, dir, reconcile.Options{})

	s, err := New(db, engine, Config{RunOnStart: true}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.Start()

	select {
	case <-dir.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected the startup run to reach the directory")
	}

	// The run is blocked in the directory; Stop cancels it and must wait for it to be stored.
	s.Stop()

	runs, err := reconcile.ListRuns(db, 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].FinishedAt == nil || runs[0].Trigger != reconcile.TriggerStartup {
		t.Errorf("Expected the cancelled startup run to be stored, got %+v", runs)
	}
}
