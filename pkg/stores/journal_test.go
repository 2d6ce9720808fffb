package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/furrowlabs/furrow/pkg/engine"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("opening journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func sampleReport() *engine.RunReport {
	now := time.Now().Truncate(time.Second)
	return &engine.RunReport{
		ID:        uuid.New().String(),
		Instance:  "erp1",
		State:     engine.RunStateRunning,
		StartedAt: now,
		Summary:   engine.RunSummary{Total: 3},
	}
}

func TestJournalRoundTrip(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	report := sampleReport()
	if err := j.RunStarted(ctx, report); err != nil {
		t.Fatal(err)
	}

	results := []engine.StepResult{
		{Step: "postgres-package", Outcome: engine.OutcomeSkipped, Detail: "target state already holds"},
		{Step: "app-config", Outcome: engine.OutcomeApplied, Attempts: 1},
		{Step: "certificate", Outcome: engine.OutcomeFailed, Attempts: 2,
			Error: engine.NewTransientError("rate limited", nil).WithStep("certificate")},
	}
	for _, r := range results {
		r.StartedAt = report.StartedAt
		r.CompletedAt = report.StartedAt.Add(time.Second)
		r.Duration = time.Second
		if err := j.StepCompleted(ctx, report.ID, r); err != nil {
			t.Fatal(err)
		}
	}

	report.State = engine.RunStateCompleted
	report.Summary.Applied, report.Summary.Skipped, report.Summary.Failed = 1, 1, 1
	report.CompletedAt = report.StartedAt.Add(3 * time.Second)
	report.Duration = 3 * time.Second
	if err := j.RunFinished(ctx, report); err != nil {
		t.Fatal(err)
	}

	last, err := j.LastRun(ctx, "erp1")
	if err != nil {
		t.Fatal(err)
	}
	if last.ID != report.ID || last.State != engine.RunStateCompleted {
		t.Errorf("last run = %+v", last)
	}
	if last.Applied != 1 || last.Skipped != 1 || last.Failed != 1 || last.Total != 3 {
		t.Errorf("counts = %+v", last)
	}
	if !last.CompletedAt.Valid {
		t.Error("completed_at not set")
	}

	steps, err := j.Steps(ctx, report.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 3 {
		t.Fatalf("steps = %+v", steps)
	}
	// Execution order survives the round trip.
	for i, want := range []string{"postgres-package", "app-config", "certificate"} {
		if steps[i].Step != want || steps[i].Seq != i {
			t.Errorf("step %d = %+v, want %s", i, steps[i], want)
		}
	}
	if steps[2].Error == "" {
		t.Error("failed step should carry its error text")
	}
}

func TestJournalListRunsNewestFirst(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		r := sampleReport()
		r.StartedAt = time.Now().Add(time.Duration(i) * time.Minute)
		if err := j.RunStarted(ctx, r); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, r.ID)
	}

	runs, err := j.ListRuns(ctx, "erp1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Errorf("order = %s, %s; want newest first", runs[0].ID, runs[1].ID)
	}
}

func TestJournalLastRunNotFound(t *testing.T) {
	j := openTestJournal(t)
	_, err := j.LastRun(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestJournalMigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.db")

	first, err := Open(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("reopening migrated journal: %v", err)
	}
	_ = second.Close()
}
