package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/flare-fhir/flare/internal/domain/feasibility"
	"github.com/flare-fhir/flare/internal/platform/db"
)

func intPtr(v int) *int       { return &v }
func strPtr(s string) *string { return &s }

func TestMigrator_StatusAfterUp(t *testing.T) {
	ctx := context.Background()
	m := db.NewMigrator(globalPool, db.EmbeddedMigrations(), zerolog.Nop())

	n, err := m.Up(ctx)
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if n != 0 {
		t.Errorf("second Up applied %d migrations, want 0", n)
	}

	statuses, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(statuses) == 0 {
		t.Fatal("expected at least one migration")
	}
	for _, s := range statuses {
		if !s.Applied || s.AppliedAt == nil {
			t.Errorf("migration %03d_%s not applied", s.Version, s.Name)
		}
	}
}

func TestRunRepoPG_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	truncateRuns(t, ctx)
	repo := feasibility.NewRunRepoPG(globalPool)

	run := &feasibility.Run{
		RequestedBy: "alice",
		QueryHash:   "0f1e2d3c4b5a69788796a5b4c3d2e1f00f1e2d3c4b5a69788796a5b4c3d2e1f0",
		Status:      feasibility.RunCompleted,
		Count:       intPtr(42),
		DurationMS:  120,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if run.ID == uuid.Nil {
		t.Fatal("expected ID to be assigned")
	}

	got, err := repo.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.RequestedBy != "alice" || got.Status != feasibility.RunCompleted {
		t.Errorf("unexpected run: %+v", got)
	}
	if got.Count == nil || *got.Count != 42 {
		t.Errorf("Count = %v, want 42", got.Count)
	}
	if got.Error != nil {
		t.Errorf("Error = %q, want nil", *got.Error)
	}
	if !got.CreatedAt.Equal(run.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, run.CreatedAt)
	}
}

func TestRunRepoPG_GetByIDNotFound(t *testing.T) {
	repo := feasibility.NewRunRepoPG(globalPool)
	if _, err := repo.GetByID(context.Background(), uuid.New()); !errors.Is(err, feasibility.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRunRepoPG_RejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	repo := feasibility.NewRunRepoPG(globalPool)
	err := repo.Create(ctx, &feasibility.Run{
		QueryHash: "0f1e2d3c4b5a69788796a5b4c3d2e1f00f1e2d3c4b5a69788796a5b4c3d2e1f0",
		Status:    "running",
		CreatedAt: time.Now(),
	})
	if err == nil {
		t.Error("expected check constraint violation")
	}
}

func TestRunRepoPG_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	truncateRuns(t, ctx)
	repo := feasibility.NewRunRepoPG(globalPool)

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		run := &feasibility.Run{
			QueryHash:  "0f1e2d3c4b5a69788796a5b4c3d2e1f00f1e2d3c4b5a69788796a5b4c3d2e1f0",
			Status:     feasibility.RunFailed,
			Error:      strPtr("fhir server unavailable"),
			DurationMS: int64(i),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(ctx, run); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	items, total, err := repo.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[0].DurationMS != 2 || items[1].DurationMS != 1 {
		t.Errorf("unexpected order: %d, %d", items[0].DurationMS, items[1].DurationMS)
	}

	items, _, err = repo.List(ctx, 2, 2)
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	if len(items) != 1 || items[0].DurationMS != 0 {
		t.Errorf("unexpected second page: %+v", items)
	}
}
