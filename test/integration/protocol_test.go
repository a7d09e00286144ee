package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/trialcal/trialcal/internal/domain/protocol"
)

func TestProtocolVisitCRUD(t *testing.T) {
	ctx := context.Background()
	study := uniqueStudy("PROTO")
	defer cleanupStudy(t, ctx, study)

	repo := protocol.NewRepo(globalDB.Pool)

	t.Run("Create", func(t *testing.T) {
		v := &protocol.Visit{
			Study:           study,
			Pathway:         "standard",
			Day:             1,
			VisitName:       "Baseline",
			SiteForVisit:    "St Marys",
			Payment:         decimal.NewFromFloat(250.50),
			ToleranceBefore: 0,
			ToleranceAfter:  0,
			VisitType:       "patient",
		}
		if err := repo.Create(ctx, v); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if v.ID == uuid.Nil {
			t.Fatal("expected non-nil ID after create")
		}
	})

	t.Run("GetByID", func(t *testing.T) {
		created := createTestProtocolVisit(t, ctx, study, 15, "Week 2", 150, 3, 3)

		fetched, err := repo.GetByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if fetched.VisitName != "Week 2" {
			t.Errorf("expected VisitName=Week 2, got %s", fetched.VisitName)
		}
		if fetched.Day != 15 {
			t.Errorf("expected Day=15, got %d", fetched.Day)
		}
		if !fetched.Payment.Equal(decimal.NewFromInt(150)) {
			t.Errorf("expected Payment=150, got %s", fetched.Payment)
		}
		if fetched.ToleranceBefore != 3 || fetched.ToleranceAfter != 3 {
			t.Errorf("expected tolerances 3/3, got %d/%d", fetched.ToleranceBefore, fetched.ToleranceAfter)
		}
		if fetched.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be set by the database")
		}
	})

	t.Run("Update", func(t *testing.T) {
		created := createTestProtocolVisit(t, ctx, study, 29, "Week 4", 150, 3, 3)

		created.Payment = decimal.NewFromFloat(175.25)
		created.ToleranceAfter = 5
		if err := repo.Update(ctx, created); err != nil {
			t.Fatalf("Update: %v", err)
		}

		fetched, err := repo.GetByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetByID after update: %v", err)
		}
		if !fetched.Payment.Equal(decimal.NewFromFloat(175.25)) {
			t.Errorf("expected Payment=175.25, got %s", fetched.Payment)
		}
		if fetched.ToleranceAfter != 5 {
			t.Errorf("expected ToleranceAfter=5, got %d", fetched.ToleranceAfter)
		}
		if fetched.UpdatedAt.Before(fetched.CreatedAt) {
			t.Errorf("expected UpdatedAt >= CreatedAt, got %s < %s", fetched.UpdatedAt, fetched.CreatedAt)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		created := createTestProtocolVisit(t, ctx, study, 43, "Week 6", 150, 3, 3)

		if err := repo.Delete(ctx, created.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := repo.GetByID(ctx, created.ID); !errors.Is(err, pgx.ErrNoRows) {
			t.Errorf("expected pgx.ErrNoRows after delete, got %v", err)
		}
	})
}

func TestProtocolVisitBatchAndListing(t *testing.T) {
	ctx := context.Background()
	study := uniqueStudy("PROTOLIST")
	defer cleanupStudy(t, ctx, study)

	repo := protocol.NewRepo(globalDB.Pool)

	// Batch insert out of day order; listing must come back sorted.
	rows := []*protocol.Visit{
		{Study: study, Pathway: "standard", Day: 29, VisitName: "Week 4", Payment: decimal.NewFromInt(150)},
		{Study: study, Pathway: "standard", Day: 1, VisitName: "Baseline", Payment: decimal.NewFromInt(250)},
		{Study: study, Pathway: "standard", Day: 15, VisitName: "Week 2", Payment: decimal.NewFromInt(150)},
	}
	if err := repo.CreateBatch(ctx, rows); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	for _, r := range rows {
		if r.ID == uuid.Nil {
			t.Fatalf("expected non-nil ID for %s after batch create", r.VisitName)
		}
	}

	t.Run("ListByStudy", func(t *testing.T) {
		listed, err := repo.ListByStudy(ctx, study)
		if err != nil {
			t.Fatalf("ListByStudy: %v", err)
		}
		if len(listed) != 3 {
			t.Fatalf("expected 3 rows, got %d", len(listed))
		}
		wantOrder := []string{"Baseline", "Week 2", "Week 4"}
		for i, name := range wantOrder {
			if listed[i].VisitName != name {
				t.Errorf("row %d: expected %s, got %s", i, name, listed[i].VisitName)
			}
		}
	})

	t.Run("Studies", func(t *testing.T) {
		studies, err := repo.Studies(ctx)
		if err != nil {
			t.Fatalf("Studies: %v", err)
		}
		found := false
		for _, s := range studies {
			if s == study {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected Studies to include %s", study)
		}
	})

	t.Run("List", func(t *testing.T) {
		listed, total, err := repo.List(ctx, 2, 0)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(listed) > 2 {
			t.Errorf("expected at most 2 rows, got %d", len(listed))
		}
		if total < 3 {
			t.Errorf("expected total >= 3, got %d", total)
		}
	})
}
