package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/iliyamo/gate-presence/internal/database"
	"github.com/iliyamo/gate-presence/internal/model"
	"github.com/iliyamo/gate-presence/internal/repository"
)

func TestScanLogRepo_ListSinceNewestFirst(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := repository.NewScanLogRepo(db, database.DriverSQLite)

	for i := 0; i < 5; i++ {
		e := model.ScanLogEntry{
			ID:        fmt.Sprintf("log-%d", i),
			TicketID:  "t-1",
			EventID:   "ev-1",
			Direction: model.StateInside,
			Verdict:   model.VerdictOK,
			Gate:      "north",
			CreatedAt: t0.Add(time.Duration(i) * time.Second),
		}
		if i == 4 {
			e.Verdict = model.VerdictBlocked
			e.Reason = model.ReasonCooldown
			e.DeviceHash = "dev-a"
			e.ByUserID = "staff-1"
		}
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	// Another ticket must not leak into the result.
	_ = repo.Append(ctx, model.ScanLogEntry{ID: "other", TicketID: "t-2", EventID: "ev-1", Direction: model.StateInside, Verdict: model.VerdictOK, Gate: "north", CreatedAt: t0.Add(3 * time.Second)})

	got, err := repo.ListSince(ctx, "t-1", t0.Add(2*time.Second), 10)
	if err != nil {
		t.Fatalf("ListSince: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].ID != "log-4" || got[2].ID != "log-2" {
		t.Errorf("order = %s..%s, want log-4..log-2", got[0].ID, got[2].ID)
	}
	if got[0].Reason != model.ReasonCooldown || got[0].DeviceHash != "dev-a" || got[0].ByUserID != "staff-1" {
		t.Errorf("round trip lost fields: %+v", got[0])
	}

	limited, _ := repo.ListSince(ctx, "t-1", t0, 2)
	if len(limited) != 2 {
		t.Errorf("limit not applied: %d", len(limited))
	}
}
