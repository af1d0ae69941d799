package repo

import (
	"context"
	"errors"
	"testing"

	"foodbridge/internal/db"
	"foodbridge/internal/domain"
	"foodbridge/internal/migrate"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Repo{DB: conn}
}

func TestAPIKeyLifecycle(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	key := domain.APIKey{ID: "k1", ActorID: "donor-1", Name: "kiosk", KeyHash: HashAPIKey("fbk_secret")}
	if err := r.InsertAPIKey(ctx, key); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.GetAPIKeyByHash(ctx, HashAPIKey("  fbk_secret "))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ActorID != "donor-1" || got.LastUsedAt != nil || got.CreatedAt == "" {
		t.Fatalf("unexpected key %+v", got)
	}
	if err := r.TouchAPIKey(ctx, "k1", "2026-01-02T03:04:05Z"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	keys, err := r.ListAPIKeys(ctx, "donor-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 || keys[0].LastUsedAt == nil || *keys[0].LastUsedAt != "2026-01-02T03:04:05Z" {
		t.Fatalf("expected touched key, got %+v", keys)
	}
	if others, _ := r.ListAPIKeys(ctx, "someone-else"); len(others) != 0 {
		t.Fatalf("expected no keys for other actor, got %d", len(others))
	}
	if err := r.DeleteAPIKey(ctx, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, HashAPIKey("fbk_secret")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestAPIKeyRequiresHash(t *testing.T) {
	r := newTestRepo(t)
	if err := r.InsertAPIKey(context.Background(), domain.APIKey{ID: "k", ActorID: "a"}); err == nil {
		t.Fatalf("expected error for missing hash")
	}
}

func TestProfileUpsertKeepsCreatedAt(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	p := domain.UserProfile{ID: "u1", Name: "Asha", Role: domain.RoleDonor, CreatedAt: "2026-01-01T00:00:00Z"}
	if err := r.SaveProfile(ctx, nil, p); err != nil {
		t.Fatalf("save: %v", err)
	}
	p.Name = "Asha K"
	p.CreatedAt = "2026-05-05T00:00:00Z"
	p.UpdatedAt = "2026-05-05T00:00:00Z"
	if err := r.SaveProfile(ctx, nil, p); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := r.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Asha K" || got.CreatedAt != "2026-01-01T00:00:00Z" || len(got.Badges) != 0 {
		t.Fatalf("unexpected profile %+v", got)
	}
	if _, err := r.GetProfile(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAttendanceCompletesOnce(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	rec := domain.AttendanceRecord{
		ID: "a1", UserID: "v1", Date: "2026-03-01", CheckIn: "2026-03-01T06:00:00Z",
		Shift: domain.ShiftMorning, Status: domain.AttendanceActive,
	}
	if err := r.InsertAttendance(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	active, err := r.ActiveAttendance(ctx, "v1")
	if err != nil || active.ID != "a1" || active.CheckOut != nil {
		t.Fatalf("expected open record, got %+v (%v)", active, err)
	}
	if err := r.CompleteAttendance(ctx, "a1", "2026-03-01T09:00:00Z", 3, 300); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := r.CompleteAttendance(ctx, "a1", "2026-03-01T10:00:00Z", 4, 400); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second checkout, got %v", err)
	}
	if _, err := r.ActiveAttendance(ctx, "v1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no active record, got %v", err)
	}
	total, err := r.SumEarnings(ctx, "v1")
	if err != nil || total != 300 {
		t.Fatalf("expected earnings 300, got %d (%v)", total, err)
	}
}

func TestDonationCountsAndHistory(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	records := []domain.DonationRecord{
		{ID: "d1", DonorID: "u1", SessionID: "s1", FoodName: "Dal Rice", Quantity: "8 kg", Status: domain.DonationAccepted, NgoName: "Annapurna", CreatedAt: "2026-02-01T00:00:00Z"},
		{ID: "d2", DonorID: "u1", SessionID: "s2", FoodName: "Bread", Quantity: "2 kg", Status: domain.DonationRejected, Reason: "Bad Odor", CreatedAt: "2026-02-02T00:00:00Z"},
		{ID: "d3", DonorID: "u2", SessionID: "s3", FoodName: "Curry", Quantity: "5 kg", Status: domain.DonationAccepted, CreatedAt: "2026-02-03T00:00:00Z"},
	}
	for _, d := range records {
		if err := r.InsertDonationRecord(ctx, nil, d); err != nil {
			t.Fatalf("insert %s: %v", d.ID, err)
		}
	}
	history, err := r.ListDonationRecords(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].ID != "d2" || history[0].Reason != "Bad Odor" || history[1].NgoName != "Annapurna" {
		t.Fatalf("unexpected history %+v", history)
	}
	counts, err := r.CountDonationsByStatus(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[domain.DonationAccepted] != 2 || counts[domain.DonationRejected] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestEventCursors(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	for _, typ := range []string{"session.started", "session.classified", "session.started"} {
		if _, err := r.DB.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
			"2026-01-01T00:00:00Z", typ, "session", "s1", "u1", "{}"); err != nil {
			t.Fatalf("insert event: %v", err)
		}
	}
	latest, err := r.LatestEventID(ctx)
	if err != nil || latest != 3 {
		t.Fatalf("expected latest id 3, got %d (%v)", latest, err)
	}
	page, err := r.LatestEventsFrom(ctx, 10, 3, EventFilter{})
	if err != nil || len(page) != 2 || page[0].ID != 2 {
		t.Fatalf("expected ids below cursor newest first, got %+v (%v)", page, err)
	}
	started, err := r.LatestEvents(ctx, 10, EventFilter{Type: "session.started"})
	if err != nil || len(started) != 2 {
		t.Fatalf("expected 2 started events, got %d (%v)", len(started), err)
	}
	after, err := r.EventsAfter(ctx, 0, 1)
	if err != nil || len(after) != 2 || after[0].ID != 2 || after[1].ID != 3 {
		t.Fatalf("expected ascending ids after cursor, got %+v (%v)", after, err)
	}
}
