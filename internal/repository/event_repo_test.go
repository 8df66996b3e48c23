package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/vekjja/espwifi-broker/internal/db"
	"github.com/vekjja/espwifi-broker/internal/model"
)

func newTestRepo(t *testing.T) *EventRepository {
	t.Helper()
	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })
	return NewEventRepository(testDB)
}

func TestEventRepository_RecordAndRecent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	events := []model.Event{
		{Type: model.EventDeviceConnected, DeviceID: "dev1", Tunnel: "ws_control", ConnID: "c1", At: at},
		{Type: model.EventUIAttached, DeviceID: "dev1", Tunnel: "ws_control", ConnID: "c2", At: at.Add(time.Second)},
		{Type: model.EventDeviceReplaced, DeviceID: "dev1", Tunnel: "ws_control", ConnID: "c1", Detail: "replaced", At: at.Add(2 * time.Second)},
	}
	for _, ev := range events {
		if err := repo.Record(ctx, ev); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}

	got, err := repo.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent() returned %d events; want 2", len(got))
	}
	if got[0].Type != model.EventDeviceReplaced || got[0].Detail != "replaced" {
		t.Errorf("newest event = %+v; want device_replaced", got[0])
	}
	if got[1].Type != model.EventUIAttached || got[1].ConnID != "c2" {
		t.Errorf("second event = %+v; want ui_attached", got[1])
	}
	if !got[0].At.Equal(at.Add(2 * time.Second)) {
		t.Errorf("event time = %v; want %v", got[0].At, at.Add(2*time.Second))
	}
}

func TestEventRepository_RecentDefaultLimit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Record(ctx, model.Event{Type: model.EventClaimRegistered, DeviceID: "dev1"}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	got, err := repo.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(got) != 1 || got[0].At.IsZero() {
		t.Fatalf("Recent() = %+v; want one event with a timestamp", got)
	}
}

func TestEventRepository_RecentCapsLimit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < MaxRecentLimit+5; i++ {
		if err := repo.Record(ctx, model.Event{Type: model.EventDeviceConnected, DeviceID: "dev1"}); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}

	for _, limit := range []int{MaxRecentLimit + 1, 2_000_000_000} {
		got, err := repo.Recent(ctx, limit)
		if err != nil {
			t.Fatalf("Recent(%d) error: %v", limit, err)
		}
		if len(got) != MaxRecentLimit {
			t.Errorf("Recent(%d) returned %d events; want %d", limit, len(got), MaxRecentLimit)
		}
	}
}

func TestOpenOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	database, err := db.Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer database.Close()

	repo := NewEventRepository(database)
	if err := repo.Record(context.Background(), model.Event{Type: model.EventDeviceConnected, DeviceID: "dev1"}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
}

func TestEventCountProperty(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("every recorded event is counted under its key", prop.ForAll(
		func(deviceID, tunnel string, n int) bool {
			key := model.Key{DeviceID: deviceID, Tunnel: tunnel}
			before, err := repo.CountByDevice(ctx, key)
			if err != nil {
				return false
			}
			for i := 0; i < n; i++ {
				ev := model.Event{Type: model.EventUIAttached, DeviceID: deviceID, Tunnel: tunnel}
				if err := repo.Record(ctx, ev); err != nil {
					return false
				}
			}
			after, err := repo.CountByDevice(ctx, key)
			return err == nil && after-before == n
		},
		gen.Identifier(),
		gen.AlphaString(),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}
