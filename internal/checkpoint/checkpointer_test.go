package checkpoint

import (
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetStartupStatus_Empty(t *testing.T) {
	db := openTestDB(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	cp, err := NewCheckpointer(db, Config{}, logger)
	if err != nil {
		t.Fatal(err)
	}

	status, err := cp.GetStartupStatus()
	if err != nil {
		t.Fatalf("GetStartupStatus failed: %v", err)
	}
	if status.Partitions != 0 || status.Detections != 0 {
		t.Errorf("expected empty status, got %+v", status)
	}
	if status.LastCheckpoint != nil {
		t.Error("expected nil LastCheckpoint")
	}
}

func TestCreateAndRestore(t *testing.T) {
	db := openTestDB(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	cp, err := NewCheckpointer(db, Config{}, logger)
	if err != nil {
		t.Fatal(err)
	}

	state := &State{
		Partitions: []PartitionState{
			{
				Bucket:       -15000,
				HighWaterMJD: 60123.5,
				Detections: []BufferedDetection{
					{DetectionID: "atlas-1", Survey: "atlas", RADeg: 10.1, DecDeg: -15.2, MJD: 60123.4},
				},
			},
		},
	}
	cp.SetProvider(StateProviderFunc(func() (*State, error) { return state, nil }))

	created, err := cp.Create(TriggerManual, "test checkpoint")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.PartitionCount != 1 || created.DetectionCount != 1 {
		t.Errorf("unexpected counts: %+v", created)
	}

	restored, err := cp.Restore(created.ID)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if len(restored.Partitions) != 1 || restored.Partitions[0].Bucket != -15000 {
		t.Errorf("restored state mismatch: %+v", restored)
	}

	status, err := cp.GetStartupStatus()
	if err != nil {
		t.Fatalf("GetStartupStatus failed: %v", err)
	}
	if status.Partitions != 1 || status.Detections != 1 {
		t.Errorf("unexpected startup status: %+v", status)
	}
}

func TestStartupStatus_Struct(t *testing.T) {
	now := time.Now()
	status := StartupStatus{
		Partitions:     5,
		Detections:     42,
		LastCheckpoint: &now,
	}

	if status.Partitions != 5 {
		t.Error("Partitions mismatch")
	}
	if status.Detections != 42 {
		t.Error("Detections mismatch")
	}
	if status.LastCheckpoint == nil || !status.LastCheckpoint.Equal(now) {
		t.Error("LastCheckpoint mismatch")
	}
}
