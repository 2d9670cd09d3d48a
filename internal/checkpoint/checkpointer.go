package checkpoint

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StateProvider is implemented by the matcher: it reports the current
// partition windows so the checkpointer can serialize them.
type StateProvider interface {
	CheckpointState() (*State, error)
}

// Checkpointer manages automatic and manual checkpointing of matcher
// partition state.
type Checkpointer struct {
	store *Store
	log   *slog.Logger

	provider StateProvider

	periodicInterval int // checkpoint every N detections processed (0 = disabled)

	mu             sync.Mutex
	detectionsSince int
}

// Config configures the checkpointer.
type Config struct {
	PeriodicDetections int // checkpoint every N detections (0 = disabled)
}

// NewCheckpointer creates a new checkpointer backed by db.
func NewCheckpointer(db *sql.DB, cfg Config, log *slog.Logger) (*Checkpointer, error) {
	store, err := NewStore(db)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	return &Checkpointer{
		store:            store,
		log:              log,
		periodicInterval: cfg.PeriodicDetections,
	}, nil
}

// SetProvider configures where checkpoint state is collected from.
func (c *Checkpointer) SetProvider(p StateProvider) {
	c.provider = p
}

// OnDetection should be called after each detection is folded into the
// matcher's partition windows. It triggers periodic checkpointing if
// configured.
func (c *Checkpointer) OnDetection() {
	if c.periodicInterval <= 0 {
		return
	}

	c.mu.Lock()
	c.detectionsSince++
	shouldCheckpoint := c.detectionsSince >= c.periodicInterval
	if shouldCheckpoint {
		c.detectionsSince = 0
	}
	c.mu.Unlock()

	if shouldCheckpoint {
		go func() {
			if _, err := c.Create(TriggerPeriodic, ""); err != nil {
				c.log.Error("periodic checkpoint failed", "error", err)
			}
		}()
	}
}

// Create makes a new checkpoint with the given trigger and optional note.
func (c *Checkpointer) Create(trigger Trigger, note string) (*Checkpoint, error) {
	if c.provider == nil {
		return nil, fmt.Errorf("no state provider configured")
	}

	state, err := c.provider.CheckpointState()
	if err != nil {
		return nil, fmt.Errorf("collect state: %w", err)
	}

	cp, err := c.store.Create(trigger, note, state)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	c.log.Info("checkpoint created",
		"id", cp.ID.String()[:8],
		"trigger", trigger,
		"partitions", cp.PartitionCount,
		"detections", cp.DetectionCount,
		"bytes", cp.ByteSize,
	)

	return cp, nil
}

// CreateShutdown creates a checkpoint during graceful shutdown.
func (c *Checkpointer) CreateShutdown() (*Checkpoint, error) {
	return c.Create(TriggerShutdown, "graceful shutdown")
}

// Get retrieves a checkpoint by ID.
func (c *Checkpointer) Get(id uuid.UUID) (*Checkpoint, error) {
	return c.store.Get(id)
}

// List returns recent checkpoints.
func (c *Checkpointer) List(limit int) ([]*Checkpoint, error) {
	return c.store.List(limit)
}

// Latest returns the most recent checkpoint.
func (c *Checkpointer) Latest() (*Checkpoint, error) {
	return c.store.Latest()
}

// Delete removes a checkpoint.
func (c *Checkpointer) Delete(id uuid.UUID) error {
	return c.store.Delete(id)
}

// Prune removes old checkpoints.
func (c *Checkpointer) Prune(olderThan time.Duration, minKeep int) (int, error) {
	return c.store.Prune(olderThan, minKeep)
}

// Restore loads a checkpoint's partition state so the matcher can
// rehydrate its in-memory windows after a restart.
func (c *Checkpointer) Restore(id uuid.UUID) (*State, error) {
	cp, err := c.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}

	c.log.Info("restoring checkpoint",
		"id", cp.ID.String()[:8],
		"created", cp.CreatedAt.Format(time.RFC3339),
		"partitions", cp.PartitionCount,
		"detections", cp.DetectionCount,
	)

	return cp.State, nil
}

// StartupStatus summarizes persisted checkpoint state for startup logging.
type StartupStatus struct {
	Partitions     int        `json:"partitions"`
	Detections     int        `json:"detections"`
	LastCheckpoint *time.Time `json:"last_checkpoint,omitempty"`
}

// GetStartupStatus collects state info for startup logging.
func (c *Checkpointer) GetStartupStatus() (*StartupStatus, error) {
	status := &StartupStatus{}

	latest, err := c.store.Latest()
	if err != nil {
		return nil, err
	}
	if latest != nil {
		status.Partitions = latest.PartitionCount
		status.Detections = latest.DetectionCount
		status.LastCheckpoint = &latest.CreatedAt
	}

	return status, nil
}

// LogStartupStatus logs the most recently persisted checkpoint, if any.
func (c *Checkpointer) LogStartupStatus() {
	status, err := c.GetStartupStatus()
	if err != nil {
		c.log.Warn("failed to get startup status", "error", err)
		return
	}

	if status.LastCheckpoint == nil {
		c.log.Info("starting fresh (no persisted checkpoint)")
		return
	}

	c.log.Info("resuming from persisted checkpoint",
		"partitions", status.Partitions,
		"detections", status.Detections,
		"last_checkpoint", status.LastCheckpoint.Format(time.RFC3339),
	)
}
