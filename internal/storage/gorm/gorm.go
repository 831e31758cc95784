// Package gormstorage implements the storage.Backend interface using GORM
// (PostgreSQL or SQLite) with internal queues and a background DB writer
// goroutine.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/wro-sim/simlink/internal/database"
	"github.com/wro-sim/simlink/internal/model"
	"github.com/wro-sim/simlink/internal/model/convert"
	"github.com/wro-sim/simlink/internal/queue"
	"github.com/wro-sim/simlink/pkg/core"
)

// ErrNoRun is returned when recording before StartRun.
var ErrNoRun = errors.New("no run started")

// DefaultFlushInterval is how often queued records are written.
const DefaultFlushInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger

	FlushInterval time.Duration // 0 means DefaultFlushInterval
	MaxQueued     int           // per queue; 0 means unbounded
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	VehicleStates *queue.Queue[model.VehicleState]
	Controls      *queue.Queue[model.ControlEvent]
	PeerEvents    *queue.Queue[model.PeerEvent]
}

func newQueues() *queues {
	return &queues{
		VehicleStates: queue.New[model.VehicleState](),
		Controls:      queue.New[model.ControlEvent](),
		PeerEvents:    queue.New[model.PeerEvent](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	queues *queues

	mu      sync.Mutex // guards the runs and serializes flushes
	run     *model.Run
	coreRun *core.Run
	runID   atomic.Uint64

	dropped           atomic.Uint64
	lastWriteDuration atomic.Int64

	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("no database connection")
	}

	if err := database.Migrate(b.deps.DB); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	b.deps.Logger.Info("Database setup complete", "dialect", b.deps.DB.Name())

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

// Close stops the DB writer goroutine after a final flush.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	b.stopOnce.Do(func() { close(b.stopChan) })
	<-b.done
	return nil
}

// StartRun writes any records of the previous run, then inserts run.
func (b *Backend) StartRun(run *core.Run) error {
	b.Flush()

	gormRun := convert.CoreToRun(*run)
	if err := b.deps.DB.Create(&gormRun).Error; err != nil {
		return fmt.Errorf("failed to insert new run: %w", err)
	}

	b.mu.Lock()
	b.run = &gormRun
	b.coreRun = run
	b.mu.Unlock()
	b.runID.Store(uint64(gormRun.ID))
	return nil
}

// EndRun writes every queued record and stores the run's end time, or the
// current time when the run has none.
func (b *Backend) EndRun() error {
	b.mu.Lock()
	run, coreRun := b.run, b.coreRun
	b.mu.Unlock()
	if run == nil {
		return ErrNoRun
	}

	b.Flush()

	end := coreRun.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	err := b.deps.DB.Model(&model.Run{}).Where("id = ?", run.ID).Update("end_time", end).Error
	if err != nil {
		return fmt.Errorf("failed to update run end time: %w", err)
	}
	return nil
}

// RecordVehicleState converts and queues a vehicle state.
func (b *Backend) RecordVehicleState(s *core.VehicleState) error {
	id, err := b.currentRun()
	if err != nil {
		return err
	}
	gormObj := convert.CoreToVehicleState(*s)
	gormObj.RunID = id
	b.countDropped(b.queues.VehicleStates.PushBounded(b.deps.MaxQueued, gormObj))
	return nil
}

// RecordControl converts and queues a control event.
func (b *Backend) RecordControl(e *core.ControlEvent) error {
	id, err := b.currentRun()
	if err != nil {
		return err
	}
	gormObj := convert.CoreToControlEvent(*e)
	gormObj.RunID = id
	b.countDropped(b.queues.Controls.PushBounded(b.deps.MaxQueued, gormObj))
	return nil
}

// RecordPeerEvent converts and queues a peer event.
func (b *Backend) RecordPeerEvent(e *core.PeerEvent) error {
	id, err := b.currentRun()
	if err != nil {
		return err
	}
	gormObj := convert.CoreToPeerEvent(*e)
	gormObj.RunID = id
	b.countDropped(b.queues.PeerEvents.PushBounded(b.deps.MaxQueued, gormObj))
	return nil
}

// QueueLengths returns the current backlog of each write queue.
func (b *Backend) QueueLengths() model.WriteQueueLengths {
	return model.WriteQueueLengths{
		VehicleStates: uint32(b.queues.VehicleStates.Len()),
		Controls:      uint32(b.queues.Controls.Len()),
		PeerEvents:    uint32(b.queues.PeerEvents.Len()),
	}
}

// Dropped returns how many records were discarded because a queue was full.
func (b *Backend) Dropped() uint64 {
	return b.dropped.Load()
}

// GetLastDBWriteDuration returns how long the last write cycle took.
func (b *Backend) GetLastDBWriteDuration() time.Duration {
	return time.Duration(b.lastWriteDuration.Load())
}

// ListRuns returns every recorded run, newest first.
func (b *Backend) ListRuns(ctx context.Context) ([]core.Run, error) {
	var runs []model.Run
	if err := b.deps.DB.WithContext(ctx).Order("start_time desc").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	out := make([]core.Run, 0, len(runs))
	for _, r := range runs {
		out = append(out, convert.RunToCore(r))
	}
	return out, nil
}

// LoadVehicleStates returns the recorded states of the run with the given id,
// in tick order.
func (b *Backend) LoadVehicleStates(ctx context.Context, runUID string) ([]core.VehicleState, error) {
	db := b.deps.DB.WithContext(ctx)

	var run model.Run
	if err := db.Where("uid = ?", runUID).First(&run).Error; err != nil {
		return nil, fmt.Errorf("failed to find run %s: %w", runUID, err)
	}
	var states []model.VehicleState
	if err := db.Where("run_id = ?", run.ID).Order("tick").Find(&states).Error; err != nil {
		return nil, fmt.Errorf("failed to load vehicle states: %w", err)
	}
	out := make([]core.VehicleState, 0, len(states))
	for _, s := range states {
		out = append(out, convert.VehicleStateToCore(s))
	}
	return out, nil
}

func (b *Backend) currentRun() (uint, error) {
	id := uint(b.runID.Load())
	if id == 0 {
		return 0, ErrNoRun
	}
	return id, nil
}

func (b *Backend) countDropped(n int) {
	if n > 0 {
		b.dropped.Add(uint64(n))
	}
}

// writeQueue writes all items from a queue to the database in a transaction.
// Failed batches go back to the front of the queue for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) int {
	if q.Empty() {
		return 0
	}

	tx := db.Begin()
	items := q.Drain()
	if err := tx.Create(&items).Error; err != nil {
		log.Error("Error creating records", "table", name, "count", len(items), "error", err)
		tx.Rollback()
		q.Requeue(items)
		return 0
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Error committing records", "table", name, "error", err)
		q.Requeue(items)
		return 0
	}
	return len(items)
}

// Flush writes every queued record now and records a performance row.
func (b *Backend) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()

	backlog := b.QueueLengths()
	if backlog == (model.WriteQueueLengths{}) {
		return
	}

	start := time.Now()
	db, log := b.deps.DB, b.deps.Logger
	written := writeQueue(db, b.queues.VehicleStates, "vehicle states", log)
	written += writeQueue(db, b.queues.Controls, "control events", log)
	written += writeQueue(db, b.queues.PeerEvents, "peer events", log)
	elapsed := time.Since(start)
	b.lastWriteDuration.Store(int64(elapsed))

	if b.run == nil || written == 0 {
		return
	}
	perf := model.Performance{
		Time:                start,
		RunID:               b.run.ID,
		WriteQueueLengths:   backlog,
		LastWriteDurationMs: float32(elapsed.Microseconds()) / 1000,
	}
	if err := db.Create(&perf).Error; err != nil {
		log.Error("Error creating performance record", "error", err)
	}
}

// writeLoop periodically drains queues into the DB until Close.
func (b *Backend) writeLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			b.Flush()
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}
