// Package influx writes per-tick vehicle telemetry and server performance to
// InfluxDB, falling back to a gzipped line-protocol file when it is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/wro-sim/simlink/internal/config"
	"github.com/wro-sim/simlink/pkg/core"
)

// PerformanceBucket receives server health points.
const PerformanceBucket = "simlink_performance"

// BackupFileName is the line-protocol fallback inside the backup directory.
const BackupFileName = "influx_backup.lp.gz"

// ErrDisabled is returned by Connect when influx.enabled is false.
var ErrDisabled = errors.New("influx is disabled")

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writers      map[string]influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	BucketNames  []string
	Logger       zerolog.Logger
	BackupPath   string

	cfg        config.InfluxConfig
	mu         sync.Mutex
	backupFile *os.File
}

// NewManager creates a new InfluxDB manager.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger) *Manager {
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		BucketNames: []string{cfg.Bucket, PerformanceBucket},
		Logger:      log,
		BackupPath:  filepath.Join(cfg.BackupDir, BackupFileName),
		cfg:         cfg,
	}
}

// Connect establishes a connection to InfluxDB. An unreachable server is not
// an error: points go to the backup file instead.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		m.Logger.Info().Str("backupPath", m.BackupPath).
			Msg("Failed to reach InfluxDB, writing to backup file")
		if err := m.openBackup(); err != nil {
			return err
		}
		return nil
	}

	m.IsValid = true
	if err := m.setupOrganizationAndBuckets(ctx); err != nil {
		return err
	}
	m.CreateWriters()
	m.Logger.Info().Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.BackupPath), 0755); err != nil {
		return fmt.Errorf("error creating backup dir: %w", err)
	}
	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBuckets(ctx context.Context) error {
	orgs := m.Client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.Logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", m.cfg.Org).Msg("Error creating organization")
			return err
		}
	}

	// 30 day retention; runs are short and the relational store keeps the rest.
	for _, bucket := range m.BucketNames {
		if _, err := m.Client.BucketsAPI().FindBucketByName(ctx, bucket); err == nil {
			continue
		}
		m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, org, bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 30,
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
			return err
		}
	}

	return nil
}

// CreateWriters creates write APIs for all configured buckets.
func (m *Manager) CreateWriters() {
	for _, bucket := range m.BucketNames {
		w := m.Client.WriteAPI(m.cfg.Org, bucket)
		m.Writers[bucket] = w

		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, w.Errors())
	}

	m.Logger.Debug().Strs("buckets", m.BucketNames).Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(bucket string, point *influxdb2_write.Point) error {
	if m.IsValid {
		w, ok := m.Writers[bucket]
		if !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		w.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(line)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// WriteVehicleState writes one telemetry point for the run's bucket.
func (m *Manager) WriteVehicleState(run *core.Run, s *core.VehicleState) error {
	return m.WritePoint(m.cfg.Bucket, VehicleStatePoint(run, s))
}

// Close flushes pending writes and closes the client and backup file.
func (m *Manager) Close() error {
	for _, w := range m.Writers {
		w.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return nil
	}
	err := errors.Join(m.BackupWriter.Close(), m.backupFile.Close())
	m.BackupWriter = nil
	m.backupFile = nil
	return err
}

// VehicleStatePoint converts a vehicle state into a "vehicle_state" point
// tagged with the run.
func VehicleStatePoint(run *core.Run, s *core.VehicleState) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement("vehicle_state").
		AddField("tick", s.Tick).
		AddField("x", s.Position.X).
		AddField("z", s.Position.Z).
		AddField("heading", s.Heading).
		AddField("orientation", s.Orientation).
		AddField("speed", s.Speed).
		AddField("steering", s.Steering).
		AddField("range_front", s.Ranges.Front).
		AddField("range_back", s.Ranges.Back).
		AddField("range_left", s.Ranges.Left).
		AddField("range_right", s.Ranges.Right).
		AddField("peers", s.Peers).
		SetTime(s.Time)
	if run != nil {
		p.AddTag("run", run.ID).AddTag("tag", run.Tag)
	}
	if s.Latitude != 0 || s.Longitude != 0 {
		p.AddField("lat", s.Latitude).AddField("lon", s.Longitude)
	}
	return p
}

// PerformancePoint is one server health sample.
type PerformancePoint struct {
	Time          time.Time
	Ticks         uint64
	Peers         int
	QueuedWrites  int
	DroppedWrites uint64
	DBWrite       time.Duration
}

// Point converts the sample into a "server_performance" point.
func (pp PerformancePoint) Point() *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement("server_performance").
		AddField("ticks", pp.Ticks).
		AddField("peers", pp.Peers).
		AddField("queued_writes", pp.QueuedWrites).
		AddField("dropped_writes", pp.DroppedWrites).
		AddField("db_write_ms", float64(pp.DBWrite.Microseconds())/1000).
		SetTime(pp.Time)
}

// WritePerformance writes a health sample to PerformanceBucket.
func (m *Manager) WritePerformance(pp PerformancePoint) error {
	return m.WritePoint(PerformanceBucket, pp.Point())
}
