// Package influx writes run and frame metrics to InfluxDB, or to a gzip
// line-protocol backup file when the server is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
	"github.com/skyblocks/flightdeck/internal/config"
	"github.com/skyblocks/flightdeck/pkg/core"
)

// Bucket names.
const (
	BucketRuns        = "flight_runs"
	BucketPerformance = "flightdeck_performance"
)

// DefaultBucketNames are the buckets created on connect.
var DefaultBucketNames = []string{BucketRuns, BucketPerformance}

// ErrDisabled is returned by Connect when influx is switched off.
var ErrDisabled = errors.New("influx is disabled")

// Manager handles InfluxDB connections and writes.
type Manager struct {
	cfg config.InfluxConfig

	Client      influxdb2.Client
	Writers     map[string]influxdb2_api.WriteAPI
	IsValid     bool
	BucketNames []string
	Logger      zerolog.Logger
	BackupPath  string

	mu           sync.Mutex
	backupFile   *os.File
	BackupWriter *gzip.Writer
}

// NewManager creates a new InfluxDB manager.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		cfg:         cfg,
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		BucketNames: DefaultBucketNames,
		Logger:      log,
		BackupPath:  backupPath,
	}
}

// URL is the server address from the configuration.
func (m *Manager) URL() string {
	return fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port)
}

// Connect establishes a connection to InfluxDB. When the server does not
// answer, points go to the backup file instead.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.Client = influxdb2.NewClientWithOptions(
		m.URL(),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.Logger.Info().Str("backupPath", m.BackupPath).
			Msg("Failed to initialize InfluxDB client, writing to backup file")
		if err := m.openBackup(); err != nil {
			return err
		}
		return nil
	}

	if err := m.setupOrganizationAndBuckets(ctx); err != nil {
		return err
	}
	m.CreateWriters()
	m.IsValid = true
	m.Logger.Info().Str("url", m.URL()).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter != nil {
		return nil
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
	orgName := m.cfg.Org

	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	// ensure buckets exist with 90 day retention
	for _, bucket := range m.BucketNames {
		if _, err := m.Client.BucketsAPI().FindBucketByName(ctx, bucket); err == nil {
			continue
		}
		m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 90, // 90 days
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
		m.Logger.Trace().Str("bucket", bucket).Msg("Creating InfluxDB writer")
		m.Writers[bucket] = m.Client.WriteAPI(m.cfg.Org, bucket)

		errorsCh := m.Writers[bucket].Errors()
		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, errorsCh)
	}
	m.Logger.Debug().Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB or backup file.
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
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}
	// PointToLineProtocol already terminates the line
	lineProtocol := strings.TrimRight(influxdb2_write.PointToLineProtocol(point, time.Nanosecond), "\n") + "\n"
	if _, err := m.BackupWriter.Write([]byte(lineProtocol)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Close flushes pending writes and releases the client or backup file.
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
	err := m.BackupWriter.Close()
	if cerr := m.backupFile.Close(); err == nil {
		err = cerr
	}
	m.BackupWriter = nil
	return err
}

// RunPoint is the end-of-run measurement.
func RunPoint(run core.Run, s core.RunSummary) *influxdb2_write.Point {
	return influxdb2.NewPoint(
		"run",
		map[string]string{
			"program": run.ProgramName,
			"state":   string(s.State),
		},
		map[string]any{
			"run_id":             run.ID,
			"instruction_count":  run.InstructionCount,
			"instructions_flown": s.InstructionsFlown,
			"simulated_seconds":  s.SimulatedSeconds,
			"frames":             int64(s.Frames),
			"distance_flown":     s.DistanceFlown,
			"max_altitude":       s.MaxAltitude,
			"left_flight_area":   s.LeftFlightArea,
		},
		s.EndTime,
	)
}

// FramePoint is the pose of one frame.
func FramePoint(s core.Snapshot) *influxdb2_write.Point {
	return influxdb2.NewPoint(
		"frame",
		map[string]string{"run_id": s.RunID},
		map[string]any{
			"frame":         int64(s.Frame),
			"elapsed":       s.Elapsed,
			"instruction":   s.InstructionIndex,
			"x":             s.X,
			"y":             s.Y,
			"z":             s.Z,
			"heading":       s.HeadingDegrees,
			"light":         string(s.Light),
			"flying":        s.Flying,
			"out_of_bounds": s.OutOfBounds,
		},
		s.Time,
	)
}

// EventPoint is a lifecycle event of a run.
func EventPoint(e core.RunEvent) *influxdb2_write.Point {
	return influxdb2.NewPoint(
		"event",
		map[string]string{"run_id": e.RunID, "type": string(e.Type)},
		map[string]any{
			"elapsed":     e.Elapsed,
			"instruction": e.InstructionIndex,
			"message":     e.Message,
		},
		e.Time,
	)
}
