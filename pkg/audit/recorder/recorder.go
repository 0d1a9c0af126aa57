// Package recorder implements the engine's audit sink on top of an audit
// storage backend. Writes happen on a background worker so rule processing
// never blocks on storage.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"revcycle-hq/callisto/pkg/audit"
	"revcycle-hq/callisto/pkg/rules/engine"
)

// Config contains configuration for the audit recorder.
type Config struct {
	// Enabled enables audit recording.
	Enabled bool `yaml:"enabled"`

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout is the timeout for writing a record to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder converts engine execution results into audit records and writes
// them asynchronously. It implements engine.AuditSink: Record never blocks,
// dropping records when the buffer is full.
type Recorder struct {
	storage    audit.Storage
	config     *Config
	recordChan chan *audit.ExecutionRecord
	wg         sync.WaitGroup
	done       chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger
}

// NewRecorder creates an audit recorder with the provided storage backend.
func NewRecorder(storage audit.Storage, config *Config, logger *slog.Logger) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recorder{
		storage:    storage,
		config:     config,
		recordChan: make(chan *audit.ExecutionRecord, config.AsyncBuffer),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "audit.recorder")),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("audit recorder initialized",
		slog.Bool("enabled", config.Enabled),
		slog.Int("async_buffer", config.AsyncBuffer),
		slog.Duration("write_timeout", config.WriteTimeout))

	return r
}

// Record enqueues one execution result for writing. It returns immediately;
// when the buffer is full the record is dropped with an error log.
func (r *Recorder) Record(result *engine.ExecutionResult) {
	if !r.config.Enabled || result == nil {
		return
	}

	record := audit.FromResult(result)

	select {
	case r.recordChan <- record:
	case <-r.done:
		r.logger.Warn("recorder shutting down, dropping record",
			slog.String("record_id", record.ID),
			slog.String("rule_id", record.RuleID))
	default:
		r.logger.Error("audit channel full, dropping record",
			slog.String("record_id", record.ID),
			slog.String("rule_id", record.RuleID),
			slog.Int("channel_capacity", r.config.AsyncBuffer))
	}
}

// Close shuts down the recorder, draining the channel and waiting for all
// pending writes to complete.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("shutting down audit recorder")
		close(r.done)
		r.wg.Wait()
	})
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.recordChan:
			r.writeRecord(record)

		case <-r.done:
			// Drain remaining records before exit.
			for {
				select {
				case record := <-r.recordChan:
					r.writeRecord(record)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeRecord(record *audit.ExecutionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, record); err != nil {
		r.logger.Error("failed to store audit record",
			slog.String("record_id", record.ID),
			slog.String("rule_id", record.RuleID),
			slog.String("error", err.Error()))
		return
	}

	duration := time.Since(start)
	r.logger.Debug("execution recorded",
		slog.String("record_id", record.ID),
		slog.String("rule_id", record.RuleID),
		slog.String("entity_id", record.EntityID),
		slog.Int64("duration_ms", duration.Milliseconds()))

	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow audit write",
			slog.String("record_id", record.ID),
			slog.Int64("duration_ms", duration.Milliseconds()))
	}
}
