package executor

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/askdb/askdb/internal/fault"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/storage"
)

// ErrExecutionNotFound is returned when polling an unknown execution.
var ErrExecutionNotFound = errors.New("execution not found")

// Registry runs statements in the background and keeps their state in
// memory for polling. Completed results are optionally staged to an
// object store so they outlive the process.
type Registry struct {
	engine       Engine
	store        storage.ObjectStore
	resultPrefix string
	timeout      time.Duration
	logger       *slog.Logger

	mu         sync.RWMutex
	executions map[string]*Execution
}

type RegistryConfig struct {
	// Store is optional; nil disables result staging.
	Store        storage.ObjectStore
	ResultPrefix string
	Timeout      time.Duration
}

func NewRegistry(engine Engine, cfg RegistryConfig, logger *slog.Logger) *Registry {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	prefix := cfg.ResultPrefix
	if prefix == "" {
		prefix = "executions"
	}
	return &Registry{
		engine:       engine,
		store:        cfg.Store,
		resultPrefix: prefix,
		timeout:      timeout,
		logger:       logger,
		executions:   map[string]*Execution{},
	}
}

// Start launches the statement in the background and returns its
// execution ID immediately.
func (r *Registry) Start(database, sql string) string {
	id := newExecutionID()
	execution := &Execution{
		ID:        id,
		Status:    StatusPending,
		SQL:       sql,
		Database:  database,
		StartedAt: time.Now(),
	}

	r.mu.Lock()
	r.executions[id] = execution
	r.mu.Unlock()

	go r.run(execution)
	return id
}

// Fetch returns a snapshot of the execution's current state.
func (r *Registry) Fetch(id string) (Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	execution, ok := r.executions[id]
	if !ok {
		return Execution{}, ErrExecutionNotFound
	}
	snapshot := *execution
	return snapshot, nil
}

func (r *Registry) run(execution *Execution) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	result, err := r.engine.Execute(ctx, execution.Database, execution.SQL)
	observability.ObserveExecution(time.Since(start))
	completed := time.Now()

	r.mu.Lock()
	execution.CompletedAt = &completed
	if err != nil {
		// A run that outlives the deadline is reported as a timeout
		// so pollers can tell it apart from a failed statement.
		kind := fault.ExecutionFailed
		message := "background execution failed"
		if errors.Is(err, context.DeadlineExceeded) {
			kind = fault.Timeout
			message = "background execution timed out"
		}
		execution.Status = StatusFailed
		execution.Error = fault.Wrap(kind, message, err).Error()
		execution.ErrorKind = string(kind)
		r.mu.Unlock()
		return
	}
	execution.Status = StatusSucceeded
	execution.Result = &result
	id := execution.ID
	r.mu.Unlock()

	r.stageResult(ctx, id, result)
}

// stageResult persists the result JSON for later retrieval. Best
// effort: a failed write is logged and the in-memory result remains
// authoritative.
func (r *Registry) stageResult(ctx context.Context, id string, result Result) {
	if r.store == nil {
		return
	}
	key, err := storage.BuildExecutionResultPath(r.resultPrefix, id)
	if err != nil {
		r.logger.Warn("build execution result path failed",
			slog.String("execution_id", id), slog.String("error", err.Error()))
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		r.logger.Warn("encode execution result failed",
			slog.String("execution_id", id), slog.String("error", err.Error()))
		return
	}
	if _, err := r.store.Put(ctx, key, bytes.NewReader(raw), int64(len(raw)), storage.PutOptions{ContentType: "application/json"}); err != nil {
		r.logger.Warn("stage execution result failed",
			slog.String("execution_id", id), slog.String("error", err.Error()))
	}
}

func newExecutionID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "exec-" + hex.EncodeToString([]byte(time.Now().Format("150405.000")))
	}
	return "exec-" + hex.EncodeToString(buf)
}
