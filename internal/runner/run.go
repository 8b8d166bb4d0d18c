package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/civicgraph/harvester/internal/crawler"
)

// RunStatus is the lifecycle state of a queued run.
type RunStatus string

// Run lifecycle states.
const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
	StatusCanceled  RunStatus = "canceled"
)

// Run is one crawl run as tracked by the registry.
type Run struct {
	ID        string             `json:"id"`
	Topic     string             `json:"topic"`
	Status    RunStatus          `json:"status"`
	ErrorText string             `json:"error,omitempty"`
	Report    *crawler.RunReport `json:"report,omitempty"`
	Created   time.Time          `json:"created"`
	Started   *time.Time         `json:"started,omitempty"`
	Finished  *time.Time         `json:"finished,omitempty"`
}

// Request pairs a run ID with the crawl configuration the worker will use.
type Request struct {
	Config crawler.RunConfig
}

// Registry errors.
var (
	ErrRunExists   = errors.New("run already exists")
	ErrRunNotFound = errors.New("run not found")
)

// Registry tracks runs in memory: their status, final report, and the cancel
// function of a running crawl.
type Registry struct {
	clock   crawler.Clock
	mu      sync.RWMutex
	runs    map[string]Run
	cancels map[string]context.CancelFunc
}

// NewRegistry constructs an empty registry.
func NewRegistry(clock crawler.Clock) *Registry {
	return &Registry{
		clock:   clock,
		runs:    make(map[string]Run),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Create registers a run in queued state.
func (r *Registry) Create(id, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[id]; exists {
		return ErrRunExists
	}
	r.runs[id] = Run{
		ID:      id,
		Topic:   topic,
		Status:  StatusQueued,
		Created: r.clock.Now(),
	}
	return nil
}

// MarkRunning transitions a run to running and stores its cancel function.
func (r *Registry) MarkRunning(id string, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	now := r.clock.Now()
	run.Status = StatusRunning
	run.Started = &now
	r.runs[id] = run
	r.cancels[id] = cancel
	return nil
}

// Finish records the terminal state of a run and drops its cancel function.
func (r *Registry) Finish(id string, status RunStatus, errText string, report *crawler.RunReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	now := r.clock.Now()
	run.Status = status
	run.ErrorText = errText
	run.Report = report
	run.Finished = &now
	r.runs[id] = run
	delete(r.cancels, id)
	return nil
}

// Cancel requests cancellation of a run. Queued runs are marked canceled
// directly; running runs get their context canceled and the worker records
// the terminal state.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	if cancel, running := r.cancels[id]; running {
		cancel()
		return nil
	}
	if run.Status == StatusQueued {
		now := r.clock.Now()
		run.Status = StatusCanceled
		run.Finished = &now
		r.runs[id] = run
	}
	return nil
}

// Get returns a run by ID.
func (r *Registry) Get(id string) (Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return run, nil
}
