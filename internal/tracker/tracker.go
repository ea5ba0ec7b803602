// Package tracker reconciles a recording's fetched snapshot with the live
// push-event stream into one coherent view of pipeline progress.
package tracker

import (
	"context"
	"log/slog"
	"sync"

	"tutorcast/internal/api"
	"tutorcast/internal/events"
	"tutorcast/internal/logging"
	"tutorcast/internal/pipeline"
)

// Fetcher retrieves recording snapshots. *api.Client satisfies it.
type Fetcher interface {
	Recording(ctx context.Context, id string) (*api.Recording, error)
}

// EventSource is the push-event surface the tracker subscribes through.
// *events.Client satisfies it.
type EventSource interface {
	JoinRecording(ctx context.Context, recordingID string) error
	LeaveRecording(recordingID string) error
	OnProcessingUpdate(recordingID string, fn func(events.ProcessingUpdate)) func()
	OnProcessingError(recordingID string, fn func(events.ProcessingError)) func()
}

// State is the reconciled view of one recording. Recording is the last
// fetched snapshot; CurrentStep is the live step signal, which can run
// ahead of the snapshot. FailedAtStep preserves the step that was current
// when a failure event arrived.
type State struct {
	Recording       *api.Recording
	Loading         bool
	Err             string
	CurrentStep     pipeline.Step
	FailedAtStep    pipeline.Step
	ProcessingError string
}

// StageStates projects the state onto the fixed pipeline stages.
func (s State) StageStates() []pipeline.StepState {
	var status pipeline.Status
	if s.Recording != nil {
		status = s.Recording.Status
	}
	return pipeline.ProjectSteps(status, s.CurrentStep, s.FailedAtStep)
}

// Tracker follows one recording. Event callbacks mutate state immediately;
// every event also triggers a snapshot re-fetch, since the snapshot is the
// source of truth for all fields other than the transient step.
type Tracker struct {
	recordingID string
	fetcher     Fetcher
	events      EventSource
	logger      *slog.Logger
	onChange    func(State)

	mu          sync.Mutex
	state       State
	generation  uint64
	started     bool
	closed      bool
	ctx         context.Context
	unsubUpdate func()
	unsubError  func()
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithOnChange registers a callback invoked after every state mutation with
// a copy of the new state. Invoked from the mutating goroutine.
func WithOnChange(fn func(State)) Option {
	return func(t *Tracker) { t.onChange = fn }
}

// WithLogger sets the tracker's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New builds a tracker for one recording id. An empty id yields an inert
// tracker whose Start is a no-op.
func New(recordingID string, fetcher Fetcher, source EventSource, opts ...Option) *Tracker {
	t := &Tracker{
		recordingID: recordingID,
		fetcher:     fetcher,
		events:      source,
		logger:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start fetches the initial snapshot, seeds the live step from it, joins
// the recording's topic and registers both event listeners.
func (t *Tracker) Start(ctx context.Context) error {
	if t.recordingID == "" {
		return nil
	}

	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = true
	t.ctx = ctx
	t.generation++
	gen := t.generation
	t.state.Loading = true
	t.mu.Unlock()

	// listeners first so nothing pushed during the join is missed
	unsubUpdate := t.events.OnProcessingUpdate(t.recordingID, t.handleUpdate)
	unsubError := t.events.OnProcessingError(t.recordingID, t.handleError)
	t.mu.Lock()
	t.unsubUpdate = unsubUpdate
	t.unsubError = unsubError
	t.mu.Unlock()

	if err := t.events.JoinRecording(ctx, t.recordingID); err != nil {
		// live updates degrade to polling via Refetch; the snapshot still works
		t.logger.Warn("join recording topic failed", "recording", t.recordingID, "error", err)
	}

	t.fetch(ctx, gen, true)
	return nil
}

// Refetch re-synchronizes the snapshot on demand, e.g. after a
// user-triggered action.
func (t *Tracker) Refetch(ctx context.Context) {
	t.mu.Lock()
	gen := t.generation
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return
	}
	t.fetch(ctx, gen, false)
}

// State returns a copy of the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Close unregisters both listeners and leaves the topic. In-flight fetches
// are discarded by the generation guard.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.generation++
	unsubUpdate := t.unsubUpdate
	unsubError := t.unsubError
	t.mu.Unlock()

	if unsubUpdate != nil {
		unsubUpdate()
	}
	if unsubError != nil {
		unsubError()
	}
	if t.recordingID != "" {
		if err := t.events.LeaveRecording(t.recordingID); err != nil {
			t.logger.Warn("leave recording topic failed", "recording", t.recordingID, "error", err)
		}
	}
}

func (t *Tracker) handleUpdate(update events.ProcessingUpdate) {
	t.mutate(func(s *State) {
		s.CurrentStep = update.Step
	})
	t.refetchAsync()
}

// handleError captures the step current at the moment of failure before the
// live step is overwritten with the failed marker; the failure event itself
// does not carry the failed step.
func (t *Tracker) handleError(procErr events.ProcessingError) {
	t.mutate(func(s *State) {
		if s.CurrentStep != "" && s.CurrentStep != pipeline.StepFailed {
			s.FailedAtStep = s.CurrentStep
		}
		s.CurrentStep = pipeline.StepFailed
		s.ProcessingError = procErr.Error
	})
	t.refetchAsync()
}

func (t *Tracker) refetchAsync() {
	t.mu.Lock()
	gen := t.generation
	ctx := t.ctx
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go t.fetch(ctx, gen, false)
}

// fetch applies the result only when the tracker is still on the same
// generation; stale results from a closed or restarted tracker are dropped.
// seed controls whether the snapshot's persisted step becomes the live
// step: only the initial fetch seeds it, and only while no event has
// delivered a step; fetches must not clobber a fresher event-delivered one.
func (t *Tracker) fetch(ctx context.Context, gen uint64, seed bool) {
	rec, err := t.fetcher.Recording(ctx, t.recordingID)

	t.mu.Lock()
	if t.closed || gen != t.generation {
		t.mu.Unlock()
		return
	}
	if err != nil {
		t.state.Loading = false
		t.state.Err = err.Error()
	} else {
		t.state.Recording = rec
		t.state.Loading = false
		t.state.Err = ""
		// An event may land while the initial fetch is in flight; the
		// persisted step is older than anything a listener set.
		if seed && t.state.CurrentStep == "" {
			t.state.CurrentStep = rec.CurrentStep
		}
	}
	snapshot := t.snapshotLocked()
	onChange := t.onChange
	t.mu.Unlock()

	if onChange != nil {
		onChange(snapshot)
	}
}

func (t *Tracker) mutate(apply func(*State)) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	apply(&t.state)
	snapshot := t.snapshotLocked()
	onChange := t.onChange
	t.mu.Unlock()

	if onChange != nil {
		onChange(snapshot)
	}
}

func (t *Tracker) snapshotLocked() State {
	s := t.state
	if s.Recording != nil {
		rec := *s.Recording
		s.Recording = &rec
	}
	return s
}
