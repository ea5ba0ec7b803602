package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tutorcast/internal/api"
	"tutorcast/internal/events"
	"tutorcast/internal/pipeline"
)

type stubFetcher struct {
	mu      sync.Mutex
	rec     api.Recording
	err     error
	calls   int
	release chan struct{}
}

func (f *stubFetcher) Recording(ctx context.Context, id string) (*api.Recording, error) {
	f.mu.Lock()
	f.calls++
	release := f.release
	rec := f.rec
	err := f.err
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	copied := rec
	copied.ID = id
	return &copied, nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *stubFetcher) set(rec api.Recording) {
	f.mu.Lock()
	f.rec = rec
	f.mu.Unlock()
}

type stubEvents struct {
	mu           sync.Mutex
	joined       []string
	left         []string
	updateFns    map[string][]func(events.ProcessingUpdate)
	errorFns     map[string][]func(events.ProcessingError)
	unsubUpdates int
	unsubErrors  int
}

func newStubEvents() *stubEvents {
	return &stubEvents{
		updateFns: make(map[string][]func(events.ProcessingUpdate)),
		errorFns:  make(map[string][]func(events.ProcessingError)),
	}
}

func (s *stubEvents) JoinRecording(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joined = append(s.joined, id)
	return nil
}

func (s *stubEvents) LeaveRecording(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.left = append(s.left, id)
	return nil
}

func (s *stubEvents) OnProcessingUpdate(id string, fn func(events.ProcessingUpdate)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateFns[id] = append(s.updateFns[id], fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.unsubUpdates++
	}
}

func (s *stubEvents) OnProcessingError(id string, fn func(events.ProcessingError)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorFns[id] = append(s.errorFns[id], fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.unsubErrors++
	}
}

func (s *stubEvents) emitUpdate(update events.ProcessingUpdate) {
	s.mu.Lock()
	fns := append([]func(events.ProcessingUpdate){}, s.updateFns[update.RecordingID]...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(update)
	}
}

func (s *stubEvents) emitError(procErr events.ProcessingError) {
	s.mu.Lock()
	fns := append([]func(events.ProcessingError){}, s.errorFns[procErr.RecordingID]...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(procErr)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartFetchesAndSeedsCurrentStep(t *testing.T) {
	fetcher := &stubFetcher{rec: api.Recording{
		Status:      pipeline.StatusProcessing,
		CurrentStep: pipeline.StepTranscribing,
	}}
	source := newStubEvents()
	tr := New("rec-1", fetcher, source)
	defer tr.Close()

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	state := tr.State()
	if state.Loading {
		t.Fatalf("still loading after Start")
	}
	if state.Recording == nil || state.Recording.ID != "rec-1" {
		t.Fatalf("recording = %+v", state.Recording)
	}
	if state.CurrentStep != pipeline.StepTranscribing {
		t.Fatalf("CurrentStep = %q, want seeded from snapshot", state.CurrentStep)
	}
	if len(source.joined) != 1 || source.joined[0] != "rec-1" {
		t.Fatalf("joined = %v", source.joined)
	}
	if len(source.updateFns["rec-1"]) != 1 || len(source.errorFns["rec-1"]) != 1 {
		t.Fatalf("listeners not registered")
	}
}

func TestUpdateEventSetsStepAndTriggersRefetch(t *testing.T) {
	fetcher := &stubFetcher{rec: api.Recording{Status: pipeline.StatusUploaded}}
	source := newStubEvents()
	tr := New("rec-1", fetcher, source)
	defer tr.Close()
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	fetcher.set(api.Recording{Status: pipeline.StatusProcessing})
	source.emitUpdate(events.ProcessingUpdate{
		Step:        pipeline.StepExtractingAudio,
		RecordingID: "rec-1",
		Timestamp:   "2026-02-03T10:00:01Z",
	})

	if step := tr.State().CurrentStep; step != pipeline.StepExtractingAudio {
		t.Fatalf("CurrentStep = %q immediately after event", step)
	}
	waitFor(t, "event-triggered refetch", func() bool { return fetcher.callCount() >= 2 })
	waitFor(t, "snapshot refresh", func() bool {
		state := tr.State()
		return state.Recording != nil && state.Recording.Status == pipeline.StatusProcessing
	})
	if step := tr.State().CurrentStep; step != pipeline.StepExtractingAudio {
		t.Fatalf("refetch clobbered CurrentStep: %q", step)
	}
}

func TestSeedYieldsToEventDuringInitialFetch(t *testing.T) {
	release := make(chan struct{})
	fetcher := &stubFetcher{rec: api.Recording{
		Status:      pipeline.StatusProcessing,
		CurrentStep: pipeline.StepExtractingAudio,
	}}
	fetcher.release = release
	source := newStubEvents()
	tr := New("rec-1", fetcher, source)
	defer tr.Close()

	done := make(chan error, 1)
	go func() { done <- tr.Start(context.Background()) }()
	waitFor(t, "listeners registered", func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return len(source.updateFns["rec-1"]) == 1
	})
	waitFor(t, "initial fetch in flight", func() bool { return fetcher.callCount() == 1 })

	// An event lands while the snapshot is still being fetched; the
	// persisted step in that snapshot is already stale.
	source.emitUpdate(events.ProcessingUpdate{
		Step:        pipeline.StepTranscribing,
		RecordingID: "rec-1",
	})

	fetcher.mu.Lock()
	fetcher.release = nil
	fetcher.mu.Unlock()
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Start: %v", err)
	}

	if step := tr.State().CurrentStep; step != pipeline.StepTranscribing {
		t.Fatalf("CurrentStep = %q, seed overwrote event-delivered step", step)
	}
}

func TestErrorEventCapturesFailedStepBeforeOverwrite(t *testing.T) {
	fetcher := &stubFetcher{rec: api.Recording{
		Status:      pipeline.StatusProcessing,
		CurrentStep: pipeline.StepMerging,
	}}
	source := newStubEvents()
	tr := New("rec-1", fetcher, source)
	defer tr.Close()
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	source.emitError(events.ProcessingError{
		Step:        pipeline.StepFailed,
		RecordingID: "rec-1",
		Error:       "ffmpeg crashed",
		Timestamp:   "2026-02-03T10:00:02Z",
	})

	state := tr.State()
	if state.FailedAtStep != pipeline.StepMerging {
		t.Fatalf("FailedAtStep = %q, want step current at failure", state.FailedAtStep)
	}
	if state.CurrentStep != pipeline.StepFailed {
		t.Fatalf("CurrentStep = %q, want failed marker", state.CurrentStep)
	}
	if state.ProcessingError != "ffmpeg crashed" {
		t.Fatalf("ProcessingError = %q", state.ProcessingError)
	}
	waitFor(t, "failure refetch", func() bool { return fetcher.callCount() >= 2 })
}

func TestCloseUnsubscribesAndLeavesTopic(t *testing.T) {
	fetcher := &stubFetcher{rec: api.Recording{Status: pipeline.StatusUploaded}}
	source := newStubEvents()
	tr := New("rec-1", fetcher, source)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	tr.Close()

	if source.unsubUpdates != 1 || source.unsubErrors != 1 {
		t.Fatalf("unsubscribes = %d/%d, want 1/1", source.unsubUpdates, source.unsubErrors)
	}
	if len(source.left) != 1 || source.left[0] != "rec-1" {
		t.Fatalf("left = %v", source.left)
	}
}

func TestStaleFetchResultDiscardedAfterClose(t *testing.T) {
	release := make(chan struct{})
	fetcher := &stubFetcher{rec: api.Recording{Status: pipeline.StatusCompleted}}
	source := newStubEvents()
	tr := New("rec-1", fetcher, source)

	fetcher.mu.Lock()
	fetcher.release = release
	fetcher.mu.Unlock()

	done := make(chan struct{})
	go func() {
		tr.Refetch(context.Background())
		close(done)
	}()
	waitFor(t, "fetch in flight", func() bool { return fetcher.callCount() == 1 })

	tr.Close()
	close(release)
	<-done

	if state := tr.State(); state.Recording != nil {
		t.Fatalf("stale fetch applied after Close: %+v", state.Recording)
	}
}

func TestFetchErrorSurfacesInState(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("backend unreachable")}
	source := newStubEvents()
	tr := New("rec-1", fetcher, source)
	defer tr.Close()
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	state := tr.State()
	if state.Loading {
		t.Fatalf("loading not cleared on fetch failure")
	}
	if state.Err != "backend unreachable" {
		t.Fatalf("Err = %q", state.Err)
	}
}

func TestOnChangeObservesEveryMutation(t *testing.T) {
	fetcher := &stubFetcher{rec: api.Recording{Status: pipeline.StatusProcessing}}
	source := newStubEvents()

	var mu sync.Mutex
	var steps []pipeline.Step
	tr := New("rec-1", fetcher, source, WithOnChange(func(s State) {
		mu.Lock()
		steps = append(steps, s.CurrentStep)
		mu.Unlock()
	}))
	defer tr.Close()
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	source.emitUpdate(events.ProcessingUpdate{Step: pipeline.StepMerging, RecordingID: "rec-1"})

	waitFor(t, "change notifications", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(steps) >= 2
	})
	mu.Lock()
	defer mu.Unlock()
	if steps[1] != pipeline.StepMerging {
		t.Fatalf("second notification step = %q", steps[1])
	}
}

func TestEmptyIdentifierIsInert(t *testing.T) {
	fetcher := &stubFetcher{}
	source := newStubEvents()
	tr := New("", fetcher, source)

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if fetcher.callCount() != 0 {
		t.Fatalf("fetches = %d, want 0", fetcher.callCount())
	}
	if len(source.joined) != 0 {
		t.Fatalf("joined = %v, want none", source.joined)
	}
	tr.Close()
	if len(source.left) != 0 {
		t.Fatalf("left = %v, want none", source.left)
	}
}
