package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeBackend scripts SubmitAnalysis and ListAnalyses for the controller.
type fakeBackend struct {
	mu          sync.Mutex
	submitCalls int
	listCalls   int
	result      *Result
	submitErr   error
	listErr     error
	history     []Result
	block       chan struct{} // when set, SubmitAnalysis waits on it
}

func (f *fakeBackend) SubmitAnalysis(_ context.Context, req Request) (*Result, error) {
	f.mu.Lock()
	f.submitCalls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	res := *f.result
	res.PatientID = req.PatientID
	return &res, nil
}

func (f *fakeBackend) ListAnalyses(context.Context) ([]Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.history, nil
}

func (f *fakeBackend) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls, f.listCalls
}

// recordingNotifier captures user-visible notices.
type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, msg)
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func TestController_InputOrderIndependence(t *testing.T) {
	c := NewController(&fakeBackend{}, &fakeBackend{})
	if c.State() != StateIdle {
		t.Fatalf("fresh controller state = %v", c.State())
	}

	c.AttachImage([]byte("img"), "xray.png")
	if c.State() != StateIdle {
		t.Errorf("image alone should not be Ready, state = %v", c.State())
	}
	c.SelectPatient("p1")
	if c.State() != StateReady {
		t.Errorf("both inputs set, state = %v, want ready", c.State())
	}

	// And the other order.
	c2 := NewController(&fakeBackend{}, &fakeBackend{})
	c2.SelectPatient("p1")
	if c2.State() != StateIdle {
		t.Errorf("patient alone should not be Ready, state = %v", c2.State())
	}
	c2.AttachImage([]byte("img"), "xray.png")
	if c2.State() != StateReady {
		t.Errorf("both inputs set, state = %v, want ready", c2.State())
	}
}

func TestController_SubmitWithoutInputs(t *testing.T) {
	n := &recordingNotifier{}
	backend := &fakeBackend{}
	c := NewController(backend, backend, WithNotifier(n))

	err := c.Submit(context.Background())
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("want ErrNotReady, got %v", err)
	}
	if submits, _ := backend.calls(); submits != 0 {
		t.Error("nothing may be dispatched without both inputs")
	}
	if len(n.errors) != 1 {
		t.Errorf("want one user-visible notice, got %v", n.errors)
	}
}

func TestController_SuccessfulSubmission(t *testing.T) {
	backend := &fakeBackend{
		result: &Result{
			ID: "a1", PatientName: "Jane Doe", Prediction: "Pneumonia",
			Confidence: 0.87, Report: "...", ImageData: "<base64>",
		},
		history: []Result{{ID: "a1"}},
	}
	n := &recordingNotifier{}
	c := NewController(backend, backend, WithNotifier(n))

	c.SelectPatient("p1")
	c.AttachImage([]byte("img"), "xray.png")
	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if c.State() != StateComplete {
		t.Fatalf("state = %v, want complete", c.State())
	}
	res := c.Result()
	if res == nil || res.ID != "a1" || res.PatientID != "p1" || res.Prediction != "Pneumonia" || res.Confidence != 0.87 {
		t.Errorf("result = %+v", res)
	}
	submits, lists := backend.calls()
	if submits != 1 {
		t.Errorf("submit calls = %d, want exactly 1", submits)
	}
	if lists != 1 || c.RefreshCount() != 1 {
		t.Errorf("history refresh calls = %d (counted %d), want exactly 1", lists, c.RefreshCount())
	}
	if len(c.History()) != 1 || c.History()[0].ID != "a1" {
		t.Errorf("history = %+v", c.History())
	}
	if len(n.successes) != 1 {
		t.Errorf("success notices = %v", n.successes)
	}
}

func TestController_DuplicateSubmitRejectedWhileInFlight(t *testing.T) {
	backend := &fakeBackend{
		result: &Result{ID: "a1"},
		block:  make(chan struct{}),
	}
	c := NewController(backend, backend)
	c.SelectPatient("p1")
	c.AttachImage([]byte("img"), "xray.png")

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background()) }()

	waitForState(t, c, StateSubmitting)
	if err := c.Submit(context.Background()); !errors.Is(err, ErrSubmitInFlight) {
		t.Errorf("duplicate submit: want ErrSubmitInFlight, got %v", err)
	}

	close(backend.block)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if submits, _ := backend.calls(); submits != 1 {
		t.Errorf("submit calls = %d, want exactly 1", submits)
	}
}

func TestController_FailureKeepsInputsForRetry(t *testing.T) {
	backend := &fakeBackend{submitErr: fmt.Errorf("backend exploded")}
	n := &recordingNotifier{}
	c := NewController(backend, backend, WithNotifier(n))
	c.SelectPatient("p1")
	c.AttachImage([]byte("img"), "xray.png")

	if err := c.Submit(context.Background()); err == nil {
		t.Fatal("expected submit error")
	}
	if c.State() != StateFailed {
		t.Fatalf("state = %v, want failed", c.State())
	}
	if c.Result() != nil {
		t.Error("no partial result may be retained")
	}
	if _, lists := backend.calls(); lists != 0 {
		t.Error("no history refresh on failure")
	}
	if c.PatientID() != "p1" || !c.HasImage() {
		t.Error("inputs must survive a failed submit")
	}
	if len(n.errors) != 1 {
		t.Errorf("error notices = %v", n.errors)
	}

	// Retry without re-entering inputs.
	backend.submitErr = nil
	backend.result = &Result{ID: "a2"}
	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if c.State() != StateComplete || c.Result().ID != "a2" {
		t.Errorf("retry outcome: state=%v result=%+v", c.State(), c.Result())
	}
}

func TestController_RefreshFailureLeavesCompleteStanding(t *testing.T) {
	backend := &fakeBackend{
		result:  &Result{ID: "a1"},
		listErr: fmt.Errorf("history unavailable"),
	}
	c := NewController(backend, backend)
	c.SelectPatient("p1")
	c.AttachImage([]byte("img"), "xray.png")

	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if c.State() != StateComplete {
		t.Errorf("state = %v, refresh failure must not revert Complete", c.State())
	}
	if c.RefreshCount() != 1 {
		t.Errorf("refresh count = %d", c.RefreshCount())
	}
	if len(c.History()) != 0 {
		t.Errorf("history should stay stale/empty, got %+v", c.History())
	}
}

func TestController_ResetDiscardsLateResponse(t *testing.T) {
	backend := &fakeBackend{
		result: &Result{ID: "a1"},
		block:  make(chan struct{}),
	}
	c := NewController(backend, backend)
	c.SelectPatient("p1")
	c.AttachImage([]byte("img"), "xray.png")

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background()) }()
	waitForState(t, c, StateSubmitting)

	c.Reset()
	close(backend.block)

	if err := <-done; !errors.Is(err, ErrStale) {
		t.Fatalf("late response should be discarded as stale, got %v", err)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %v, want idle after reset", c.State())
	}
	if c.Result() != nil {
		t.Error("late result must not be applied to stale state")
	}
	if c.RefreshCount() != 0 {
		t.Error("no history refresh may run for a discarded attempt")
	}
}

func TestController_InputsIgnoredWhileSubmitting(t *testing.T) {
	backend := &fakeBackend{
		result: &Result{ID: "a1"},
		block:  make(chan struct{}),
	}
	c := NewController(backend, backend)
	c.SelectPatient("p1")
	c.AttachImage([]byte("img"), "xray.png")

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background()) }()
	waitForState(t, c, StateSubmitting)

	c.SelectPatient("p2")
	if c.PatientID() != "p1" {
		t.Errorf("patient changed mid-flight to %q", c.PatientID())
	}

	close(backend.block)
	if err := <-done; err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func waitForState(t *testing.T, c *Controller, want WorkflowState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("controller never reached state %v", want)
}
