package analysis

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// WorkflowState is a phase of the submission lifecycle.
type WorkflowState int

const (
	// StateIdle: patient or image (or both) still missing.
	StateIdle WorkflowState = iota
	// StateReady: both inputs present, submission may be triggered.
	StateReady
	// StateSubmitting: one attempt in flight; re-entry is rejected.
	StateSubmitting
	// StateComplete: a result is stored and history has been refreshed.
	StateComplete
	// StateFailed: the attempt ended with no result; inputs are retained.
	StateFailed
)

func (s WorkflowState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateSubmitting:
		return "submitting"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

var (
	// ErrNotReady means submission was triggered without both inputs.
	ErrNotReady = errors.New("select a patient and attach an X-ray image first")
	// ErrSubmitInFlight rejects a duplicate submission while one is pending.
	ErrSubmitInFlight = errors.New("an analysis submission is already in flight")
	// ErrStale marks a response that arrived after the workflow was reset;
	// it is discarded rather than applied to stale state.
	ErrStale = errors.New("analysis attempt superseded")
)

// Submitter runs one analysis round-trip. Satisfied by *api.Client.
type Submitter interface {
	SubmitAnalysis(ctx context.Context, req Request) (*Result, error)
}

// HistoryLister fetches the analysis history. Satisfied by *api.Client.
type HistoryLister interface {
	ListAnalyses(ctx context.Context) ([]Result, error)
}

// Notifier receives the ephemeral user-visible notices the workflow issues.
// Failures are never silent and never discard the user's input.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

type nopNotifier struct{}

func (nopNotifier) Success(string) {}
func (nopNotifier) Error(string)   {}

// Controller drives the select patient -> attach image -> submit -> await
// result -> render sequence and owns its state machine. At most one
// submission is in flight per controller; the history refresh after a
// success is an explicit, observable step.
type Controller struct {
	submitter Submitter
	lister    HistoryLister
	notifier  Notifier
	logger    zerolog.Logger

	mu        sync.Mutex
	state     WorkflowState
	gen       uint64 // bumped on Reset; guards stale responses
	patientID string
	image     []byte
	filename  string
	result    *Result
	history   []Result
	refreshes int
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithNotifier routes user-visible notices; by default they are dropped.
func WithNotifier(n Notifier) ControllerOption {
	return func(c *Controller) { c.notifier = n }
}

// WithWorkflowLogger attaches a structured logger.
func WithWorkflowLogger(l zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// NewController builds a workflow controller over the given backend
// operations.
func NewController(submitter Submitter, lister HistoryLister, opts ...ControllerOption) *Controller {
	c := &Controller{
		submitter: submitter,
		lister:    lister,
		notifier:  nopNotifier{},
		logger:    zerolog.Nop(),
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SelectPatient records the target patient. Input order is free; the
// workflow becomes Ready once both inputs are present.
func (c *Controller) SelectPatient(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSubmitting {
		return
	}
	c.patientID = id
	c.recomputeReadiness()
}

// AttachImage records the X-ray payload.
func (c *Controller) AttachImage(data []byte, filename string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSubmitting {
		return
	}
	c.image = data
	c.filename = filename
	c.recomputeReadiness()
}

// recomputeReadiness moves Idle/Complete/Failed to Ready when both inputs
// are set. Callers hold c.mu.
func (c *Controller) recomputeReadiness() {
	if c.patientID != "" && len(c.image) > 0 {
		c.state = StateReady
	} else {
		c.state = StateIdle
	}
}

// Submit runs one analysis attempt. It rejects duplicates while a prior
// attempt is pending, never leaves a partial result behind, and on success
// triggers exactly one history refresh - whose failure leaves the Complete
// state standing with stale history.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return ErrSubmitInFlight
	}
	if c.patientID == "" || len(c.image) == 0 {
		c.mu.Unlock()
		c.notifier.Error("Please select a patient and upload an X-ray image")
		return ErrNotReady
	}
	req := Request{PatientID: c.patientID, Image: c.image, Filename: c.filename}
	gen := c.gen
	c.state = StateSubmitting
	c.mu.Unlock()

	res, err := c.submitter.SubmitAnalysis(ctx, req)

	c.mu.Lock()
	if c.gen != gen {
		// The user navigated away mid-flight; drop the response.
		c.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		c.state = StateFailed
		c.result = nil
		c.mu.Unlock()
		c.logger.Warn().Err(err).Str("patient_id", req.PatientID).Msg("analysis failed")
		c.notifier.Error("Analysis failed. Please try again.")
		return err
	}
	c.result = res
	c.state = StateComplete
	c.mu.Unlock()

	c.logger.Info().Str("analysis_id", res.ID).Str("prediction", res.Prediction).Msg("analysis complete")
	c.notifier.Success("Analysis completed successfully")
	c.refreshHistory(ctx, gen)
	return nil
}

// refreshHistory performs the post-success history refresh. A failure here
// does not revert Complete; it only leaves the history stale.
func (c *Controller) refreshHistory(ctx context.Context, gen uint64) {
	items, err := c.lister.ListAnalyses(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.refreshes++
	if err != nil {
		c.logger.Warn().Err(err).Msg("history refresh failed, keeping stale history")
		return
	}
	c.history = items
}

// Reset discards inputs, result and any in-flight attempt's eventual
// response, returning the workflow to Idle.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.state = StateIdle
	c.patientID = ""
	c.image = nil
	c.filename = ""
	c.result = nil
}

// State returns the current workflow state.
func (c *Controller) State() WorkflowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Result returns the stored result of the last completed attempt, if any.
func (c *Controller) Result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// History returns the last fetched analysis history.
func (c *Controller) History() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history
}

// RefreshCount reports how many history refreshes have run.
func (c *Controller) RefreshCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}

// PatientID returns the currently selected patient identifier.
func (c *Controller) PatientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.patientID
}

// HasImage reports whether an image payload is attached.
func (c *Controller) HasImage() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.image) > 0
}
