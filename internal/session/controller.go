// Package session implements the upload-and-poll lifecycle of a single
// anonymization task.
//
// A Controller owns the selected file, the category selection and at most
// one task. It moves through Idle → Submitting → Polling → Completed or
// Failed. Submit is only accepted from Idle, which is what keeps a second
// task from starting while one is in flight.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raphaelgruber/redactomat/internal/apierr"
	"github.com/raphaelgruber/redactomat/internal/catalog"
	"github.com/raphaelgruber/redactomat/internal/client"
	"github.com/raphaelgruber/redactomat/internal/metrics"
	"github.com/raphaelgruber/redactomat/internal/preferences"
	"github.com/raphaelgruber/redactomat/internal/validator"
)

// DefaultPollInterval is the fixed status polling interval.
const DefaultPollInterval = time.Second

// defaultRequestTimeout bounds a single status request.
const defaultRequestTimeout = 30 * time.Second

// Sentinel errors for controller operations.
var (
	// ErrCannotSubmit is returned when Submit's preconditions do not hold.
	ErrCannotSubmit = errors.New("cannot submit")

	// ErrTaskActive is returned when an operation is not allowed while a
	// task is being submitted or polled.
	ErrTaskActive = errors.New("a task is already active")

	// ErrAborted is returned by Submit when the upload was cancelled or
	// Reset or Stop ran while it was in flight.
	ErrAborted = errors.New("submission aborted")
)

// TaskAPI is the backend the controller drives.
type TaskAPI interface {
	Upload(ctx context.Context, file *validator.SelectedFile, flags map[string]bool) (string, error)
	Status(ctx context.Context, taskID string) (*client.StatusResult, error)
}

// ArtifactSink receives the redacted document of a completed task.
type ArtifactSink interface {
	Deliver(ctx context.Context, a Artifact) error
}

// SinkFunc adapts a function to ArtifactSink.
type SinkFunc func(ctx context.Context, a Artifact) error

// Deliver implements ArtifactSink.
func (f SinkFunc) Deliver(ctx context.Context, a Artifact) error { return f(ctx, a) }

// Options configures a Controller.
type Options struct {
	PollInterval   time.Duration
	RequestTimeout time.Duration
	Limits         validator.Limits
	Catalog        *catalog.Catalog
	DefaultPolicy  preferences.DefaultPolicy
	Logger         *slog.Logger
	Metrics        *metrics.Collector
}

// Controller coordinates validation, submission, polling and delivery.
// All methods are safe for concurrent use.
type Controller struct {
	api     TaskAPI
	sink    ArtifactSink
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Collector

	mu      sync.Mutex
	state   State
	file    *validator.SelectedFile
	fileErr *apierr.Error
	prefs   *preferences.Set
	task    *Task
	err     *apierr.Error
	result  *Artifact

	// gen identifies the current task; results for older generations are dropped.
	gen      uint64
	done     chan struct{}
	stopPoll context.CancelFunc
	inflight atomic.Bool

	notifyMu  sync.Mutex
	subs      map[int]func(Snapshot)
	nextSubID int
}

// New creates a controller in the Idle state.
func New(api TaskAPI, sink ArtifactSink, opts Options) (*Controller, error) {
	if api == nil {
		return nil, fmt.Errorf("task API is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("artifact sink is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.Catalog == nil {
		c, err := catalog.Lookup(catalog.Minimal)
		if err != nil {
			return nil, err
		}
		opts.Catalog = c
	}
	if opts.DefaultPolicy == "" {
		opts.DefaultPolicy = preferences.SelectAll
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	done := make(chan struct{})
	close(done)

	return &Controller{
		api:     api,
		sink:    sink,
		opts:    opts,
		logger:  logger,
		metrics: opts.Metrics,
		prefs:   preferences.New(opts.Catalog, opts.DefaultPolicy),
		done:    done,
		subs:    make(map[int]func(Snapshot)),
	}, nil
}

// Catalog returns the category catalog in use.
func (c *Controller) Catalog() *catalog.Catalog { return c.opts.Catalog }

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		State:     c.state,
		File:      c.file,
		FileError: c.fileErr,
		Selected:  c.prefs.Current(),
		Err:       c.err,
		Result:    c.result,
	}
	if c.task != nil {
		t := *c.task
		s.Task = &t
	}
	return s
}

// Subscribe registers fn to receive a snapshot after every change and
// returns a function that removes it. Listeners run on the goroutine that
// made the change and must not call mutating Controller methods.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn

	return func() {
		c.notifyMu.Lock()
		defer c.notifyMu.Unlock()
		delete(c.subs, id)
	}
}

// notify publishes the latest snapshot. Taking the snapshot under notifyMu
// keeps the sequence seen by listeners monotonic.
func (c *Controller) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	if len(c.subs) == 0 {
		return
	}
	snap := c.Snapshot()
	for _, fn := range c.subs {
		fn(snap)
	}
}

// Done returns a channel closed when the current task reaches a terminal
// state or is detached. Without a task the channel is already closed.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Wait blocks until the current task finishes or ctx is done.
func (c *Controller) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-c.Done():
		return c.Snapshot(), nil
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

// SelectFile validates raw and makes it the session's file, discarding the
// previous one. A valid file resets the selection to the default policy; an
// invalid one empties it. The validation error is returned and also kept on
// the file selection. From Completed or Failed the controller returns to Idle.
func (c *Controller) SelectFile(raw validator.RawFile) error {
	if c.Snapshot().State.Active() {
		return ErrTaskActive
	}

	file, verr := c.opts.Limits.Validate(raw)

	c.mu.Lock()
	if c.state.Active() {
		c.mu.Unlock()
		return ErrTaskActive
	}
	c.clearTerminalLocked()
	if verr != nil {
		var e *apierr.Error
		if !errors.As(verr, &e) {
			e = apierr.New(apierr.InvalidPdfStructure, verr.Error())
		}
		c.file = nil
		c.fileErr = e
		c.prefs.DeselectAll()
	} else {
		c.file = file
		c.fileErr = nil
		c.prefs.Reset()
	}
	c.mu.Unlock()

	if verr != nil {
		c.logger.Info("file rejected", "file", raw.Name, "kind", apierr.KindOf(verr), "error", verr)
	} else {
		c.logger.Info("file selected", "file", file.Name, "bytes", file.Size, "pages", file.PageEstimate)
	}
	c.notify()
	return verr
}

// RemoveFile discards the selected file and its selection.
func (c *Controller) RemoveFile() error {
	return c.mutate(func() error {
		c.clearTerminalLocked()
		c.file = nil
		c.fileErr = nil
		c.prefs.DeselectAll()
		return nil
	})
}

// Toggle flips one category.
func (c *Controller) Toggle(id string) error {
	return c.mutate(func() error { return c.prefs.Toggle(id) })
}

// Select adds the given categories.
func (c *Controller) Select(ids ...string) error {
	return c.mutate(func() error { return c.prefs.Select(ids...) })
}

// SelectAll selects the whole catalog.
func (c *Controller) SelectAll() error {
	return c.mutate(func() error { c.prefs.SelectAll(); return nil })
}

// DeselectAll clears the selection.
func (c *Controller) DeselectAll() error {
	return c.mutate(func() error { c.prefs.DeselectAll(); return nil })
}

// mutate runs fn under the lock unless a task is active, then notifies.
func (c *Controller) mutate(fn func() error) error {
	c.mu.Lock()
	if c.state.Active() {
		c.mu.Unlock()
		return ErrTaskActive
	}
	err := fn()
	c.mu.Unlock()

	if err == nil {
		c.notify()
	}
	return err
}

// Submit uploads the selected file and, on success, starts polling. It
// returns once the upload has been accepted or has failed; use Done or
// Wait for the task outcome. A failed upload moves the controller to
// Failed and is returned. Cancelling ctx during the upload returns to Idle
// with the file and selection kept, and Submit returns ErrAborted.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkSubmitLocked(); err != nil {
		c.mu.Unlock()
		return err
	}

	c.gen++
	gen := c.gen
	file := c.file
	flags := c.prefs.Flags()
	c.state = Submitting
	c.err = nil
	c.result = nil
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.logger.Info("submitting file", "file", file.Name, "categories", c.Snapshot().Selected)
	c.notify()

	taskID, err := c.api.Upload(ctx, file, flags)

	c.mu.Lock()
	if c.gen != gen || c.state != Submitting {
		c.mu.Unlock()
		return ErrAborted
	}
	if err != nil && (ctx.Err() != nil || errors.Is(err, context.Canceled)) {
		c.state = Idle
		c.closeDoneLocked()
		c.mu.Unlock()

		c.logger.Info("upload cancelled", "file", file.Name)
		c.notify()
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}
	if err != nil {
		e := asAPIError(apierr.UploadFailed, err)
		c.failLocked(e)
		c.mu.Unlock()

		c.logger.Warn("upload failed", "file", file.Name, "error", e)
		c.notify()
		c.finish(gen)
		return e
	}

	c.task = &Task{ID: taskID, StartedAt: time.Now()}
	c.state = Polling
	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.stopPoll = cancel
	c.mu.Unlock()

	c.logger.Info("task accepted", "task_id", taskID, "poll_interval", c.opts.PollInterval)
	c.notify()

	go c.pollLoop(pollCtx, gen, taskID)
	return nil
}

func (c *Controller) checkSubmitLocked() error {
	switch {
	case c.state.Active():
		return ErrTaskActive
	case c.state != Idle:
		return fmt.Errorf("%w: controller is %s, reset first", ErrCannotSubmit, c.state)
	case c.file == nil:
		return fmt.Errorf("%w: no file selected", ErrCannotSubmit)
	case c.fileErr != nil:
		return fmt.Errorf("%w: selected file is invalid", ErrCannotSubmit)
	case c.prefs.Empty():
		return fmt.Errorf("%w: no categories selected", ErrCannotSubmit)
	}
	return nil
}

// Stop halts polling without contacting the backend; the task keeps running
// server-side. The controller returns to Idle with the file and selection
// kept. It returns the id of the task that was detached, or "".
func (c *Controller) Stop() string {
	c.mu.Lock()
	if !c.state.Active() {
		c.mu.Unlock()
		return ""
	}
	id := ""
	if c.task != nil {
		id = c.task.ID
	}
	c.gen++
	c.stopPollingLocked()
	c.task = nil
	c.state = Idle
	c.closeDoneLocked()
	c.mu.Unlock()

	c.logger.Info("stopped observing task", "task_id", id)
	c.notify()
	return id
}

// Dismiss acknowledges a failure: Failed returns to Idle with the file and
// selection kept so the same document can be submitted again.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	if c.state != Failed {
		c.mu.Unlock()
		return
	}
	c.clearTerminalLocked()
	c.mu.Unlock()
	c.notify()
}

// Reset stops any polling and returns every piece of session state to its
// initial value.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.gen++
	c.stopPollingLocked()
	c.closeDoneLocked()
	c.resetSessionLocked()
	c.state = Idle
	c.err = nil
	c.result = nil
	c.mu.Unlock()
	c.notify()
}

// Close tears the controller down: polling stops and listeners are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	c.gen++
	c.stopPollingLocked()
	c.closeDoneLocked()
	c.mu.Unlock()

	c.notifyMu.Lock()
	clear(c.subs)
	c.notifyMu.Unlock()
}

func (c *Controller) stopPollingLocked() {
	if c.stopPoll != nil {
		c.stopPoll()
		c.stopPoll = nil
	}
}

func (c *Controller) closeDoneLocked() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *Controller) resetSessionLocked() {
	c.file = nil
	c.fileErr = nil
	c.task = nil
	c.prefs.DeselectAll()
}

func (c *Controller) clearTerminalLocked() {
	if c.state.Terminal() {
		c.state = Idle
		c.err = nil
		c.result = nil
	}
}

// failLocked moves to Failed, clearing the task. The caller notifies and
// then calls finish.
func (c *Controller) failLocked(e *apierr.Error) {
	c.stopPollingLocked()
	c.task = nil
	c.err = e
	c.state = Failed
}

// finish closes the done channel of task gen once listeners have seen its
// terminal state.
func (c *Controller) finish(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.closeDoneLocked()
	}
}

// asAPIError converts any error into a structured one of the given kind.
func asAPIError(kind apierr.Kind, err error) *apierr.Error {
	var e *apierr.Error
	if errors.As(err, &e) {
		return e
	}
	return apierr.Network(kind, err)
}
