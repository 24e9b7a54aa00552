package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raphaelgruber/redactomat/internal/apierr"
	"github.com/raphaelgruber/redactomat/internal/catalog"
	"github.com/raphaelgruber/redactomat/internal/client"
	"github.com/raphaelgruber/redactomat/internal/preferences"
	"github.com/raphaelgruber/redactomat/internal/testutil"
	"github.com/raphaelgruber/redactomat/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInterval = 10 * time.Millisecond

// recorder collects the snapshots published by a controller.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) add(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

// states returns the distinct consecutive states seen.
func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, s := range r.snaps {
		if len(out) == 0 || out[len(out)-1] != s.State {
			out = append(out, s.State)
		}
	}
	return out
}

func (r *recorder) progress() []Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Progress
	for _, s := range r.snaps {
		if s.State == Polling && s.Progress().Known() {
			p := s.Progress()
			if len(out) == 0 || out[len(out)-1] != p {
				out = append(out, p)
			}
		}
	}
	return out
}

// memSink stores delivered artifacts.
type memSink struct {
	mu        sync.Mutex
	artifacts []Artifact
	err       error
}

func (s *memSink) Deliver(_ context.Context, a Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.artifacts = append(s.artifacts, a)
	return nil
}

func (s *memSink) delivered() []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Artifact(nil), s.artifacts...)
}

// backend is a scripted fake of the upload and status endpoints.
type backend struct {
	t           *testing.T
	uploadCode  int
	uploadBody  string
	replies     []func(w http.ResponseWriter)
	statusCalls atomic.Int32
	uploads     atomic.Int32
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/upload":
		b.uploads.Add(1)
		code := b.uploadCode
		if code == 0 {
			code = http.StatusOK
		}
		body := b.uploadBody
		if body == "" {
			body = `{"task_id":"task-42"}`
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	case r.Method == http.MethodGet && r.URL.Path == "/status/task-42":
		n := int(b.statusCalls.Add(1)) - 1
		if n >= len(b.replies) {
			n = len(b.replies) - 1
		}
		b.replies[n](w)
	default:
		b.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func jsonReply(code int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}
}

func pdfReply(data []byte) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(data)
	}
}

type harness struct {
	ctrl    *Controller
	backend *backend
	sink    *memSink
	rec     *recorder
}

func newHarness(t *testing.T, b *backend, opts Options) *harness {
	t.Helper()
	b.t = t
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	api, err := client.New(client.Config{BaseURL: srv.URL, Token: "tok"})
	require.NoError(t, err)

	if opts.PollInterval == 0 {
		opts.PollInterval = testInterval
	}
	sink := &memSink{}
	ctrl, err := New(api, sink, opts)
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)

	rec := &recorder{}
	ctrl.Subscribe(rec.add)

	return &harness{ctrl: ctrl, backend: b, sink: sink, rec: rec}
}

func pdfFile(pages int) validator.RawFile {
	return validator.FromBytes("contract.pdf", validator.PDFMediaType, testutil.PDF(pages))
}

func wait(t *testing.T, c *Controller) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := c.Wait(ctx)
	require.NoError(t, err, "task did not finish")
	return snap
}

func TestScenarioThreePagesCompletes(t *testing.T) {
	result := testutil.PDF(3)
	h := newHarness(t, &backend{replies: []func(http.ResponseWriter){
		jsonReply(http.StatusOK, `{"status":"Processing","current_page":1,"total_pages":3}`),
		jsonReply(http.StatusOK, `{"status":"Processing","current_page":2,"total_pages":3}`),
		pdfReply(result),
	}}, Options{DefaultPolicy: preferences.SelectNone})

	require.NoError(t, h.ctrl.SelectFile(pdfFile(3)))
	require.NoError(t, h.ctrl.Select("emails", "names"))
	require.True(t, h.ctrl.Snapshot().CanSubmit())

	require.NoError(t, h.ctrl.Submit(context.Background()))
	snap := wait(t, h.ctrl)

	assert.Equal(t, Completed, snap.State)
	assert.Equal(t, []State{Idle, Submitting, Polling, Completed}, h.rec.states())
	assert.Equal(t, []Progress{{1, 3}, {2, 3}}, h.rec.progress())

	// Session reset: file, selection, task and progress cleared.
	assert.Nil(t, snap.File)
	assert.Empty(t, snap.Selected)
	assert.Nil(t, snap.Task)
	assert.Equal(t, Progress{}, snap.Progress())
	assert.Nil(t, snap.Err)

	delivered := h.sink.delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, result, delivered[0].Data)
	assert.Equal(t, "task-42", delivered[0].TaskID)
	assert.Equal(t, "contract.pdf", delivered[0].SourceName)
	assert.Equal(t, client.DefaultDocumentName, delivered[0].Name)

	require.NotNil(t, snap.Result)
	assert.Nil(t, snap.Result.Data)
	assert.EqualValues(t, 3, h.backend.statusCalls.Load())
}

func TestScenarioFirstTickServerError(t *testing.T) {
	h := newHarness(t, &backend{replies: []func(http.ResponseWriter){
		jsonReply(http.StatusInternalServerError, `{"error":"Processing failed","message":"LLM quota exhausted"}`),
	}}, Options{})

	require.NoError(t, h.ctrl.SelectFile(pdfFile(2)))
	require.NoError(t, h.ctrl.Submit(context.Background()))
	snap := wait(t, h.ctrl)

	assert.Equal(t, Failed, snap.State)
	require.NotNil(t, snap.Err)
	assert.Equal(t, apierr.StatusCheckFailed, snap.Err.Kind)
	assert.Equal(t, "Processing failed", snap.Err.Title)
	assert.Equal(t, "LLM quota exhausted", snap.Err.Message)
	assert.Empty(t, snap.TaskID())
	assert.Empty(t, h.sink.delivered())

	// No retries: the timer is gone after the failure.
	time.Sleep(5 * testInterval)
	assert.EqualValues(t, 1, h.backend.statusCalls.Load())
}

func TestScenarioUploadRejectedNeverPolls(t *testing.T) {
	h := newHarness(t, &backend{
		uploadCode: http.StatusUnauthorized,
		uploadBody: `{"error":"Unauthorized","message":"invalid token"}`,
	}, Options{})

	require.NoError(t, h.ctrl.SelectFile(pdfFile(1)))
	err := h.ctrl.Submit(context.Background())

	assert.True(t, apierr.Is(err, apierr.UploadFailed))
	snap := h.ctrl.Snapshot()
	assert.Equal(t, Failed, snap.State)
	assert.Equal(t, "Unauthorized", snap.Err.Title)
	assert.Equal(t, []State{Idle, Submitting, Failed}, h.rec.states())

	time.Sleep(5 * testInterval)
	assert.Zero(t, h.backend.statusCalls.Load())

	select {
	case <-h.ctrl.Done():
	default:
		t.Fatal("done channel should be closed after failed upload")
	}
}

func TestProcessingFailedStatus(t *testing.T) {
	h := newHarness(t, &backend{replies: []func(http.ResponseWriter){
		jsonReply(http.StatusOK, `{"status":"Processing","current_page":1,"total_pages":2}`),
		jsonReply(http.StatusOK, `{"status":"Failed","error":"could not extract text"}`),
	}}, Options{})

	require.NoError(t, h.ctrl.SelectFile(pdfFile(2)))
	require.NoError(t, h.ctrl.Submit(context.Background()))
	snap := wait(t, h.ctrl)

	assert.Equal(t, Failed, snap.State)
	assert.Equal(t, apierr.ProcessingFailed, snap.Err.Kind)
	assert.Equal(t, "could not extract text", snap.Err.Message)
	assert.Nil(t, snap.Task)
}

func TestUnknownStatusFails(t *testing.T) {
	h := newHarness(t, &backend{replies: []func(http.ResponseWriter){
		jsonReply(http.StatusOK, `{"status":"Exploded"}`),
	}}, Options{})

	require.NoError(t, h.ctrl.SelectFile(pdfFile(1)))
	require.NoError(t, h.ctrl.Submit(context.Background()))
	snap := wait(t, h.ctrl)

	assert.Equal(t, apierr.StatusCheckFailed, snap.Err.Kind)
	assert.Equal(t, `Unknown task status "Exploded"`, snap.Err.Message)
}

func TestCompletedJSONKeepsPolling(t *testing.T) {
	h := newHarness(t, &backend{replies: []func(http.ResponseWriter){
		jsonReply(http.StatusOK, `{"status":"Completed"}`),
		pdfReply(testutil.PDF(1)),
	}}, Options{})

	require.NoError(t, h.ctrl.SelectFile(pdfFile(1)))
	require.NoError(t, h.ctrl.Submit(context.Background()))
	snap := wait(t, h.ctrl)

	assert.Equal(t, Completed, snap.State)
	assert.EqualValues(t, 2, h.backend.statusCalls.Load())
}

func TestSinkFailureFailsTask(t *testing.T) {
	h := newHarness(t, &backend{replies: []func(http.ResponseWriter){
		pdfReply(testutil.PDF(1)),
	}}, Options{})
	h.sink.err = errors.New("disk full")

	require.NoError(t, h.ctrl.SelectFile(pdfFile(1)))
	require.NoError(t, h.ctrl.Submit(context.Background()))
	snap := wait(t, h.ctrl)

	assert.Equal(t, Failed, snap.State)
	assert.Equal(t, apierr.ProcessingFailed, snap.Err.Kind)
	assert.Equal(t, "disk full", snap.Err.Details.TechnicalError)
	// The file survives so the user can try again.
	assert.NotNil(t, snap.File)
}

func TestSubmitPreconditions(t *testing.T) {
	h := newHarness(t, &backend{replies: []func(http.ResponseWriter){
		jsonReply(http.StatusOK, `{"status":"Processing"}`),
	}}, Options{DefaultPolicy: preferences.SelectNone})
	ctx := context.Background()

	err := h.ctrl.Submit(ctx)
	assert.ErrorIs(t, err, ErrCannotSubmit, "no file")

	require.Error(t, h.ctrl.SelectFile(validator.FromBytes("a.png", "image/png", []byte("x"))))
	require.NoError(t, h.ctrl.SelectAll())
	assert.ErrorIs(t, h.ctrl.Submit(ctx), ErrCannotSubmit, "invalid file")

	require.NoError(t, h.ctrl.SelectFile(pdfFile(1)))
	assert.ErrorIs(t, h.ctrl.Submit(ctx), ErrCannotSubmit, "empty selection")

	require.NoError(t, h.ctrl.Toggle("phone_numbers"))
	require.NoError(t, h.ctrl.Submit(ctx))

	assert.ErrorIs(t, h.ctrl.Submit(ctx), ErrTaskActive)
	assert.ErrorIs(t, h.ctrl.Toggle("emails"), ErrTaskActive)
	assert.ErrorIs(t, h.ctrl.SelectFile(pdfFile(1)), ErrTaskActive)
	assert.ErrorIs(t, h.ctrl.RemoveFile(), ErrTaskActive)
	assert.EqualValues(t, 1, h.backend.uploads.Load())
}

func TestSelectFileAppliesPolicy(t *testing.T) {
	extended, err := catalog.Lookup(catalog.Extended)
	require.NoError(t, err)

	tests := []struct {
		name    string
		opts    Options
		wantLen int
	}{
		{"minimal all selected", Options{DefaultPolicy: preferences.SelectAll}, 3},
		{"extended none selected", Options{Catalog: extended, DefaultPolicy: preferences.SelectNone}, 0},
		{"extended all selected", Options{Catalog: extended, DefaultPolicy: preferences.SelectAll}, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, &backend{}, tt.opts)
			require.NoError(t, h.ctrl.SelectFile(pdfFile(1)))
			assert.Len(t, h.ctrl.Snapshot().Selected, tt.wantLen)
		})
	}
}

func TestInvalidFileClearsSelectionAndKeepsError(t *testing.T) {
	h := newHarness(t, &backend{}, Options{})

	require.NoError(t, h.ctrl.SelectFile(pdfFile(1)))
	require.Len(t, h.ctrl.Snapshot().Selected, 3)

	err := h.ctrl.SelectFile(pdfFile(11))
	assert.True(t, apierr.Is(err, apierr.TooManyPages))

	snap := h.ctrl.Snapshot()
	assert.Nil(t, snap.File)
	require.NotNil(t, snap.FileError)
	assert.Equal(t, 11, snap.FileError.Details.CurrentPages)
	assert.Empty(t, snap.Selected)
	assert.False(t, snap.CanSubmit())

	require.NoError(t, h.ctrl.RemoveFile())
	assert.Nil(t, h.ctrl.Snapshot().FileError)
}

func TestStopHaltsPolling(t *testing.T) {
	h := newHarness(t, &backend{replies: []func(http.ResponseWriter){
		jsonReply(http.StatusOK, `{"status":"Processing","current_page":1,"total_pages":5}`),
	}}, Options{})

	require.NoError(t, h.ctrl.SelectFile(pdfFile(1)))
	require.NoError(t, h.ctrl.Submit(context.Background()))

	require.Eventually(t, func() bool { return h.backend.statusCalls.Load() >= 2 }, 2*time.Second, testInterval)

	id := h.ctrl.Stop()
	assert.Equal(t, "task-42", id)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.NotNil(t, snap.File, "file is kept after detaching")
	assert.Empty(t, snap.TaskID())

	time.Sleep(2 * testInterval)
	calls := h.backend.statusCalls.Load()
	time.Sleep(5 * testInterval)
	assert.Equal(t, calls, h.backend.statusCalls.Load(), "no polls after Stop")

	assert.Empty(t, h.ctrl.Stop(), "stop without a task is a no-op")
}

func TestDismissAllowsResubmission(t *testing.T) {
	h := newHarness(t, &backend{uploadCode: http.StatusBadGateway, uploadBody: "bad gateway"}, Options{})

	require.NoError(t, h.ctrl.SelectFile(pdfFile(1)))
	require.Error(t, h.ctrl.Submit(context.Background()))

	assert.ErrorIs(t, h.ctrl.Submit(context.Background()), ErrCannotSubmit, "failed requires dismiss or reset")

	h.ctrl.Dismiss()
	snap := h.ctrl.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Nil(t, snap.Err)
	assert.True(t, snap.CanSubmit())
}

func TestResetClearsEverything(t *testing.T) {
	h := newHarness(t, &backend{replies: []func(http.ResponseWriter){
		jsonReply(http.StatusOK, `{"status":"Processing"}`),
	}}, Options{})

	require.NoError(t, h.ctrl.SelectFile(pdfFile(1)))
	require.NoError(t, h.ctrl.Submit(context.Background()))
	h.ctrl.Reset()

	snap := h.ctrl.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Nil(t, snap.File)
	assert.Empty(t, snap.Selected)
	assert.Nil(t, snap.Task)
	assert.Nil(t, snap.Err)
}

// blockingAPI holds status requests until released.
type blockingAPI struct {
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingAPI) Upload(context.Context, *validator.SelectedFile, map[string]bool) (string, error) {
	return "t", nil
}

func (b *blockingAPI) Status(ctx context.Context, _ string) (*client.StatusResult, error) {
	b.calls.Add(1)
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &client.StatusResult{Status: &client.ProcessingStatus{Status: client.StatusProcessing}}, nil
}

func TestTickSkipsWhilePreviousUnresolved(t *testing.T) {
	api := &blockingAPI{release: make(chan struct{})}
	ctrl, err := New(api, SinkFunc(func(context.Context, Artifact) error { return nil }), Options{PollInterval: time.Hour})
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.SelectFile(pdfFile(1)))
	require.NoError(t, ctrl.Submit(context.Background()))

	ctx := context.Background()
	ctrl.mu.Lock()
	gen := ctrl.gen
	ctrl.mu.Unlock()

	first := make(chan bool)
	go func() { first <- ctrl.tick(ctx, gen, "t") }()

	require.Eventually(t, func() bool { return api.calls.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, ctrl.tick(ctx, gen, "t"), "overlapping tick must be skipped")
	assert.EqualValues(t, 1, api.calls.Load())

	close(api.release)
	assert.True(t, <-first)
	assert.Equal(t, Polling, ctrl.Snapshot().State)
}

func TestUnsubscribe(t *testing.T) {
	h := newHarness(t, &backend{}, Options{})

	var n atomic.Int32
	unsub := h.ctrl.Subscribe(func(Snapshot) { n.Add(1) })
	require.NoError(t, h.ctrl.SelectAll())
	unsub()
	require.NoError(t, h.ctrl.DeselectAll())

	assert.EqualValues(t, 1, n.Load())
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, &memSink{}, Options{})
	assert.Error(t, err)
	_, err = New(&blockingAPI{}, nil, Options{})
	assert.Error(t, err)
}

func TestProgressFraction(t *testing.T) {
	assert.Equal(t, 0.0, Progress{}.Fraction())
	assert.Equal(t, 0.5, Progress{CurrentPage: 1, TotalPages: 2}.Fraction())
	assert.Equal(t, 1.0, Progress{CurrentPage: 9, TotalPages: 2}.Fraction())
}

// gatedAPI holds uploads until released or cancelled.
type gatedAPI struct {
	release     chan struct{}
	statusCalls atomic.Int32
}

func newGatedAPI() *gatedAPI {
	return &gatedAPI{release: make(chan struct{})}
}

func (g *gatedAPI) Upload(ctx context.Context, _ *validator.SelectedFile, _ map[string]bool) (string, error) {
	select {
	case <-g.release:
		return "task-7", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g *gatedAPI) Status(ctx context.Context, _ string) (*client.StatusResult, error) {
	g.statusCalls.Add(1)
	return &client.StatusResult{Status: &client.ProcessingStatus{Status: client.StatusProcessing}}, nil
}

func newGatedController(t *testing.T, api *gatedAPI) *Controller {
	t.Helper()
	ctrl, err := New(api, &memSink{}, Options{PollInterval: testInterval})
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)
	require.NoError(t, ctrl.SelectFile(pdfFile(1)))
	return ctrl
}

func waitForState(t *testing.T, c *Controller, s State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Snapshot().State == s }, 2*time.Second, time.Millisecond)
}

func TestSubmitCancelledReturnsToIdle(t *testing.T) {
	api := newGatedAPI()
	ctrl := newGatedController(t, api)
	rec := &recorder{}
	ctrl.Subscribe(rec.add)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- ctrl.Submit(ctx) }()

	waitForState(t, ctrl, Submitting)
	cancel()

	err := <-errc
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, apierr.Is(err, apierr.UploadFailed))

	snap := ctrl.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Nil(t, snap.Err)
	assert.NotNil(t, snap.File, "file is kept after cancelling")
	assert.True(t, snap.CanSubmit())
	assert.Equal(t, []State{Submitting, Idle}, rec.states())

	select {
	case <-ctrl.Done():
	default:
		t.Fatal("done channel should be closed after a cancelled upload")
	}

	time.Sleep(5 * testInterval)
	assert.Zero(t, api.statusCalls.Load())
}

func TestSelectFileLeavesTerminalState(t *testing.T) {
	tests := []struct {
		name    string
		backend *backend
		want    State
	}{
		{
			name:    "from completed",
			backend: &backend{replies: []func(http.ResponseWriter){pdfReply(testutil.PDF(1))}},
			want:    Completed,
		},
		{
			name:    "from failed",
			backend: &backend{uploadCode: http.StatusBadRequest, uploadBody: `{"error":"Bad request","message":"nope"}`},
			want:    Failed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.backend, Options{})
			require.NoError(t, h.ctrl.SelectFile(pdfFile(1)))
			_ = h.ctrl.Submit(context.Background())
			require.Equal(t, tt.want, wait(t, h.ctrl).State)

			require.NoError(t, h.ctrl.SelectFile(pdfFile(2)))

			snap := h.ctrl.Snapshot()
			assert.Equal(t, Idle, snap.State)
			assert.Nil(t, snap.Err)
			assert.Nil(t, snap.Result)
			require.NotNil(t, snap.File)
			assert.Equal(t, 2, snap.File.PageEstimate)
			assert.True(t, snap.CanSubmit())
		})
	}
}

func TestInterruptDuringUpload(t *testing.T) {
	tests := []struct {
		name      string
		interrupt func(t *testing.T, c *Controller)
		keepsFile bool
	}{
		{"reset", func(_ *testing.T, c *Controller) { c.Reset() }, false},
		{"stop", func(t *testing.T, c *Controller) { assert.Empty(t, c.Stop()) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newGatedAPI()
			ctrl := newGatedController(t, api)

			errc := make(chan error, 1)
			go func() { errc <- ctrl.Submit(context.Background()) }()

			waitForState(t, ctrl, Submitting)
			tt.interrupt(t, ctrl)
			close(api.release)

			assert.ErrorIs(t, <-errc, ErrAborted)

			snap := ctrl.Snapshot()
			assert.Equal(t, Idle, snap.State)
			assert.Nil(t, snap.Task)
			assert.Equal(t, tt.keepsFile, snap.File != nil)

			time.Sleep(5 * testInterval)
			assert.Zero(t, api.statusCalls.Load(), "late upload result must not start polling")
		})
	}
}

func TestCloseHaltsPolling(t *testing.T) {
	tests := []struct {
		name string
		api  func() (TaskAPI, func() int32)
	}{
		{
			name: "between polls",
			api: func() (TaskAPI, func() int32) {
				api := newGatedAPI()
				close(api.release)
				return api, api.statusCalls.Load
			},
		},
		{
			name: "during a status request",
			api: func() (TaskAPI, func() int32) {
				api := &blockingAPI{release: make(chan struct{})}
				return api, api.calls.Load
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, calls := tt.api()
			ctrl, err := New(api, &memSink{}, Options{PollInterval: testInterval})
			require.NoError(t, err)

			require.NoError(t, ctrl.SelectFile(pdfFile(1)))
			require.NoError(t, ctrl.Submit(context.Background()))
			require.Eventually(t, func() bool { return calls() >= 1 }, 2*time.Second, time.Millisecond)

			ctrl.Close()

			select {
			case <-ctrl.Done():
			default:
				t.Fatal("done channel should be closed after Close")
			}

			time.Sleep(2 * testInterval)
			n := calls()
			time.Sleep(5 * testInterval)
			assert.Equal(t, n, calls(), "no polls after Close")
			assert.NotEqual(t, Failed, ctrl.Snapshot().State)
		})
	}
}
