package session

import (
	"context"
	"time"

	"github.com/raphaelgruber/redactomat/internal/apierr"
	"github.com/raphaelgruber/redactomat/internal/client"
	"github.com/raphaelgruber/redactomat/internal/metrics"
)

// pollLoop issues one status request per interval until the task leaves
// Polling or ctx is cancelled.
func (c *Controller) pollLoop(ctx context.Context, gen uint64, taskID string) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("poll loop stopped", "task_id", taskID)
			return
		case <-ticker.C:
			c.tick(ctx, gen, taskID)
		}
	}
}

// tick runs a single poll. It reports false when skipped because the
// previous poll has not resolved yet.
func (c *Controller) tick(ctx context.Context, gen uint64, taskID string) bool {
	if !c.inflight.CompareAndSwap(false, true) {
		c.logger.Debug("skipping poll, previous request unresolved", "task_id", taskID)
		return false
	}
	defer c.inflight.Store(false)

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	res, err := c.api.Status(reqCtx, taskID)
	cancel()

	if ctx.Err() != nil {
		return true
	}

	switch {
	case err != nil:
		c.fail(gen, asAPIError(apierr.StatusCheckFailed, err))
	case res.Document != nil:
		c.complete(ctx, gen, taskID, res.Document)
	case res.Status != nil:
		c.applyStatus(gen, res.Status)
	default:
		c.fail(gen, client.EmptyStatus())
	}
	return true
}

// currentLocked reports whether gen is still the task being polled.
// Caller must hold c.mu.
func (c *Controller) currentLocked(gen uint64) bool {
	return c.gen == gen && c.state == Polling
}

func (c *Controller) applyStatus(gen uint64, st *client.ProcessingStatus) {
	switch st.Status {
	case client.StatusProcessing:
		c.mu.Lock()
		if !c.currentLocked(gen) {
			c.mu.Unlock()
			return
		}
		c.task.Progress = Progress{
			CurrentPage: deref(st.CurrentPage),
			TotalPages:  deref(st.TotalPages),
		}
		p := c.task.Progress
		c.mu.Unlock()

		c.logger.Debug("task processing", "page", p.CurrentPage, "total", p.TotalPages)
		c.notify()

	case client.StatusCompleted:
		// The document is returned by a later poll.
		c.logger.Debug("task completed, waiting for document")

	case client.StatusFailed:
		msg := st.Error
		if msg == "" {
			msg = "The document could not be processed"
		}
		c.fail(gen, apierr.New(apierr.ProcessingFailed, msg))

	default:
		c.fail(gen, client.UnknownStatus(st.Status))
	}
}

// complete delivers the document and resets the session. Delivery runs
// outside the lock; the in-flight guard keeps other ticks out meanwhile.
func (c *Controller) complete(ctx context.Context, gen uint64, taskID string, doc *client.Document) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	source := ""
	if c.file != nil {
		source = c.file.Name
	}
	c.mu.Unlock()

	a := Artifact{
		TaskID:      taskID,
		Name:        doc.Name,
		ContentType: doc.ContentType,
		Data:        doc.Data,
		SourceName:  source,
	}

	start := time.Now()
	err := c.sink.Deliver(ctx, a)
	c.metrics.Record(metrics.OpDeliver, time.Since(start), int64(len(a.Data)), err)
	if err != nil {
		e := apierr.New(apierr.ProcessingFailed, "The redacted document could not be saved").
			WithDetails(apierr.Details{TechnicalError: err.Error()})
		c.fail(gen, e)
		return
	}

	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.stopPollingLocked()
	c.resetSessionLocked()
	c.result = &Artifact{
		TaskID:      a.TaskID,
		Name:        a.Name,
		ContentType: a.ContentType,
		SourceName:  a.SourceName,
	}
	c.state = Completed
	c.mu.Unlock()

	c.logger.Info("task completed", "task_id", taskID, "document", a.Name, "bytes", len(a.Data))
	c.notify()
	c.finish(gen)
}

func (c *Controller) fail(gen uint64, e *apierr.Error) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	id := c.task.ID
	c.failLocked(e)
	c.mu.Unlock()

	c.logger.Warn("task failed", "task_id", id, "kind", e.Kind, "error", e)
	c.notify()
	c.finish(gen)
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
