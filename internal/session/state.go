package session

import (
	"fmt"
	"time"

	"github.com/raphaelgruber/redactomat/internal/apierr"
	"github.com/raphaelgruber/redactomat/internal/validator"
)

// State is the lifecycle state of the controller.
type State int

const (
	Idle State = iota
	Submitting
	Polling
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Polling:
		return "polling"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Active reports whether a task is in flight.
func (s State) Active() bool {
	return s == Submitting || s == Polling
}

// Terminal reports whether the last task has finished.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// Progress holds the page counters reported while processing. Zero values
// mean the backend has not reported them yet.
type Progress struct {
	CurrentPage int
	TotalPages  int
}

// Known reports whether the total page count has been reported.
func (p Progress) Known() bool { return p.TotalPages > 0 }

// Fraction returns completion in [0, 1].
func (p Progress) Fraction() float64 {
	if p.TotalPages <= 0 {
		return 0
	}
	f := float64(p.CurrentPage) / float64(p.TotalPages)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// Task is the single server-side job being observed.
type Task struct {
	ID        string
	Progress  Progress
	StartedAt time.Time
}

// Artifact is the redacted document handed to the ArtifactSink.
type Artifact struct {
	TaskID      string
	Name        string
	ContentType string
	Data        []byte

	// SourceName is the name of the uploaded file.
	SourceName string
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	State     State
	File      *validator.SelectedFile
	FileError *apierr.Error
	Selected  []string
	Task      *Task
	Err       *apierr.Error

	// Result describes the artifact delivered by the last completed task.
	Result *Artifact
}

// TaskID returns the active task id, or "".
func (s Snapshot) TaskID() string {
	if s.Task == nil {
		return ""
	}
	return s.Task.ID
}

// Progress returns the active task progress.
func (s Snapshot) Progress() Progress {
	if s.Task == nil {
		return Progress{}
	}
	return s.Task.Progress
}

// CanSubmit reports whether Submit would be accepted.
func (s Snapshot) CanSubmit() bool {
	return s.State == Idle && s.File != nil && s.FileError == nil && len(s.Selected) > 0
}
