// Package apierr defines the structured error carried by validation and
// task lifecycle failures.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind is the machine-readable category of an Error.
type Kind string

// Local validation kinds.
const (
	InvalidFileType     Kind = "InvalidFileType"
	FileTooLarge        Kind = "FileTooLarge"
	InvalidPdfStructure Kind = "InvalidPdfStructure"
	TooManyPages        Kind = "TooManyPages"
)

// Remote lifecycle kinds.
const (
	UploadFailed      Kind = "UploadFailed"
	StatusCheckFailed Kind = "StatusCheckFailed"
	ProcessingFailed  Kind = "ProcessingFailed"
)

// maxTechnicalLen caps raw response bodies copied into TechnicalError.
const maxTechnicalLen = 500

// Details holds the optional diagnostic fields of an Error.
type Details struct {
	Suggestion     string         `json:"suggestion,omitempty"`
	TechnicalError string         `json:"technical_error,omitempty"`
	Filename       string         `json:"filename,omitempty"`
	CurrentPages   int            `json:"current_pages,omitempty"`
	MaxPages       int            `json:"max_pages,omitempty"`
	Extra          map[string]any `json:"-"`
}

// Error is a structured, user-presentable error.
type Error struct {
	Kind    Kind
	Title   string
	Message string
	Details *Details
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind) + ": " + e.Title
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Message)
}

// Suggestion returns the detail suggestion, or the kind's default.
func (e *Error) Suggestion() string {
	if e.Details != nil && e.Details.Suggestion != "" {
		return e.Details.Suggestion
	}
	return defaultSuggestion[e.Kind]
}

// New creates an Error with the kind's default title.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Title: Title(kind), Message: message}
}

// WithDetails attaches details and returns the receiver.
func (e *Error) WithDetails(d Details) *Error {
	e.Details = &d
	return e
}

// Title returns the default short title for a kind.
func Title(kind Kind) string {
	if t, ok := defaultTitle[kind]; ok {
		return t
	}
	return "Error"
}

var defaultTitle = map[Kind]string{
	InvalidFileType:     "Invalid file type",
	FileTooLarge:        "File too large",
	InvalidPdfStructure: "Invalid PDF",
	TooManyPages:        "Too many pages",
	UploadFailed:        "Upload failed",
	StatusCheckFailed:   "Status check failed",
	ProcessingFailed:    "Processing failed",
}

var defaultSuggestion = map[Kind]string{
	InvalidFileType:     "Please upload a PDF file",
	FileTooLarge:        "File size must be less than 10MB",
	InvalidPdfStructure: "The file does not look like a PDF. Re-export it and try again",
	TooManyPages:        "Split the document into smaller parts and upload them separately",
	UploadFailed:        "Check your connection and try again",
	StatusCheckFailed:   "Check your connection and try again",
	ProcessingFailed:    "Try again or upload a different document",
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// wireError is the backend error body.
type wireError struct {
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// Parse decodes a backend error body. Bodies that are not a structured
// error produce a generic network failure of the given kind carrying the
// raw body as the technical error.
func Parse(kind Kind, status int, body []byte) *Error {
	var w wireError
	if err := json.Unmarshal(body, &w); err != nil || (w.Error == "" && w.Message == "") {
		return Network(kind, fmt.Errorf("server returned %d: %s", status, truncate(strings.TrimSpace(string(body)), maxTechnicalLen)))
	}

	e := &Error{Kind: kind, Title: w.Error, Message: w.Message}
	if e.Title == "" {
		e.Title = Title(kind)
	}
	if len(w.Details) > 0 {
		if d, err := decodeDetails(w.Details); err == nil {
			e.Details = d
		}
	}
	return e
}

// Network builds the generic error used when a request fails without a
// structured body.
func Network(kind Kind, cause error) *Error {
	msg := "Failed to reach the anonymization service"
	switch kind {
	case UploadFailed:
		msg = "Failed to upload file"
	case StatusCheckFailed:
		msg = "Failed to check status"
	}
	e := New(kind, msg)
	if cause != nil {
		e.Details = &Details{TechnicalError: cause.Error()}
	}
	return e
}

func decodeDetails(raw json.RawMessage) (*Details, error) {
	var d Details
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}

	var all map[string]any
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, err
	}
	for _, known := range []string{"suggestion", "technical_error", "filename", "current_pages", "max_pages"} {
		delete(all, known)
	}
	if len(all) > 0 {
		d.Extra = all
	}
	return &d, nil
}

// MarshalJSON encodes the error in the backend wire shape.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"error":   e.Title,
		"message": e.Message,
	}
	if e.Details != nil {
		d := map[string]any{}
		for k, v := range e.Details.Extra {
			d[k] = v
		}
		if e.Details.Suggestion != "" {
			d["suggestion"] = e.Details.Suggestion
		}
		if e.Details.TechnicalError != "" {
			d["technical_error"] = e.Details.TechnicalError
		}
		if e.Details.Filename != "" {
			d["filename"] = e.Details.Filename
		}
		if e.Details.CurrentPages != 0 {
			d["current_pages"] = e.Details.CurrentPages
		}
		if e.Details.MaxPages != 0 {
			d["max_pages"] = e.Details.MaxPages
		}
		out["details"] = d
	}
	return json.Marshal(out)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
