package validator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/raphaelgruber/redactomat/internal/apierr"
)

// errNotRead marks a report for a file over the size limit.
var errNotRead = errors.New("file exceeds the size limit, content not read")

// Report describes a file in more depth than Validate. It is informational
// and never gates submission.
type Report struct {
	Name         string
	DeclaredType string
	DetectedType string
	Size         int64
	SHA256       string
	PageEstimate int
	ParsedPages  int
	ParseError   error
	Validation   error
}

// HeuristicAgrees reports whether the marker count matches the parsed count.
func (r *Report) HeuristicAgrees() bool {
	return r.ParseError == nil && r.PageEstimate == r.ParsedPages
}

// Inspect validates raw and additionally sniffs the content type and parses
// the page tree. At most MaxBytes+1 bytes are read; a larger file yields a
// report without content details.
func (l Limits) Inspect(raw RawFile) (*Report, error) {
	l = l.withDefaults()

	if raw.Open == nil {
		return nil, fmt.Errorf("inspect %s: no content", raw.Name)
	}

	data, err := readAll(raw, l.MaxBytes)
	if apierr.Is(err, apierr.FileTooLarge) {
		return &Report{
			Name:         raw.Name,
			DeclaredType: raw.MediaType,
			Size:         raw.Size,
			ParseError:   errNotRead,
			Validation:   err,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	report := &Report{
		Name:         raw.Name,
		DeclaredType: raw.MediaType,
		DetectedType: mimetype.Detect(data).String(),
		Size:         int64(len(data)),
		SHA256:       hex.EncodeToString(sum[:]),
		PageEstimate: CountPages(data),
	}

	report.ParsedPages, report.ParseError = parsePageCount(data)

	_, report.Validation = l.Validate(FromBytes(raw.Name, raw.MediaType, data))
	return report, nil
}

// parsePageCount walks the page tree. The parser panics on some malformed
// inputs, so panics are turned into errors.
func parsePageCount(data []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pdf: %w", err)
	}
	return r.NumPage(), nil
}
