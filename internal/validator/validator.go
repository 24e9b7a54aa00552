// Package validator performs the local checks a PDF must pass before it is
// uploaded for anonymization.
//
// Checks run in a fixed order and stop at the first failure:
//
//  1. declared media type is application/pdf
//  2. size is within Limits.MaxBytes
//  3. content starts with the %PDF- signature
//  4. the page-marker count is within Limits.MaxPages
//
// The page count in step 4 is a textual scan for "/Type /Page" markers, not a
// parse of the object graph. PDFs whose page objects live in compressed
// object streams are under-counted, and stray markers in uncompressed content
// can over-count. Treat it as an estimate.
package validator

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"regexp"

	"github.com/raphaelgruber/redactomat/internal/apierr"
)

// PDFMediaType is the only accepted declared media type.
const PDFMediaType = "application/pdf"

const (
	// DefaultMaxBytes is the upload size ceiling (10 MiB).
	DefaultMaxBytes int64 = 10 * 1024 * 1024
	// DefaultMaxPages is the page ceiling enforced by the backend.
	DefaultMaxPages = 10
)

var pdfSignature = []byte("%PDF-")

// pageMarker matches page objects but not the /Pages tree root.
var pageMarker = regexp.MustCompile(`/Type\s*/Page\b`)

// Limits bounds what Validate accepts.
type Limits struct {
	MaxBytes int64
	MaxPages int
}

// DefaultLimits returns the limits the backend enforces.
func DefaultLimits() Limits {
	return Limits{MaxBytes: DefaultMaxBytes, MaxPages: DefaultMaxPages}
}

func (l Limits) withDefaults() Limits {
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultMaxBytes
	}
	if l.MaxPages <= 0 {
		l.MaxPages = DefaultMaxPages
	}
	return l
}

// RawFile is a file as picked by the user, before validation.
type RawFile struct {
	Name      string
	MediaType string
	Size      int64
	Open      func() (io.ReadCloser, error)
}

// SelectedFile is a file that passed validation. It is never mutated.
type SelectedFile struct {
	Name         string
	MediaType    string
	Size         int64
	Data         []byte
	PageEstimate int
}

// FromPath builds a RawFile from disk. The declared media type comes from
// the file extension, as a browser would report it. A non-empty
// contentType overrides it.
func FromPath(path, contentType string) (RawFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return RawFile{}, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return RawFile{}, fmt.Errorf("%s is a directory", path)
	}

	mediaType := contentType
	if mediaType == "" {
		mediaType = mime.TypeByExtension(filepath.Ext(path))
		if base, _, err := mime.ParseMediaType(mediaType); err == nil {
			mediaType = base
		}
	}

	return RawFile{
		Name:      filepath.Base(path),
		MediaType: mediaType,
		Size:      info.Size(),
		Open:      func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// FromBytes builds a RawFile over an in-memory buffer.
func FromBytes(name, mediaType string, data []byte) RawFile {
	return RawFile{
		Name:      name,
		MediaType: mediaType,
		Size:      int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Validate checks raw against the default limits.
func Validate(raw RawFile) (*SelectedFile, error) {
	return Limits{}.Validate(raw)
}

// Validate checks raw and returns the accepted file. Failures are always
// *apierr.Error.
func (l Limits) Validate(raw RawFile) (*SelectedFile, error) {
	l = l.withDefaults()

	if raw.MediaType != PDFMediaType {
		return nil, apierr.New(apierr.InvalidFileType, "Please upload a PDF file").
			WithDetails(apierr.Details{Filename: raw.Name, TechnicalError: "declared type: " + displayType(raw.MediaType)})
	}

	if raw.Size > l.MaxBytes {
		return nil, tooLarge(raw.Name, l.MaxBytes)
	}

	data, err := readAll(raw, l.MaxBytes)
	if err != nil {
		return nil, err
	}

	if !bytes.HasPrefix(data, pdfSignature) {
		return nil, apierr.New(apierr.InvalidPdfStructure, "The file is not a valid PDF document").
			WithDetails(apierr.Details{Filename: raw.Name})
	}

	pages := CountPages(data)
	if pages > l.MaxPages {
		return nil, apierr.New(apierr.TooManyPages,
			fmt.Sprintf("The document has %d pages, the maximum is %d", pages, l.MaxPages)).
			WithDetails(apierr.Details{
				Filename:     raw.Name,
				CurrentPages: pages,
				MaxPages:     l.MaxPages,
			})
	}

	return &SelectedFile{
		Name:         raw.Name,
		MediaType:    raw.MediaType,
		Size:         int64(len(data)),
		Data:         data,
		PageEstimate: pages,
	}, nil
}

// CountPages returns the number of page-object markers in data.
func CountPages(data []byte) int {
	return len(pageMarker.FindAllIndex(data, -1))
}

// readAll reads at most maxBytes. The declared size is not trusted: a
// longer stream still fails as too large.
func readAll(raw RawFile, maxBytes int64) ([]byte, error) {
	if raw.Open == nil {
		return nil, apierr.New(apierr.InvalidPdfStructure, "The file could not be read").
			WithDetails(apierr.Details{Filename: raw.Name, TechnicalError: "no content"})
	}

	rc, err := raw.Open()
	if err != nil {
		return nil, readFailed(raw.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxBytes+1))
	if err != nil {
		return nil, readFailed(raw.Name, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, tooLarge(raw.Name, maxBytes)
	}
	return data, nil
}

func tooLarge(name string, maxBytes int64) *apierr.Error {
	return apierr.New(apierr.FileTooLarge,
		fmt.Sprintf("File size must be less than %dMB", maxBytes/(1024*1024))).
		WithDetails(apierr.Details{Filename: name, Extra: map[string]any{"max_bytes": maxBytes}})
}

func readFailed(name string, err error) *apierr.Error {
	var pathErr *os.PathError
	msg := "The file could not be read"
	if errors.As(err, &pathErr) {
		msg = "The file could not be opened"
	}
	return apierr.New(apierr.InvalidPdfStructure, msg).
		WithDetails(apierr.Details{Filename: name, TechnicalError: err.Error()})
}

func displayType(t string) string {
	if t == "" {
		return "unknown"
	}
	return t
}
