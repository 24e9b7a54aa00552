package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/raphaelgruber/redactomat/internal/client"
	"github.com/raphaelgruber/redactomat/internal/session"
)

// fileSink saves delivered documents to disk. An existing directory as the
// target keeps the document name sent by the backend.
type fileSink struct {
	target string
	logger *slog.Logger

	mu   sync.Mutex
	path string
}

func newFileSink(target string, logger *slog.Logger) *fileSink {
	if target == "" {
		target = client.DefaultDocumentName
	}
	return &fileSink{target: target, logger: logger}
}

// Deliver implements session.ArtifactSink.
func (s *fileSink) Deliver(ctx context.Context, a session.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.target
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		name := a.Name
		if name == "" {
			name = client.DefaultDocumentName
		}
		path = filepath.Join(path, filepath.Base(name))
	}

	if err := writeFileAtomic(path, a.Data); err != nil {
		return err
	}

	s.mu.Lock()
	s.path = path
	s.mu.Unlock()

	s.logger.Info("document saved", "task_id", a.TaskID, "path", path, "bytes", len(a.Data))
	return nil
}

// Path returns where the last document was written.
func (s *fileSink) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// writeFileAtomic writes through a temp file in the same directory so a
// failed write never leaves a truncated PDF behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".redact-*.pdf")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close document: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod document: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}
