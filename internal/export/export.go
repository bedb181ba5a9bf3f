// Package export spools current-view data extracts to disk so large
// downloads stream from a file instead of living in memory. Spooled files
// expire after a TTL and are removed by a background sweep.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cityair/conductor/internal/log"
)

// ErrUnknownExport indicates an export handle that does not exist or has
// already expired.
var ErrUnknownExport = errors.New("unknown export")

// Handle identifies a completed export for later download.
type Handle struct {
	ID        string    `json:"export_id"`
	Filename  string    `json:"filename"`
	Rows      int       `json:"rows"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Spool manages export files under a single directory.
type Spool struct {
	mu      sync.Mutex
	entries map[string]*entry

	dir    string
	ttl    time.Duration
	now    func() time.Time
	logger log.Logger
}

type entry struct {
	handle Handle
	path   string
}

// NewSpool creates a spool rooted at dir, creating the directory if needed.
func NewSpool(dir string, ttl time.Duration, logger log.Logger) (*Spool, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	return &Spool{
		entries: make(map[string]*entry),
		dir:     dir,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}, nil
}

// Writer is an export file being assembled. Commit registers it for
// download; Abort discards it. One of the two must be called.
type Writer struct {
	spool    *Spool
	id       string
	filename string
	path     string
	f        *os.File
}

// Create starts a new export file. filename is the download name offered to
// the client, not the on-disk name.
func (s *Spool) Create(filename string) (*Writer, error) {
	id := uuid.NewString()
	path := filepath.Join(s.dir, id+".csv")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0640)
	if err != nil {
		return nil, fmt.Errorf("creating export file: %w", err)
	}

	return &Writer{spool: s, id: id, filename: filename, path: path, f: f}, nil
}

// Write appends to the export file.
func (w *Writer) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

// Commit finishes the file and registers it for download.
func (w *Writer) Commit(rows int) (Handle, error) {
	if err := w.f.Close(); err != nil {
		return Handle{}, fmt.Errorf("closing export file: %w", err)
	}

	s := w.spool
	h := Handle{
		ID:        w.id,
		Filename:  w.filename,
		Rows:      rows,
		ExpiresAt: s.now().Add(s.ttl),
	}

	s.mu.Lock()
	s.entries[w.id] = &entry{handle: h, path: w.path}
	s.mu.Unlock()

	s.logger.Debug("export committed", "export_id", w.id, "rows", rows)
	return h, nil
}

// Abort discards the partial file.
func (w *Writer) Abort() error {
	_ = w.f.Close()
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing aborted export: %w", err)
	}
	return nil
}

// Open returns a reader over a committed export, failing with
// ErrUnknownExport if the handle is unknown or expired.
func (s *Spool) Open(id string) (io.ReadCloser, Handle, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok && s.now().After(e.handle.ExpiresAt) {
		delete(s.entries, id)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return nil, Handle{}, fmt.Errorf("export %q: %w", id, ErrUnknownExport)
	}

	f, err := os.Open(e.path)
	if err != nil {
		return nil, Handle{}, fmt.Errorf("opening export %q: %w", id, err)
	}
	return f, e.handle, nil
}

// Sweep removes expired export files and returns how many were deleted.
func (s *Spool) Sweep(now time.Time) int {
	s.mu.Lock()
	var stale []*entry
	for id, e := range s.entries {
		if now.After(e.handle.ExpiresAt) {
			stale = append(stale, e)
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	for _, e := range stale {
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove expired export", "path", e.path, "error", err)
		}
	}
	if len(stale) > 0 {
		s.logger.Info("swept expired exports", "count", len(stale))
	}
	return len(stale)
}

// Run sweeps on a fixed interval until stop is closed.
func (s *Spool) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}
