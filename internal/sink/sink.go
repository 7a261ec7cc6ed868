// ABOUTME: Write-if-changed file persistence for overlay output fields
// ABOUTME: Each field has its own ordered writer so writes never land out of order
package sink

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClosed is returned for writes submitted after Close
var ErrClosed = errors.New("sink closed")

const queueDepth = 64

// Result reports the outcome of one write request
type Result struct {
	Field   Field
	Written bool // False when the value matched what was already persisted
	Removed bool
	Err     error
}

// Writer is the write side consumed by the game clock, score and asset code
type Writer interface {
	WriteIfChanged(field Field, value string) <-chan Result
	WriteBytesIfChanged(field Field, data []byte) <-chan Result
}

type job struct {
	data   []byte
	remove bool
	done   chan Result
}

type fieldWriter struct {
	field  Field
	jobs   chan job
	sum    [sha256.Size]byte // digest of the persisted content
	exists bool
	known  bool // sum/exists reflect the file on disk
}

// Sink persists output fields into a directory
type Sink struct {
	dir string

	mu     sync.Mutex
	fields map[Field]*fieldWriter
	closed bool

	obsMu    sync.RWMutex
	observer func(Result)

	wg sync.WaitGroup
}

// New creates a sink writing into dir, creating it if needed
func New(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Sink{
		dir:    dir,
		fields: make(map[Field]*fieldWriter),
	}, nil
}

// SetObserver registers a callback invoked after every processed request
func (s *Sink) SetObserver(fn func(Result)) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observer = fn
}

// Dir returns the output directory
func (s *Sink) Dir() string {
	return s.dir
}

// Path returns the absolute file path of a field
func (s *Sink) Path(field Field) string {
	return filepath.Join(s.dir, string(field))
}

// WriteIfChanged persists a text value unless it equals the last persisted one.
// The returned channel is buffered; callers may wait on it or ignore it.
func (s *Sink) WriteIfChanged(field Field, value string) <-chan Result {
	return s.submit(field, job{data: []byte(value)})
}

// WriteBytesIfChanged is WriteIfChanged for binary content
func (s *Sink) WriteBytesIfChanged(field Field, data []byte) <-chan Result {
	return s.submit(field, job{data: bytes.Clone(data)})
}

// Clear removes every output file so stale values from an earlier session
// can't be mistaken for live data. It waits for all removals.
func (s *Sink) Clear() error {
	var errs []error
	for _, field := range AllFields() {
		res := <-s.submit(field, job{remove: true})
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}

// Close drains pending writes and stops the field writers
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, fw := range s.fields {
		close(fw.jobs)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Sink) submit(field Field, j job) <-chan Result {
	j.done = make(chan Result, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		j.done <- Result{Field: field, Err: ErrClosed}
		return j.done
	}
	fw, ok := s.fields[field]
	if !ok {
		fw = &fieldWriter{field: field, jobs: make(chan job, queueDepth)}
		s.fields[field] = fw
		s.wg.Add(1)
		go s.run(fw)
	}
	// Enqueue under the lock so Close cannot close the channel under us
	fw.jobs <- j
	s.mu.Unlock()

	return j.done
}

func (s *Sink) run(fw *fieldWriter) {
	defer s.wg.Done()

	for j := range fw.jobs {
		var res Result
		if j.remove {
			res = s.remove(fw)
		} else {
			res = s.write(fw, j.data)
		}

		s.obsMu.RLock()
		observer := s.observer
		s.obsMu.RUnlock()
		if observer != nil {
			observer(res)
		}

		j.done <- res
	}
}

func (s *Sink) remove(fw *fieldWriter) Result {
	res := Result{Field: fw.field}
	err := os.Remove(s.Path(fw.field))
	switch {
	case err == nil:
		res.Removed = true
	case errors.Is(err, fs.ErrNotExist):
	default:
		res.Err = fmt.Errorf("remove %s: %w", fw.field, err)
		log.Error().Err(err).Str("file", string(fw.field)).Msg("Could not remove output file")
		return res
	}
	fw.sum = [sha256.Size]byte{}
	fw.exists = false
	fw.known = true
	return res
}

func (s *Sink) write(fw *fieldWriter, data []byte) Result {
	res := Result{Field: fw.field}
	path := s.Path(fw.field)

	if !fw.known {
		if existing, err := os.ReadFile(path); err == nil {
			fw.sum = sha256.Sum256(existing)
			fw.exists = true
		}
		fw.known = true
	}

	sum := sha256.Sum256(data)
	if fw.exists && fw.sum == sum {
		return res
	}

	if err := writeAtomic(s.dir, path, data); err != nil {
		res.Err = fmt.Errorf("write %s: %w", fw.field, err)
		log.Error().Err(err).Str("file", string(fw.field)).Msg("Could not write output file")
		return res
	}

	fw.sum = sum
	fw.exists = true
	res.Written = true

	event := log.Info().Str("file", string(fw.field))
	if fw.field.IsImage() {
		event.Int("bytes", len(data)).Msg("Image saved")
	} else {
		event.Str("value", string(data)).Msgf("%q ==> saved to file %q", string(data), string(fw.field))
	}
	return res
}

// writeAtomic replaces path via a temp file so pollers never see a partial file
func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
