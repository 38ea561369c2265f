// Package registry owns the employee records and the derived lookup indexes
// over them.
//
// The registry is the single owner of every record. Callers receive Handles:
// stable references that resolve to a read-only record until the next Clear
// or Replace, after which they report themselves stale.
//
// Load, Replace and Clear rebuild the indexes before releasing the write lock,
// so readers never observe indexes that disagree with storage.
// RebuildAllIndexes stays available for callers that want to force a rebuild.
package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/staffreg/internal/apperr"
	"github.com/starford/staffreg/internal/parser"
	"github.com/starford/staffreg/internal/record"
)

// Registry stores records in an arena and answers queries through its
// indexes. It is safe for concurrent use: queries share a read lock and
// mutations take the write lock.
type Registry struct {
	mu      sync.RWMutex
	storage []record.Record
	gen     uint64
	idx     *indexes
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for rebuild diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{idx: newIndexes()}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Handle is a reference to a record owned by a Registry. The zero Handle
// resolves to nothing.
type Handle struct {
	reg *Registry
	gen uint64
	id  uint32
}

// Record resolves the handle. ok is false once the registry was cleared.
func (h Handle) Record() (rec *record.Record, ok bool) {
	if h.reg == nil {
		return nil, false
	}
	h.reg.mu.RLock()
	defer h.reg.mu.RUnlock()
	return h.reg.resolveLocked(h)
}

// Valid reports whether the handle still resolves.
func (h Handle) Valid() bool {
	_, ok := h.Record()
	return ok
}

// LineError describes one source line that could not be parsed.
type LineError struct {
	Line int // 1-based position in the loaded batch
	Text string
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e LineError) Unwrap() error { return e.Err }

// LoadReport is the per-line outcome of a load.
type LoadReport struct {
	Loaded  int
	Skipped int // blank lines
	Errors  []LineError
}

// OK reports whether every non-blank line was loaded.
func (r LoadReport) OK() bool { return len(r.Errors) == 0 }

// Load parses lines and appends every well-formed record to storage in input
// order. Bad lines are reported in the result and do not stop the load.
// Handles issued earlier stay valid.
func (r *Registry) Load(lines []string) LoadReport {
	return r.LoadDelimited(lines, parser.DefaultDelimiter)
}

// LoadDelimited is Load with a custom field delimiter.
func (r *Registry) LoadDelimited(lines []string, sep string) LoadReport {
	recs, rep := parseLines(lines, sep)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage = append(r.storage, recs...)
	r.rebuildLocked()
	return rep
}

// Replace clears the registry and loads lines as one step. Handles issued
// before the call become stale.
func (r *Registry) Replace(lines []string, sep string) LoadReport {
	recs, rep := parseLines(lines, sep)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage = recs
	r.gen++
	r.rebuildLocked()
	return rep
}

// Clear drops every record and empties all indexes. Handles issued before the
// call become stale.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage = nil
	r.gen++
	r.idx = newIndexes()
}

// RebuildAllIndexes discards the indexes and rebuilds them from storage.
func (r *Registry) RebuildAllIndexes() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuildLocked()
}

// Clone returns an independent registry holding the same records, with its
// own indexes. Handles of the receiver do not resolve against the clone.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := &Registry{
		storage: make([]record.Record, len(r.storage)),
		logger:  r.logger,
	}
	copy(c.storage, r.storage)
	c.idx = buildIndexes(c.storage)
	return c
}

// Resolve returns the record behind h.
func (r *Registry) Resolve(h Handle) (*record.Record, error) {
	if h.reg != r {
		return nil, apperr.ErrStaleHandle
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.resolveLocked(h)
	if !ok {
		return nil, apperr.ErrStaleHandle
	}
	return rec, nil
}

// Records resolves handles in order, skipping stale ones.
func (r *Registry) Records(hs []Handle) []*record.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*record.Record, 0, len(hs))
	for _, h := range hs {
		if h.reg != r {
			continue
		}
		if rec, ok := r.resolveLocked(h); ok {
			out = append(out, rec)
		}
	}
	return out
}

// Len returns the number of stored records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.storage)
}

func (r *Registry) resolveLocked(h Handle) (*record.Record, bool) {
	if h.gen != r.gen || int(h.id) >= len(r.storage) {
		return nil, false
	}
	return &r.storage[h.id], true
}

func (r *Registry) handle(id uint32) Handle {
	return Handle{reg: r, gen: r.gen, id: id}
}

func (r *Registry) handles(ids []uint32) []Handle {
	if len(ids) == 0 {
		return nil
	}
	out := make([]Handle, len(ids))
	for i, id := range ids {
		out[i] = r.handle(id)
	}
	return out
}

func (r *Registry) rebuildLocked() {
	r.idx = buildIndexes(r.storage)
	r.logger.Debug("registry: indexes rebuilt",
		slog.Int("records", len(r.storage)),
		slog.Int("departments", len(r.idx.byDepartment)),
		slog.Int("workdays", len(r.idx.byWorkday)))
}

func parseLines(lines []string, sep string) ([]record.Record, LoadReport) {
	var rep LoadReport
	recs := make([]record.Record, 0, len(lines))
	for i, line := range lines {
		if parser.Blank(line, sep) {
			rep.Skipped++
			continue
		}
		rec, err := record.ParseDelimited(line, sep)
		if err != nil {
			rep.Errors = append(rep.Errors, LineError{Line: i + 1, Text: line, Err: err})
			continue
		}
		recs = append(recs, rec)
	}
	rep.Loaded = len(recs)
	return recs, rep
}
