package staffservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/starford/staffreg/internal/apperr"
	"github.com/starford/staffreg/internal/checksum"
	"github.com/starford/staffreg/internal/ingest"
	"github.com/starford/staffreg/internal/models"
	"github.com/starford/staffreg/internal/record"
	"github.com/starford/staffreg/internal/registry"
	"github.com/starford/staffreg/internal/storage"
)

// Employee is the JSON view of one record.
type Employee struct {
	Name       string   `json:"name"`
	Age        int      `json:"age"`
	Department string   `json:"department"`
	Position   string   `json:"position"`
	Manager    string   `json:"manager"`
	Workdays   []string `json:"workdays"`
}

// Department is one department with its members.
type Department struct {
	Name      string     `json:"name"`
	Employees []Employee `json:"employees"`
}

// Problem is one load diagnostic.
type Problem struct {
	Path  string `json:"path"`
	Line  int    `json:"line,omitempty"`
	Error string `json:"error"`
}

// ReloadResult summarises a reload.
type ReloadResult struct {
	Changed  bool      `json:"changed"`
	Files    int       `json:"files"`
	Loaded   int       `json:"loaded"`
	Failed   int       `json:"failed"`
	Problems []Problem `json:"problems"`
	At       time.Time `json:"at"`
}

// Stats reports the registry and the last reload.
type Stats struct {
	registry.IndexStats
	Workdays   []string  `json:"workday_tokens"`
	LastReload time.Time `json:"last_reload"`
	Digest     string    `json:"digest"`
}

// Service coordinates source storage, ingest and registry queries.
type Service struct {
	store  storage.Provider
	reg    *registry.Registry
	sep    string
	logger *slog.Logger

	mu         sync.Mutex // serialises reloads
	digest     string
	lastReload time.Time
}

// NewService creates a new staff service.
func NewService(store storage.Provider, reg *registry.Registry, sep string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, reg: reg, sep: sep, logger: logger}
}

// Registry returns the underlying registry.
func (s *Service) Registry() *registry.Registry { return s.reg }

// Reload loads every source file into the registry. Unless force is set, the
// reload is skipped when the source files are unchanged since the last one.
func (s *Service) Reload(_ context.Context, force bool) (*ReloadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force {
		digest, err := s.sourceDigest()
		if err != nil {
			return nil, err
		}
		if digest == s.digest {
			return &ReloadResult{Changed: false, Loaded: s.reg.Len(), Problems: []Problem{}, At: s.lastReload}, nil
		}
	}

	rep, err := ingest.LoadAll(s.reg, s.store, s.sep, s.logger)
	if err != nil {
		return nil, err
	}
	s.digest = rep.Digest
	s.lastReload = time.Now()

	s.logger.Info("registry reloaded",
		slog.Int("files", rep.Files),
		slog.Int("loaded", rep.Loaded),
		slog.Int("failed", rep.Failed()))

	problems := make([]Problem, 0, len(rep.Diagnostics))
	for _, d := range rep.Diagnostics {
		problems = append(problems, Problem{Path: d.Path, Line: d.Line, Error: d.Err.Error()})
	}
	return &ReloadResult{
		Changed:  true,
		Files:    rep.Files,
		Loaded:   rep.Loaded,
		Failed:   rep.Failed(),
		Problems: problems,
		At:       s.lastReload,
	}, nil
}

// Clear empties the registry. The next Reload loads the sources again even
// if they did not change.
func (s *Service) Clear(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg.Clear()
	s.digest = ""
}

// Employee returns the employee stored under name.
func (s *Service) Employee(_ context.Context, name string) (*Employee, error) {
	h, ok := s.reg.FindByName(name)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	rec, err := s.reg.Resolve(h)
	if err != nil {
		// Cleared between lookup and resolve.
		return nil, apperr.ErrNotFound
	}
	v := toEmployee(rec)
	return &v, nil
}

// Employees lists every employee, optionally restricted to an inclusive age
// range. A nil bound is open.
func (s *Service) Employees(_ context.Context, minAge, maxAge *int) []Employee {
	if minAge == nil && maxAge == nil {
		return s.views(s.reg.All())
	}
	lo, hi := math.MinInt, math.MaxInt
	if minAge != nil {
		lo = *minAge
	}
	if maxAge != nil {
		hi = *maxAge
	}
	return s.views(s.reg.InAgeRange(lo, hi))
}

// Search returns the employees whose name starts with prefix.
func (s *Service) Search(_ context.Context, prefix string) []Employee {
	return s.views(s.reg.FindByNamePrefix(prefix))
}

// Departments returns every department in name order.
func (s *Service) Departments(_ context.Context) []Department {
	groups := s.reg.GroupByDepartment()
	out := make([]Department, 0, len(groups))
	for _, g := range groups {
		out = append(out, Department{Name: g.Department, Employees: s.views(g.Members)})
	}
	return out
}

// Reports returns the reports of manager: only direct ones when direct is
// set, otherwise the whole subtree in pre-order.
func (s *Service) Reports(_ context.Context, manager string, direct bool) []Employee {
	if direct {
		return s.views(s.reg.DirectReports(manager))
	}
	return s.views(s.reg.TransitiveReports(manager))
}

// WorkingOn returns the employees working on any of days.
func (s *Service) WorkingOn(_ context.Context, days []string) []Employee {
	return s.views(s.reg.WorkingOn(days...))
}

// Stats returns registry statistics.
func (s *Service) Stats(_ context.Context) Stats {
	s.mu.Lock()
	last, digest := s.lastReload, s.digest
	s.mu.Unlock()
	return Stats{
		IndexStats: s.reg.Stats(),
		Workdays:   nonNilSlice(s.reg.Workdays()),
		LastReload: last,
		Digest:     digest,
	}
}

// Sources lists the source files.
func (s *Service) Sources(_ context.Context) ([]models.SourceMetadata, error) {
	metas, err := s.store.List("")
	if err != nil {
		return nil, err
	}
	return nonNilSlice(metas), nil
}

// PutSource writes a source file and reloads the registry.
func (s *Service) PutSource(ctx context.Context, path string, content []byte) (*ReloadResult, error) {
	if !s.store.IsSource(path) {
		return nil, fmt.Errorf("staffservice: %s is not a source file", path)
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	return s.Reload(ctx, false)
}

// DeleteSource removes a source file and reloads the registry.
func (s *Service) DeleteSource(ctx context.Context, path string) (*ReloadResult, error) {
	if err := s.store.Delete(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.Reload(ctx, false)
}

func (s *Service) sourceDigest() (string, error) {
	metas, err := s.store.List("")
	if err != nil {
		return "", fmt.Errorf("staffservice: list sources: %w: %w", apperr.ErrIOUnavailable, err)
	}
	sums := make(map[string]string, len(metas))
	for _, m := range metas {
		sums[m.Path] = m.Checksum
	}
	return checksum.Combine(sums), nil
}

func (s *Service) views(hs []registry.Handle) []Employee {
	recs := s.reg.Records(hs)
	out := make([]Employee, 0, len(recs))
	for _, r := range recs {
		out = append(out, toEmployee(r))
	}
	return out
}

func toEmployee(r *record.Record) Employee {
	return Employee{
		Name:       r.Name(),
		Age:        r.Age(),
		Department: r.Department(),
		Position:   r.Position(),
		Manager:    r.Manager(),
		Workdays:   r.Workdays(),
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
