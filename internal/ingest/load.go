// Package ingest feeds source files into a registry and watches the source
// directory for changes.
package ingest

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/starford/staffreg/internal/apperr"
	"github.com/starford/staffreg/internal/checksum"
	"github.com/starford/staffreg/internal/parser"
	"github.com/starford/staffreg/internal/registry"
	"github.com/starford/staffreg/internal/storage"
)

// Diagnostic is one problem found while loading. Line is 0 when the whole
// file could not be read.
type Diagnostic struct {
	Path string
	Line int
	Text string
	Err  error
}

func (d Diagnostic) Error() string {
	if d.Line == 0 {
		return fmt.Sprintf("%s: %v", d.Path, d.Err)
	}
	return fmt.Sprintf("%s:%d: %v", d.Path, d.Line, d.Err)
}

func (d Diagnostic) Unwrap() error { return d.Err }

// Report summarises a load over one or more files.
type Report struct {
	Files       int
	Loaded      int
	Skipped     int
	Digest      string
	Diagnostics []Diagnostic
}

// Failed returns the number of lines rejected by the parser.
func (r Report) Failed() int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Line > 0 {
			n++
		}
	}
	return n
}

// Unavailable returns the files that could not be read.
func (r Report) Unavailable() []string {
	var out []string
	for _, d := range r.Diagnostics {
		if errors.Is(d.Err, apperr.ErrIOUnavailable) {
			out = append(out, d.Path)
		}
	}
	return out
}

// LoadAll replaces the registry contents with every source file in store.
// Files are read in lexical path order and their lines concatenated. A file
// that cannot be read is reported once and contributes no records; the
// remaining files still load. Only a failure to list the source directory
// leaves the registry untouched and returns an error.
func LoadAll(reg *registry.Registry, store storage.Provider, sep string, logger *slog.Logger) (Report, error) {
	metas, err := store.List("")
	if err != nil {
		return Report{}, fmt.Errorf("ingest: list sources: %w: %w", apperr.ErrIOUnavailable, err)
	}
	paths := make([]string, len(metas))
	for i, m := range metas {
		paths[i] = m.Path
	}
	rep := load(paths, store.Read, sep, logger, func(lines []string) registry.LoadReport {
		return reg.Replace(lines, sep)
	})
	return rep, nil
}

// LoadFiles appends the records of the named files to the registry.
func LoadFiles(reg *registry.Registry, fsys afero.Fs, paths []string, sep string, logger *slog.Logger) Report {
	read := func(p string) ([]byte, error) { return afero.ReadFile(fsys, p) }
	return load(paths, read, sep, logger, func(lines []string) registry.LoadReport {
		return reg.LoadDelimited(lines, sep)
	})
}

type span struct {
	path  string
	first int // batch line number of the file's first line
}

func load(paths []string, read func(string) ([]byte, error), sep string, logger *slog.Logger, apply func([]string) registry.LoadReport) Report {
	if sep == "" {
		sep = parser.DefaultDelimiter
	}

	var (
		rep   Report
		lines []string
		spans []span
		sums  = make(map[string]string, len(paths))
	)
	for _, p := range paths {
		data, err := read(p)
		if err != nil {
			logger.Warn("ingest: source unavailable", slog.String("path", p), slog.String("error", err.Error()))
			rep.Diagnostics = append(rep.Diagnostics, Diagnostic{
				Path: p,
				Err:  fmt.Errorf("%w: %w", apperr.ErrIOUnavailable, err),
			})
			continue
		}
		sums[p] = checksum.Sum(data)
		spans = append(spans, span{path: p, first: len(lines) + 1})
		lines = append(lines, parser.Lines(data)...)
		rep.Files++
	}

	lr := apply(lines)
	rep.Loaded = lr.Loaded
	rep.Skipped = lr.Skipped
	rep.Digest = checksum.Combine(sums)

	for _, le := range lr.Errors {
		sp := locate(spans, le.Line)
		d := Diagnostic{Path: sp.path, Line: le.Line - sp.first + 1, Text: le.Text, Err: le.Err}
		logger.Warn("ingest: line rejected",
			slog.String("path", d.Path),
			slog.Int("line", d.Line),
			slog.String("error", le.Err.Error()))
		rep.Diagnostics = append(rep.Diagnostics, d)
	}

	logger.Debug("ingest: load finished",
		slog.Int("files", rep.Files),
		slog.Int("loaded", rep.Loaded),
		slog.Int("failed", rep.Failed()))
	return rep
}

// locate finds the file holding batch line n.
func locate(spans []span, n int) span {
	found := span{}
	for _, sp := range spans {
		if sp.first > n {
			break
		}
		found = sp
	}
	return found
}
