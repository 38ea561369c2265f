// Package testutil provides shared test helpers for source directories and registries.
package testutil

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/starford/staffreg/internal/registry"
	"github.com/starford/staffreg/internal/storage"
)

// OrgLines is a small organisation used across package tests:
//
//	Alice
//	├── Bob
//	│   └── Dan
//	└── Carol
//	    └── Erin
//
// Finn reports to nobody.
var OrgLines = []string{
	"Alice\t52\tExec\tCEO\t\tMon\tTue\tWed\tThu\tFri",
	"Bob\t41\tEng\tDirector\tAlice\tMon\tTue",
	"Carol\t38\tSales\tDirector\tAlice\tWed\tThu",
	"Dan\t29\tEng\tDeveloper\tBob\tMon\tFri",
	"Erin\t33\tSales\tRep\tCarol\tSat",
	"Finn\t24\tOps\tIntern\t\tSun",
}

// QuietLogger returns a logger that discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestSources creates an in-memory source directory with the given files.
func TestSources(t *testing.T, files map[string]string) (afero.Fs, storage.Provider) {
	t.Helper()
	mem := afero.NewMemMapFs()
	if err := mem.MkdirAll("/staff", 0o755); err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewFS(mem, "/staff", "")
	if err != nil {
		t.Fatal(err)
	}
	for p, content := range files {
		if err := store.Write(p, []byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	return mem, store
}

// OrgSources creates a source directory holding OrgLines in org.tsv.
func OrgSources(t *testing.T) (afero.Fs, storage.Provider) {
	t.Helper()
	return TestSources(t, map[string]string{"org.tsv": strings.Join(OrgLines, "\n") + "\n"})
}

// TestRegistry returns a registry loaded with lines.
func TestRegistry(t *testing.T, lines ...string) *registry.Registry {
	t.Helper()
	reg := registry.New(registry.WithLogger(QuietLogger()))
	if rep := reg.Load(lines); !rep.OK() {
		t.Fatalf("load: %v", rep.Errors)
	}
	return reg
}
