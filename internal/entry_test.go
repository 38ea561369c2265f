package internal

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/staffreg/internal/record"
)

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheck_AllValid(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "org.tsv", "Alice\t30\tEng\tLead\t\tMon\tTue\nBob\t25\tEng\tDev\tAlice\tMon\n")

	var out bytes.Buffer
	err := Check(context.Background(), []string{path}, WithConfig(NewDefaultConfig()), WithOutput(&out))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want header + 2 rows + summary:\n%s", len(lines), out.String())
	}
	if lines[0] != record.Header() {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "Alice") || !strings.HasSuffix(strings.TrimRight(lines[1], " "), "Mon Tue") {
		t.Errorf("row = %q", lines[1])
	}
	if lines[3] != "2 loaded, 0 rejected, 0 unreadable" {
		t.Errorf("summary = %q", lines[3])
	}
}

func TestCheck_ReportsProblems(t *testing.T) {
	dir := t.TempDir()
	good := writeSource(t, dir, "good.tsv", "Alice\t30\tEng\tLead\t\tMon\n")
	bad := writeSource(t, dir, "bad.tsv", "Bob\t25\tEng\nCarol\tx\tOps\tHead\t\tWed\n")
	missing := filepath.Join(dir, "missing.tsv")

	var out bytes.Buffer
	err := Check(context.Background(), []string{good, bad, missing}, WithConfig(NewDefaultConfig()), WithOutput(&out))
	if !errors.Is(err, ErrCheckFailed) {
		t.Fatalf("err = %v, want ErrCheckFailed", err)
	}

	s := out.String()
	for _, want := range []string{bad + ":1:", bad + ":2:", missing + ":", "1 loaded, 2 rejected, 1 unreadable"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
}

func TestCheck_CustomDelimiter(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "org.csv", "Alice,30,Eng,Lead,,Mon\n")

	cfg := NewDefaultConfig()
	cfg.Source.Delimiter = "comma"
	var out bytes.Buffer
	if err := Check(context.Background(), []string{path}, WithConfig(cfg), WithOutput(&out)); err != nil {
		t.Fatalf("Check: %v\n%s", err, out.String())
	}
}

func TestCheck_RequiresConfig(t *testing.T) {
	if err := Check(context.Background(), nil); err == nil {
		t.Fatal("expected error without config")
	}
}
