package logx

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{" warn ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in, zerolog.InfoLevel); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNopLoggerIsSafe(t *testing.T) {
	t.Parallel()
	log := Nop()
	log.Info("nothing happens", String("k", "v"), Err(errors.New("ignored")))
	log = log.With(Int("n", 1))
	log.Error("still nothing")
}

func TestZeroValueLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero value not IsZero")
	}
	log.Warn("no panic expected")
}

func TestWithDerivesWithoutMutatingParent(t *testing.T) {
	t.Parallel()
	parent := Nop()
	child := parent.With(String("comp", "test"))
	if len(parent.fields) != 0 {
		t.Fatal("With mutated the parent logger")
	}
	if len(child.fields) != 1 {
		t.Fatalf("child fields = %d, want 1", len(child.fields))
	}
	grand := child.With(Int("n", 2))
	if len(child.fields) != 1 || len(grand.fields) != 2 {
		t.Fatalf("field chain broken: %d/%d", len(child.fields), len(grand.fields))
	}
}

func TestServiceFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	svc, log := New(Config{
		Level:   "debug",
		Console: false,
		File:    FileConfig{Enabled: true, Path: path},
	})
	defer svc.Close()

	log.Info("hello file", String("k", "v"))
	svc.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, "hello file") || !strings.Contains(out, `"k":"v"`) {
		t.Fatalf("log output = %q", out)
	}
}

func TestServiceApplySwapsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	svc, log := New(Config{
		Level:   "error",
		Console: false,
		File:    FileConfig{Enabled: true, Path: path},
	})
	defer svc.Close()

	if log.Enabled(LevelDebug) {
		t.Fatal("debug enabled at error level")
	}
	log.Debug("suppressed")

	// Loggers created before Apply stay live and pick up the new level.
	svc.Apply(Config{Level: "debug", Console: false, File: FileConfig{Enabled: true, Path: path}})
	if !log.Enabled(LevelDebug) {
		t.Fatal("debug still disabled after Apply")
	}
	log.Debug("visible now")
	svc.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(b)
	if strings.Contains(out, "suppressed") {
		t.Fatal("suppressed line was written")
	}
	if !strings.Contains(out, "visible now") {
		t.Fatalf("post-Apply line missing: %q", out)
	}
}
