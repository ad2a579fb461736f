package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, Warn)
	defer Close()

	Debugf("debug %d", 1)
	Infof("info %d", 2)
	Warnf("warn %d", 3)
	Errorf("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Fatalf("lines below the level must be dropped: %q", out)
	}
	if !strings.Contains(out, "[WARN] warn 3") || !strings.Contains(out, "[ERROR] error 4") {
		t.Fatalf("missing lines: %q", out)
	}
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "honeywatch.log")
	if err := Init(true, "debug", path, false); err != nil {
		t.Fatalf("init: %v", err)
	}
	Debugf("ALERT: %s", "PORT_SCAN")
	if err := Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "[DEBUG] ALERT: PORT_SCAN") {
		t.Fatalf("unexpected log file %q", data)
	}
}

func TestDisabledLoggerDropsEverything(t *testing.T) {
	if err := Init(false, "debug", "", true); err != nil {
		t.Fatalf("init: %v", err)
	}
	Errorf("dropped")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"DEBUG": Debug, "warning": Warn, "error": Error, "": Info, "bogus": Info}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
