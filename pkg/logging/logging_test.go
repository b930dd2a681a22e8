package logging

import (
	"bytes"
	"errors"
	"testing"
)

func TestLogLevelString(t *testing.T) {
	cases := []struct {
		level LogLevel
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tc := range cases {
		if got := tc.level.String(); got != tc.want {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tc.level, got, tc.want)
		}
	}
}

func TestInitAndLog(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelInfo, &buf)

	Info("TestSubsystem", "hello %s", "world")

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("hello world")) {
		t.Errorf("expected log output to contain message, got: %s", out)
	}
	if !bytes.Contains([]byte(out), []byte("TestSubsystem")) {
		t.Errorf("expected log output to contain subsystem, got: %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelWarn, &buf)

	Debug("Filter", "should be suppressed")
	Info("Filter", "should be suppressed too")

	if buf.Len() != 0 {
		t.Errorf("expected no output below filter level, got: %s", buf.String())
	}

	Warn("Filter", "should appear")
	if buf.Len() == 0 {
		t.Error("expected warn output to pass the filter")
	}
}

func TestErrorIncludesErrAttribute(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, &buf)

	Error("Store", errors.New("disk full"), "save failed")

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("disk full")) {
		t.Errorf("expected error attribute in output, got: %s", out)
	}
}
