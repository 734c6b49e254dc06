package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a Logger that records every entry down to TraceLevel.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns entries whose message contains msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessageSnippet(msg)
}

func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

// Count returns how many entries at level contain msg.
func (t *TestLogger) Count(level zapcore.Level, msg string) int {
	n := 0
	for _, e := range t.observed.All() {
		if e.Level == level && strings.Contains(e.Message, msg) {
			n++
		}
	}
	return n
}

func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if t.Count(level, msg) == 0 {
		tb.Errorf("no %v entry containing %q in %+v", level, msg, t.observed.All())
	}
}

func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if n := t.Count(level, msg); n > 0 {
		tb.Errorf("%d unexpected %v entries containing %q", n, level, msg)
	}
}

// AssertField checks that some entry containing msg carries key=expected,
// where the field value is compared as a string.
func (t *TestLogger) AssertField(tb testing.TB, msg, key, expected string) {
	tb.Helper()
	for _, e := range t.observed.FilterMessageSnippet(msg).All() {
		if v, ok := e.ContextMap()[key]; ok && v == expected {
			return
		}
	}
	tb.Errorf("no entry containing %q with %s=%q", msg, key, expected)
}
