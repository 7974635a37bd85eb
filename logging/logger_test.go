package logging

import (
	"bytes"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Run("info level", func(t *testing.T) {
		l := New(false)
		if l == nil {
			t.Fatal("New returned nil")
		}
		if l.Desugar().Core().Enabled(zapcore.DebugLevel) {
			t.Error("Debug level should be disabled when debug is false")
		}
		if !l.Desugar().Core().Enabled(zapcore.InfoLevel) {
			t.Error("Info level should be enabled")
		}
	})

	t.Run("debug level", func(t *testing.T) {
		l := New(true)
		if !l.Desugar().Core().Enabled(zapcore.DebugLevel) {
			t.Error("Debug level should be enabled when debug is true")
		}
	})
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}

	l := New(false)
	if OrNop(l) != l {
		t.Error("OrNop should return the given logger")
	}
}

func TestNewPlain(t *testing.T) {
	var buf bytes.Buffer
	l := NewPlain(&buf)

	l.Debug("hidden")
	l.Info("alice joined")
	l.Warn("connection lost")

	want := "[info] alice joined\n[warn] connection lost\n"
	if buf.String() != want {
		t.Errorf("Expected %q, got %q", want, buf.String())
	}
}
