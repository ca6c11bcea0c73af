package logger

import (
	"errors"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		wantOK bool
	}{
		{"debug", true},
		{"info", true},
		{"warn", true},
		{"error", true},
		{"WARN", true},
		{"fatal", true},
		{"verbose", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); (got != nil) != tt.wantOK {
				t.Errorf("parseLevel(%q) = %v, want ok=%v", tt.in, got, tt.wantOK)
			}
		})
	}
}

func TestNewAndNop(t *testing.T) {
	for _, l := range []Logger{New("debug", false), New("info", true), Nop()} {
		child := l.With(String("component", "test"))
		child.Info("hello", Int("n", 1), Int64("version", 2), Uint64("token", 3), Bool("ok", true))
		child.Warn("careful", Error(errors.New("boom")))
	}
}
