package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newCapturedAdapter() (*SlogAdapter, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewSlogAdapter(logger), &buf
}

func TestSlogAdapterLevels(t *testing.T) {
	tests := []struct {
		name      string
		log       func(a *SlogAdapter)
		wantLevel string
		wantMsg   string
	}{
		{
			name:      "debug",
			log:       func(a *SlogAdapter) { a.Debugf("debug %s", "msg") },
			wantLevel: "DEBUG",
			wantMsg:   "debug msg",
		},
		{
			name:      "info",
			log:       func(a *SlogAdapter) { a.Infof("count=%d", 3) },
			wantLevel: "INFO",
			wantMsg:   "count=3",
		},
		{
			name:      "warn",
			log:       func(a *SlogAdapter) { a.Warnf("careful") },
			wantLevel: "WARN",
			wantMsg:   "careful",
		},
		{
			name:      "error",
			log:       func(a *SlogAdapter) { a.Errorf("broken: %v", "reason") },
			wantLevel: "ERROR",
			wantMsg:   "broken: reason",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, buf := newCapturedAdapter()
			tt.log(adapter)

			out := buf.String()
			if !strings.Contains(out, "level="+tt.wantLevel) {
				t.Errorf("output %q missing level %s", out, tt.wantLevel)
			}
			if !strings.Contains(out, tt.wantMsg) {
				t.Errorf("output %q missing message %q", out, tt.wantMsg)
			}
		})
	}
}

func TestNewSlogAdapterNilLogger(t *testing.T) {
	adapter := NewSlogAdapter(nil)
	if adapter.Logger() == nil {
		t.Error("NewSlogAdapter(nil) has no underlying logger")
	}
}
