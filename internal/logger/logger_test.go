package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func resetLogger() {
	_ = Init(Options{})
}

func TestInit_LevelSelection(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		logged    []string
		notLogged []string
	}{
		{
			name:      "default is info",
			opts:      Options{},
			logged:    []string{"info line", "warn line", "error line"},
			notLogged: []string{"debug line"},
		},
		{
			name:   "debug flag",
			opts:   Options{Debug: true},
			logged: []string{"debug line", "info line"},
		},
		{
			name:      "quiet wins over debug",
			opts:      Options{Debug: true, Quiet: true},
			logged:    []string{"error line"},
			notLogged: []string{"debug line", "info line", "warn line"},
		},
		{
			name:      "explicit level",
			opts:      Options{Level: "warn"},
			logged:    []string{"warn line", "error line"},
			notLogged: []string{"info line"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			opts := tt.opts
			opts.Output = buf
			if err := Init(opts); err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			defer resetLogger()

			Debug("debug line")
			Info("info line")
			Warn("warn line")
			Error("error line")

			out := buf.String()
			for _, want := range tt.logged {
				if !strings.Contains(out, want) {
					t.Errorf("expected %q in output, got %q", want, out)
				}
			}
			for _, unwanted := range tt.notLogged {
				if strings.Contains(out, unwanted) {
					t.Errorf("did not expect %q in output", unwanted)
				}
			}
		})
	}
}

func TestInit_BadLevelFallsBackToInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	err := Init(Options{Level: "chatty", Output: buf})
	defer resetLogger()

	if err == nil {
		t.Error("expected error for unknown level")
	}

	Info("still here")
	if !strings.Contains(buf.String(), "still here") {
		t.Error("expected info to be logged after fallback")
	}
}

func TestInit_JSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	_ = Init(Options{JSON: true, Output: buf})
	defer resetLogger()

	Info("pool acquire", "resource", "gemma-3-27b")

	out := buf.String()
	if !strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("expected JSON object, got %q", out)
	}
	if !strings.Contains(out, `"resource":"gemma-3-27b"`) {
		t.Errorf("expected resource attribute, got %q", out)
	}
}

func TestSetLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	SetLogger(slog.New(slog.NewTextHandler(buf, nil)))
	defer resetLogger()

	Info("custom logger")

	if !strings.Contains(buf.String(), "custom logger") {
		t.Error("expected message on custom logger")
	}
}

func TestComponent_AddsAttribute(t *testing.T) {
	buf := &bytes.Buffer{}
	_ = Init(Options{Output: buf})
	defer resetLogger()

	Component("keypool").Info("released")

	out := buf.String()
	if !strings.Contains(out, "component=keypool") {
		t.Errorf("expected component attribute, got %q", out)
	}
}

func TestWith_ReturnsLoggerWithAttrs(t *testing.T) {
	buf := &bytes.Buffer{}
	_ = Init(Options{Output: buf})
	defer resetLogger()

	With("run", "abc").Info("started")

	out := buf.String()
	if !strings.Contains(out, "run=abc") {
		t.Errorf("expected attributes in output, got %q", out)
	}
}

func TestContextVariants(t *testing.T) {
	buf := &bytes.Buffer{}
	_ = Init(Options{Debug: true, Output: buf})
	defer resetLogger()

	ctx := context.Background()
	DebugContext(ctx, "ctx debug")
	InfoContext(ctx, "ctx info")
	WarnContext(ctx, "ctx warn")
	ErrorContext(ctx, "ctx error")

	out := buf.String()
	for _, want := range []string{"ctx debug", "ctx info", "ctx warn", "ctx error"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output", want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"", slog.LevelInfo, false},
		{"trace", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
