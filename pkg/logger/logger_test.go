package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wonny/optrader/pkg/config"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("Failed to parse log output: %v (%q)", err, buf.String())
	}
	return logEntry
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"invalid", zerolog.InfoLevel}, // Default
		{"", zerolog.InfoLevel},        // Default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoggerMethods(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug")

	tests := []struct {
		name      string
		logFunc   func()
		wantMsg   string
		wantLevel string
	}{
		{"debug", func() { log.Debug("tick batch drained") }, "tick batch drained", "debug"},
		{"info", func() { log.Info("entry placed") }, "entry placed", "info"},
		{"warn", func() { log.Warn("positions unavailable") }, "positions unavailable", "warn"},
		{"error", func() { log.Error("ledger write failed") }, "ledger write failed", "error"},
		{"infof", func() { log.Infof("lots: %d", 4) }, "lots: 4", "info"},
		{"warnf", func() { log.Warnf("retry attempt: %d", 2) }, "retry attempt: 2", "warn"},
		{"errorf", func() { log.Errorf("dial failed: %s", "timeout") }, "dial failed: timeout", "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.logFunc()

			entry := decodeEntry(t, &buf)
			if entry["level"] != tt.wantLevel {
				t.Errorf("Expected level %q, got %q", tt.wantLevel, entry["level"])
			}
			if entry["message"] != tt.wantMsg {
				t.Errorf("Expected message %q, got %q", tt.wantMsg, entry["message"])
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn")

	log.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered at warn level, got %q", buf.String())
	}

	log.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("Expected warn entry, got %q", buf.String())
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug")

	log.Component("lifecycle").Instrument("NIFTY26OCT25000CE", 12345).WithFields(map[string]interface{}{
		"lots": 2,
	}).Info("stop trailed")

	entry := decodeEntry(t, &buf)
	if entry["component"] != "lifecycle" {
		t.Errorf("Expected component lifecycle, got %v", entry["component"])
	}
	if entry["symbol"] != "NIFTY26OCT25000CE" {
		t.Errorf("Expected symbol, got %v", entry["symbol"])
	}
	if entry["token"] != float64(12345) {
		t.Errorf("Expected token 12345, got %v", entry["token"])
	}
	if entry["lots"] != float64(2) {
		t.Errorf("Expected lots 2, got %v", entry["lots"])
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug")

	log.WithField("order_id", "230101000001").WithError(errors.New("order rejected")).Error("exit failed")

	entry := decodeEntry(t, &buf)
	if entry["error"] != "order rejected" {
		t.Errorf("Expected error field, got %v", entry["error"])
	}
	if entry["order_id"] != "230101000001" {
		t.Errorf("Expected order_id field, got %v", entry["order_id"])
	}
}

func TestNop(t *testing.T) {
	// must not panic
	Nop().WithField("k", "v").Error("discarded")
}

func TestLogFormats(t *testing.T) {
	tests := []struct {
		name   string
		format string
	}{
		{"json format", "json"},
		{"console format", "console"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldStdout := os.Stdout
			r, w, _ := os.Pipe()
			os.Stdout = w

			log := New(&config.Config{
				Env:       "development",
				LogLevel:  "info",
				LogFormat: tt.format,
			})
			log.Info("test message")

			w.Close()
			os.Stdout = oldStdout

			var buf bytes.Buffer
			_, _ = io.Copy(&buf, r)

			if !strings.Contains(buf.String(), "test message") {
				t.Errorf("Expected output to contain 'test message', got: %s", buf.String())
			}
		})
	}
}
