package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("LOG_FORMAT", "xml")
	t.Setenv("LOG_TO_FILE", "false")
	t.Setenv("LOG_TO_CONSOLE", "")
	t.Setenv("LOG_FILE", "")
	t.Setenv("LOG_CALLER", "")

	o := OptionsFromEnv()
	if o.Level != zapcore.WarnLevel {
		t.Fatalf("level = %v", o.Level)
	}
	if o.Format != FormatLegacy {
		t.Fatalf("unknown format should fall back to legacy, got %q", o.Format)
	}
	if !o.Console || o.ToFile {
		t.Fatalf("sinks = console:%v file:%v", o.Console, o.ToFile)
	}
	if o.FilePath != filepath.Join("logs", "court-queue.log") {
		t.Fatalf("file path = %q", o.FilePath)
	}
}

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	l, err := New(Options{Level: zapcore.InfoLevel, Format: FormatJSON, ToFile: true, FilePath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug("hidden")
	l.Info("queue_enqueue", zap.String("match_id", "m1"))
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(raw)
	if !strings.Contains(out, `"msg":"queue_enqueue"`) || !strings.Contains(out, `"match_id":"m1"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written at info level")
	}
}

func TestSetReplacesGlobal(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(nil) })

	L().Info("match_start")
	if logs.FilterMessage("match_start").Len() != 1 {
		t.Fatalf("global logger not replaced")
	}
}
