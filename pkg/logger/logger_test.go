package logger

import (
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestLevelStrings(t *testing.T) {
	cases := []struct {
		level   Level
		lower   string
		capital string
	}{
		{DebugLevel, "debug", "DEBUG"},
		{InfoLevel, "info", "INFO"},
		{SuccessLevel, "success", "SUCCESS"},
		{WarnLevel, "warn", "WARN"},
		{ErrorLevel, "error", "ERROR"},
	}
	for _, tc := range cases {
		if got := tc.level.String(); got != tc.lower {
			t.Errorf("%v.String() = %q, want %q", tc.level, got, tc.lower)
		}
		if got := tc.level.CapitalString(); got != tc.capital {
			t.Errorf("%v.CapitalString() = %q, want %q", tc.level, got, tc.capital)
		}
	}
}

func TestToZapLevel(t *testing.T) {
	if SuccessLevel.ToZapLevel() != zapcore.InfoLevel {
		t.Error("SuccessLevel should travel through zap as InfoLevel")
	}
	if DebugLevel.ToZapLevel() != zapcore.DebugLevel {
		t.Error("DebugLevel should map to zap debug")
	}
	if ErrorLevel.ToZapLevel() != zapcore.ErrorLevel {
		t.Error("ErrorLevel should map to zap error")
	}
}

func encodeOne(t *testing.T, opts Options, ent zapcore.Entry, fields ...zapcore.Field) string {
	t.Helper()
	enc := &consoleEncoder{Encoder: nil, opts: opts}
	buf, err := enc.EncodeEntry(ent, fields)
	if err != nil {
		t.Fatalf("EncodeEntry: %v", err)
	}
	defer buf.Free()
	return buf.String()
}

func TestConsoleEncoderPlainLine(t *testing.T) {
	opts := DefaultOptions()
	opts.ColorConsole = false

	out := encodeOne(t, opts, zapcore.Entry{
		Level:   zapcore.InfoLevel,
		Time:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Message: "hello",
	})
	if !strings.Contains(out, "[INFO]") {
		t.Errorf("expected level tag in output, got %q", out)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "2024-03-01") {
		t.Errorf("expected timestamp in output, got %q", out)
	}
}

func TestConsoleEncoderSuccessMarker(t *testing.T) {
	opts := DefaultOptions()
	opts.ColorConsole = false

	out := encodeOne(t, opts, zapcore.Entry{
		Level:   zapcore.InfoLevel,
		Message: "deployed",
	}, zapcore.Field{Key: levelMarkerKey, Type: zapcore.StringType, String: "SUCCESS"})

	if !strings.Contains(out, "[SUCCESS]") {
		t.Errorf("marker field should upgrade the tag to SUCCESS, got %q", out)
	}
	if strings.Contains(out, levelMarkerKey) {
		t.Errorf("marker field leaked into output: %q", out)
	}
}

func TestConsoleEncoderRendersFields(t *testing.T) {
	opts := DefaultOptions()
	opts.ColorConsole = false

	out := encodeOne(t, opts, zapcore.Entry{
		Level:   zapcore.WarnLevel,
		Message: "slow",
	}, zapcore.Field{Key: "task", Type: zapcore.StringType, String: "abc"},
		zapcore.Field{Key: "attempt", Type: zapcore.Int64Type, Integer: 3})

	if !strings.Contains(out, "task=abc") {
		t.Errorf("string field missing: %q", out)
	}
	if !strings.Contains(out, "attempt=3") {
		t.Errorf("int field missing: %q", out)
	}
}

func TestNewLoggerNoOutputsIsNop(t *testing.T) {
	l, err := NewLogger(Options{})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	// Must not panic.
	l.Infof("into the void")
	l.Successf("also into the void")
}

func TestNewLoggerFileOutputRequiresPath(t *testing.T) {
	opts := Options{FileOutput: true}
	if _, err := NewLogger(opts); err == nil {
		t.Error("expected error when file output has no path")
	}
}

func TestFileOutputWritesJSON(t *testing.T) {
	path := t.TempDir() + "/test.log"
	opts := Options{
		FileOutput:  true,
		FileLevel:   DebugLevel,
		LogFilePath: path,
	}
	l, err := NewLogger(opts)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	l.Infof("file entry %d", 42)
	_ = l.Sync()

	data := readFile(t, path)
	if !strings.Contains(data, "file entry 42") {
		t.Errorf("log file missing entry: %q", data)
	}
	if !strings.Contains(data, `"level":"INFO"`) {
		t.Errorf("log file not JSON encoded: %q", data)
	}
}

func TestGetInitializesDefault(t *testing.T) {
	if Get() == nil {
		t.Fatal("Get returned nil")
	}
	if Get() != Get() {
		t.Error("Get should return the same instance")
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}
