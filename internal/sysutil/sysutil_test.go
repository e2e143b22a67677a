package sysutil

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func keepLogging(t *testing.T) {
	t.Helper()
	lvl, logger, ctxLogger := zerolog.GlobalLevel(), log.Logger, zerolog.DefaultContextLogger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(lvl)
		log.Logger = logger
		zerolog.DefaultContextLogger = ctxLogger
	})
}

func TestSetLogLevel(t *testing.T) {
	keepLogging(t)

	cases := map[string]zerolog.Level{
		"debug":     zerolog.DebugLevel,
		"  DeBuG  ": zerolog.DebugLevel,
		"info":      zerolog.InfoLevel,
		"":          zerolog.InfoLevel,
		"warn":      zerolog.WarnLevel,
		"warning":   zerolog.WarnLevel,
		"error":     zerolog.ErrorLevel,
		"fatal":     zerolog.FatalLevel,
		"panic":     zerolog.PanicLevel,
		"trace":     zerolog.InfoLevel,
		"disabled":  zerolog.InfoLevel,
		"verbose":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		SetLogLevel(in)
		if got := zerolog.GlobalLevel(); got != want {
			t.Fatalf("SetLogLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestSetupLogger_JSON(t *testing.T) {
	keepLogging(t)
	var buf bytes.Buffer

	l := SetupLogger("warn", false, &buf)
	l.Info().Msg("dropped")
	log.Warn().Str("post_id", "p1").Msg("kept")

	out := strings.TrimSpace(buf.String())
	if strings.Contains(out, "dropped") {
		t.Fatalf("info line written at warn level: %s", out)
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(out), &line); err != nil {
		t.Fatalf("not one JSON line: %q (%v)", out, err)
	}
	if line["message"] != "kept" || line["post_id"] != "p1" || line["service"] != "post-scheduler" {
		t.Fatalf("unexpected fields: %v", line)
	}
	if _, ok := line["time"].(string); !ok {
		t.Fatalf("missing timestamp: %v", line)
	}
}

func TestSetupLogger_Pretty(t *testing.T) {
	keepLogging(t)
	var buf bytes.Buffer

	logger := SetupLogger("info", true, &buf)
	logger.Info().Msg("hello")
	out := buf.String()
	if !strings.Contains(out, "hello") || strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected console output, got %q", out)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty("", "  ", "v1.2.0", "dev"); got != "v1.2.0" {
		t.Fatalf("got %q", got)
	}
	if got := FirstNonEmpty("", " "); got != "" {
		t.Fatalf("all blank should yield empty, got %q", got)
	}
}
