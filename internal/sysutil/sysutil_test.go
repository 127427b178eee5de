package sysutil

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func preserveLogging(t *testing.T) {
	t.Helper()
	lvl, lg, def, tf := zerolog.GlobalLevel(), log.Logger, zerolog.DefaultContextLogger, zerolog.TimeFieldFormat
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(lvl)
		log.Logger = lg
		zerolog.DefaultContextLogger = def
		zerolog.TimeFieldFormat = tf
	})
}

func TestSetLogLevel_AllVariants(t *testing.T) {
	preserveLogging(t)

	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"  DeBuG  ", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"unknown", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		if got := SetLogLevel(tc.in); got != tc.want {
			t.Fatalf("SetLogLevel(%q) returned %v; want %v", tc.in, got, tc.want)
		}
		if got := zerolog.GlobalLevel(); got != tc.want {
			t.Fatalf("SetLogLevel(%q) -> global %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestConfigureLogging_JSON(t *testing.T) {
	preserveLogging(t)
	var buf bytes.Buffer

	ConfigureLogging(&buf, "warn", false)
	log.Info().Msg("hidden")
	log.Warn().Str("chat_id", "c1").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info must be filtered at warn: %s", out)
	}
	for _, want := range []string{`"level":"warn"`, `"chat_id":"c1"`, `"service":"support-chat"`, `"time":`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}

	// Contexts without a logger fall back to the configured one.
	buf.Reset()
	zerolog.Ctx(context.Background()).Warn().Msg("from ctx")
	if !strings.Contains(buf.String(), "from ctx") {
		t.Fatalf("default context logger not installed: %q", buf.String())
	}
}

func TestConfigureLogging_Pretty(t *testing.T) {
	preserveLogging(t)
	var buf bytes.Buffer

	ConfigureLogging(&buf, "debug", true)
	log.Debug().Msg("console line")

	out := buf.String()
	if !strings.Contains(out, "console line") || strings.HasPrefix(out, "{") {
		t.Fatalf("expected console output, got %q", out)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty(); got != "" {
		t.Fatalf("FirstNonEmpty() = %q", got)
	}
	if got := FirstNonEmpty(" ", "\t", "\n"); got != "" {
		t.Fatalf("FirstNonEmpty(empties) = %q", got)
	}
	if got := FirstNonEmpty("   ", "  hello  ", "world"); got != "  hello  " {
		t.Fatalf("FirstNonEmpty(...) = %q", got)
	}
}
