package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"market-engine/src/config"
)

func TestInitLoggerLevelAndGlobal(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	InitLoggerTo(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	defer CloseLogger()

	buf.Reset()
	log.Info().Msg("hidden")
	log.Warn().Str("market_id", "m1").Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at warn level: %s", out)
	}
	if !strings.Contains(out, `"market_id":"m1"`) {
		t.Errorf("warn line missing from output: %s", out)
	}
}

func TestInitLoggerUnknownLevelFallsBackToInfo(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	InitLoggerTo(config.LogConfig{Level: "chatty"}, &buf)
	defer CloseLogger()

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("GlobalLevel = %s, want info", zerolog.GlobalLevel())
	}
}

func TestInitLoggerTeesToFile(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	path := filepath.Join(t.TempDir(), "engine.log")
	var buf bytes.Buffer
	InitLoggerTo(config.LogConfig{Level: "info", File: path}, &buf)

	log.Info().Msg("to both")
	CloseLogger()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to both") {
		t.Errorf("log file missing line: %s", data)
	}
	if !strings.Contains(buf.String(), "to both") {
		t.Errorf("console missing line: %s", buf.String())
	}
}
