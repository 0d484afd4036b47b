package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func restoreGlobal(t *testing.T) {
	logger, level := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = logger
		zerolog.SetGlobalLevel(level)
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != "info" || cfg.Pretty {
		t.Errorf("unexpected default config %+v", cfg)
	}
}

func TestSetupLevels(t *testing.T) {
	restoreGlobal(t)
	tests := []struct {
		level   string
		logFn   func(msg string)
		visible bool
	}{
		{"info", func(m string) { log.Info().Msg(m) }, true},
		{"info", func(m string) { log.Debug().Msg(m) }, false},
		{"warn", func(m string) { log.Info().Msg(m) }, false},
		{"trace", func(m string) { log.Trace().Msg(m) }, true},
		{"bogus", func(m string) { log.Info().Msg(m) }, true},
	}
	for _, tt := range tests {
		buf := &bytes.Buffer{}
		if _, _, err := Setup(Config{Level: tt.level, Output: buf}); err != nil {
			t.Fatal(err)
		}
		tt.logFn("message")
		if got := strings.Contains(buf.String(), "message"); got != tt.visible {
			t.Errorf("level %s: visible = %v, output %q", tt.level, got, buf.String())
		}
	}
}

func TestSetupFile(t *testing.T) {
	restoreGlobal(t)
	file := filepath.Join(t.TempDir(), "cache.log")
	buf := &bytes.Buffer{}
	_, closer, err := Setup(Config{Level: "info", Output: buf, File: file})
	if err != nil {
		t.Fatal(err)
	}
	log.Info().Str("key", "value").Msg("to both")
	closer.Close()

	written, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(written), `"key":"value"`) || !strings.Contains(buf.String(), "to both") {
		t.Fatalf("file %q, output %q", written, buf.String())
	}
}

func TestNewLogger(t *testing.T) {
	restoreGlobal(t)
	buf := &bytes.Buffer{}
	Setup(Config{Level: "debug", Output: buf})
	logger := NewLogger("store")
	logger.Debug().Msg("hello")
	if !strings.Contains(buf.String(), `"component":"store"`) {
		t.Fatalf("output %q", buf.String())
	}
}
