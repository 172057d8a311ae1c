package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/menulytics/sitefinder/internal/config"
)

func TestNew(t *testing.T) {
	for _, dev := range []bool{true, false} {
		logger, err := New(config.LoggingConfig{Development: dev})
		if err != nil {
			t.Fatalf("New(development=%v): %v", dev, err)
		}
		if logger == nil {
			t.Fatalf("New(development=%v) returned nil logger", dev)
		}
		logger.Debug("probe")
	}
}

func TestNewHonorsLevel(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "error"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info should be disabled at error level")
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "verbose"}); err == nil {
		t.Fatal("unknown level must be rejected")
	}
}
