package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLoggerIsSilent(t *testing.T) {
	assert.False(t, Logger().Enabled(context.Background(), slog.LevelError))
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer SetLogger(nil)

	Logger().Info("stage complete", "stage", "gaps")
	assert.Contains(t, buf.String(), "stage=gaps")

	SetLogger(nil)
	assert.False(t, Logger().Enabled(context.Background(), slog.LevelInfo))
}
