package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartlink/billing/pkg/logger"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json output carries service attribute", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log, err := logger.New(logger.Config{Level: "info", Format: "json", Service: "billing"}, &buf)
		require.NoError(t, err)

		log.Info("plan activated", "plan_id", "basic_monthly")

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "billing", record["service"])
		assert.Equal(t, "plan activated", record["msg"])
		assert.Equal(t, "basic_monthly", record["plan_id"])
	})

	t.Run("level filtering", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log, err := logger.New(logger.Config{Level: "warn", Format: "text"}, &buf)
		require.NoError(t, err)

		log.Info("dropped")
		log.Warn("kept")

		assert.NotContains(t, buf.String(), "dropped")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("invalid format", func(t *testing.T) {
		t.Parallel()

		_, err := logger.New(logger.Config{Format: "yaml"}, nil)
		assert.Error(t, err)
	})

	t.Run("invalid level", func(t *testing.T) {
		t.Parallel()

		_, err := logger.New(logger.Config{Level: "loud"}, nil)
		assert.Error(t, err)
	})
}
