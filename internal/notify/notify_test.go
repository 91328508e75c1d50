package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitepub/internal/config"
)

func TestNoopWhenUnconfigured(t *testing.T) {
	notifier, err := NewNATSNotifier(config.NotifyConfig{})
	require.NoError(t, err)
	assert.IsType(t, NoopNotifier{}, notifier)

	assert.NoError(t, notifier.NotifyRun(context.Background(), RunEvent{RunID: "x"}))
	assert.NoError(t, notifier.Close())
}

func TestRunEventWireFormat(t *testing.T) {
	event := RunEvent{
		RunID:     "run-1",
		Trigger:   "webhook",
		Outcome:   "success",
		Ref:       "gh-pages",
		Revision:  "abc123",
		Timestamp: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Equal(t, "webhook", decoded["trigger"])
	assert.Equal(t, "gh-pages", decoded["ref"])
	assert.NotContains(t, decoded, "error")
}
