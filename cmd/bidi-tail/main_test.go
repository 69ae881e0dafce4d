package main

import (
	"context"
	"testing"
	"time"

	"github.com/casualjim/bidi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Validation(t *testing.T) {
	err := run(context.Background(), &config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--url or BIDI_URL is required")
	assert.Contains(t, err.Error(), "at least one event is required")
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("BIDI_COMMAND_TIMEOUT", "")
	assert.Equal(t, bidi.DefaultCommandTimeout, envDuration("BIDI_COMMAND_TIMEOUT", bidi.DefaultCommandTimeout))

	t.Setenv("BIDI_COMMAND_TIMEOUT", "5s")
	assert.Equal(t, 5*time.Second, envDuration("BIDI_COMMAND_TIMEOUT", bidi.DefaultCommandTimeout))

	t.Setenv("BIDI_COMMAND_TIMEOUT", "soon")
	assert.Equal(t, time.Second, envDuration("BIDI_COMMAND_TIMEOUT", time.Second))
}

func TestRootCmd_Flags(t *testing.T) {
	t.Setenv("BIDI_URL", "ws://127.0.0.1:9222/session")
	t.Setenv("BIDI_COMMAND_TIMEOUT", "2s")

	cmd := newRootCmd()
	flags := cmd.Flags()

	url, err := flags.GetString("url")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9222/session", url)

	timeout, err := flags.GetDuration("timeout")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, timeout)

	require.NoError(t, flags.Parse([]string{"-e", "script.message", "-c", "A,B"}))
	events, err := flags.GetStringSlice("events")
	require.NoError(t, err)
	assert.Equal(t, []string{"script.message"}, events)
	contexts, err := flags.GetStringSlice("contexts")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, contexts)
}
