package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/gridfleet/internal/app"
)

func TestParse(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, exit, err := Parse([]string{
		"-f", "base.hcl", "-file", "extra.yml",
		"-p", "shop",
		"-t", "5",
		"-progress", "NEVER",
		"-poll-interval", "250ms",
		"-notify-url", "http://dashboard:3000",
		"stop", "web", "worker",
	}, out)
	require.NoError(t, err)
	require.False(t, exit)

	assert.Equal(t, []string{"base.hcl", "extra.yml"}, cfg.Files)
	assert.Equal(t, "shop", cfg.Project)
	assert.Equal(t, "stop", cfg.Command)
	assert.Equal(t, []string{"web", "worker"}, cfg.Services)
	assert.Equal(t, 5, cfg.Timeout)
	assert.Equal(t, app.ProgressNever, cfg.Progress)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "http://dashboard:3000", cfg.NotifyURL)
	assert.Equal(t, "SIGKILL", cfg.Signal)
	assert.True(t, cfg.Color)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Empty(t, out.String())
}

func TestParse_Help(t *testing.T) {
	for _, args := range [][]string{{"-h"}, {"-f", "fleet.hcl"}} {
		out := &bytes.Buffer{}
		cfg, exit, err := Parse(args, out)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	}
}

func TestParse_UsageErrors(t *testing.T) {
	testCases := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{"unknown flag", []string{"--bogus"}, "flag provided but not defined: -bogus"},
		{"unknown command", []string{"-f", "fleet.hcl", "scale"}, `unknown operation "scale"`},
		{"bad progress", []string{"-f", "fleet.hcl", "-progress", "maybe", "start"}, "invalid progress mode"},
		{"bad log level", []string{"-f", "fleet.hcl", "-log-level", "loud", "start"}, "invalid log level"},
		{"bad signal", []string{"-f", "fleet.hcl", "-s", "SIGNOPE", "kill"}, "unsupported signal"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Parse(tc.args, &bytes.Buffer{})
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, ExitUsage, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.wantMsg)
		})
	}
}

func TestParse_DefaultFiles(t *testing.T) {
	t.Chdir(t.TempDir())

	_, _, err := Parse([]string{"start"}, &bytes.Buffer{})
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Contains(t, exitErr.Message, "no fleet file given")
}
