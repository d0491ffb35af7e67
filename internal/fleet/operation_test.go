package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation(t *testing.T) {
	testCases := []struct {
		op       Operation
		name     string
		message  string
		reversed bool
	}{
		{Start, "start", "Starting", false},
		{Stop, "stop", "Stopping", true},
		{Restart, "restart", "Restarting", false},
		{Pause, "pause", "Pausing", true},
		{Unpause, "unpause", "Unpausing", false},
		{Kill, "kill", "Killing", true},
		{Remove, "remove", "Removing", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.name, tc.op.String())
			assert.Equal(t, tc.message, tc.op.Message())
			assert.Equal(t, tc.reversed, tc.op.Reversed())

			parsed, err := ParseOperation(tc.name)
			require.NoError(t, err)
			assert.Equal(t, tc.op, parsed)
		})
	}

	_, err := ParseOperation("up")
	assert.EqualError(t, err, `unknown operation "up"`)
	assert.Equal(t, "Operation(42)", Operation(42).String())
}

func TestOperation_Applies(t *testing.T) {
	stopped := &Container{Name: "stopped"}
	running := &Container{Name: "running", Running: true}
	paused := &Container{Name: "paused", Running: true, Paused: true}

	testCases := []struct {
		op   Operation
		want map[*Container]bool
	}{
		{Start, map[*Container]bool{stopped: true, running: false, paused: false}},
		{Stop, map[*Container]bool{stopped: false, running: true, paused: true}},
		{Restart, map[*Container]bool{stopped: true, running: true, paused: true}},
		{Pause, map[*Container]bool{stopped: false, running: true, paused: false}},
		{Unpause, map[*Container]bool{stopped: false, running: false, paused: true}},
		{Kill, map[*Container]bool{stopped: false, running: true, paused: true}},
		{Remove, map[*Container]bool{stopped: true, running: false, paused: false}},
	}

	for _, tc := range testCases {
		t.Run(tc.op.String(), func(t *testing.T) {
			for c, want := range tc.want {
				assert.Equal(t, want, tc.op.Applies(c), c.Name)
			}
		})
	}
}
