package docker

import (
	"fmt"
	"strconv"
	"strings"

	dc "github.com/ory/dockertest/v3/docker"
)

var signals = map[string]dc.Signal{
	"HUP":  dc.SIGHUP,
	"INT":  dc.SIGINT,
	"QUIT": dc.SIGQUIT,
	"KILL": dc.SIGKILL,
	"USR1": dc.SIGUSR1,
	"USR2": dc.SIGUSR2,
	"TERM": dc.SIGTERM,
	"STOP": dc.SIGSTOP,
	"CONT": dc.SIGCONT,
}

// ParseSignal accepts "SIGTERM", "TERM" or a signal number.
func ParseSignal(s string) (dc.Signal, error) {
	name := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "SIG")
	if sig, ok := signals[name]; ok {
		return sig, nil
	}
	if n, err := strconv.Atoi(name); err == nil && n > 0 && n < 65 {
		return dc.Signal(n), nil
	}
	return 0, fmt.Errorf("unsupported signal %q", s)
}
