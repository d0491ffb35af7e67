// Package broadcast mirrors progress updates to a Socket.IO server so that a
// remote dashboard can follow a run.
package broadcast

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/vk/gridfleet/internal/ctxlog"
	"github.com/vk/gridfleet/internal/progress"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Event names emitted by the Reporter.
const (
	EventRegister = "register"
	EventUpdate   = "update"
)

// DefaultTimeout bounds how long Dial waits for the connection.
const DefaultTimeout = 15 * time.Second

// ErrNotConnected is returned by Register and Update once the connection is
// lost or closed.
var ErrNotConnected = errors.New("broadcast: not connected")

// Payload is the body of every emitted event. Status is empty for register.
type Payload struct {
	Message string `json:"message"`
	Name    string `json:"name"`
	Status  string `json:"status"`
}

// Options configures Dial.
type Options struct {
	Namespace          string
	InsecureSkipVerify bool
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
}

// Reporter is a progress.Reporter that emits every call as a Socket.IO event.
type Reporter struct {
	message string

	mu         sync.Mutex
	emit       func(event string, p Payload)
	connected  func() bool
	disconnect func()
	closed     bool
}

var _ progress.Reporter = (*Reporter)(nil)

// Dial connects to the Socket.IO server at rawURL over websocket and returns
// a Reporter that tags every event with message, e.g. "Starting".
func Dial(ctx context.Context, rawURL, message string, opts Options) (*Reporter, error) {
	ctx, logger := ctxlog.With(ctx, "url", rawURL)
	logger.Debug("Connecting broadcast client...")

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid broadcast URL %q: scheme and host are required", rawURL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	sopts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		sopts.SetPath(parsedURL.Path)
	}
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sopts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sopts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, sopts)
	io := manager.Socket(opts.Namespace, sopts)

	io.Once(types.EventName("connect"), func(...any) {
		select {
		case connectChan <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connectChan <- err:
		default:
		}
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}
	logger.Info("Broadcasting progress.", "sid", io.Id())

	return &Reporter{
		message:    message,
		emit:       func(event string, p Payload) { io.Emit(event, p) },
		connected:  io.Connected,
		disconnect: func() { io.Disconnect() },
	}, nil
}

// Register implements progress.Reporter.
func (r *Reporter) Register(name string) error {
	return r.send(EventRegister, Payload{Message: r.message, Name: name})
}

// Update implements progress.Reporter.
func (r *Reporter) Update(name, status string) error {
	return r.send(EventUpdate, Payload{Message: r.message, Name: name, Status: status})
}

func (r *Reporter) send(event string, p Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !r.connected() {
		return ErrNotConnected
	}
	r.emit(event, p)
	return nil
}

// Close disconnects from the server. It is safe to call more than once.
func (r *Reporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.disconnect()
	return nil
}
