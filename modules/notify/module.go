package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/taskgrid/internal/buildfile"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/registry"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

const (
	defaultEvent   = "task"
	defaultTimeout = 10 * time.Second
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the notify action.
type Input struct {
	URL                string            `cty:"url"`
	Namespace          *string           `cty:"namespace"`
	Event              *string           `cty:"event"`
	AckEvent           *string           `cty:"ack_event"`
	Data               map[string]string `cty:"data"`
	Timeout            *string           `cty:"timeout"`
	InsecureSkipVerify *bool             `cty:"insecure_skip_verify"`
}

// Message is the payload emitted for a task.
type Message struct {
	Task    string            `json:"task"`
	Project string            `json:"project"`
	Data    map[string]string `json:"data,omitempty"`
}

// opResult is a private struct to safely pass results through the done channel.
type opResult struct {
	err error
}

// Run connects to a socket.io endpoint and emits one event describing the
// task. With ack_event set it also waits for that event before returning.
func Run(ctx context.Context, task *buildfile.Task, input *Input) error {
	event := valueOr(input.Event, defaultEvent)
	namespace := valueOr(input.Namespace, "/")
	logger := ctxlog.FromContext(ctx).With("action", "notify", "url", input.URL, "event", event)
	logger.Debug("Handler started")
	defer logger.Debug("Handler finished")

	timeout := defaultTimeout
	if input.Timeout != nil {
		parsed, err := time.ParseDuration(*input.Timeout)
		if err != nil {
			logger.Warn("Failed to parse timeout, using default", "inputTimeout", *input.Timeout, "error", err)
		} else {
			timeout = parsed
		}
	}

	parsedURL, err := url.Parse(input.URL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("URL %q must be absolute", input.URL)
	}

	msg := Message{Task: task.Path.String(), Project: task.Path.Project, Data: input.Data}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	if input.InsecureSkipVerify != nil && *input.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)
	defer func() {
		logger.Debug("Disconnecting socket client")
		io.Disconnect()
	}()

	var connected atomic.Bool
	done := make(chan opResult, 1)
	finish := func(res opResult) {
		select {
		case done <- res:
		default:
		}
	}

	io.On(types.EventName("connect"), func(...any) {
		connected.Store(true)
		logger.Info("Successfully connected", "namespace", namespace, "sid", io.Id())
		logger.Info("Emitting event", "data", string(payload))
		if err := io.Emit(event, msg.toMap()); err != nil {
			finish(opResult{err: fmt.Errorf("failed to emit %q: %w", event, err)})
			return
		}
		if input.AckEvent == nil {
			finish(opResult{})
		}
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connection failed")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = fmt.Errorf("connection failed: %w", e)
			}
		}
		finish(opResult{err: err})
	})
	if input.AckEvent != nil {
		io.On(types.EventName(*input.AckEvent), func(...any) {
			logger.Info("Received acknowledgement", "ackEvent", *input.AckEvent)
			finish(opResult{})
		})
	}

	io.Connect()

	select {
	case <-opCtx.Done():
		if connected.Load() {
			return fmt.Errorf("timed out after connecting while waiting for event '%s'", valueOr(input.AckEvent, event))
		}
		return fmt.Errorf("timed out while waiting for initial connection")
	case res := <-done:
		return res.err
	}
}

func (m Message) toMap() map[string]any {
	data := make(map[string]any, len(m.Data))
	for k, v := range m.Data {
		data[k] = v
	}
	return map[string]any{"task": m.Task, "project": m.Project, "data": data}
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// Register registers the action with the registry.
func (m *Module) Register(r *registry.Registry) {
	registry.Register(r, "notify", Run)
}
