package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brensch/eden/game"
)

// RemoteConfig configures the websocket connection.
type RemoteConfig struct {
	URL string
	// Timeout bounds the handshake and every call that has no earlier
	// context deadline.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Remote is a Backend reached over one websocket connection. Calls are
// serialized; each waits for its response before the next is sent.
type Remote struct {
	cfg    RemoteConfig
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
	closed bool
}

// Dial opens the connection to cfg.URL.
func Dial(ctx context.Context, cfg RemoteConfig) (*Remote, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.Timeout}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: connect %s: %w", cfg.URL, err)
	}
	logger.Info("backend connected", "url", cfg.URL)
	return &Remote{cfg: cfg, logger: logger, conn: conn}, nil
}

func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	_ = r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return r.conn.Close()
}

// call sends one request and decodes the matching response into out.
func (r *Remote) call(ctx context.Context, method string, params, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	deadline := time.Now().Add(r.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = r.conn.SetWriteDeadline(deadline)
	_ = r.conn.SetReadDeadline(deadline)

	// Unblock the read if ctx is cancelled mid-call.
	stop := context.AfterFunc(ctx, func() {
		_ = r.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	r.nextID++
	req := Request{ID: r.nextID, Method: method, Params: params}
	if err := r.conn.WriteJSON(req); err != nil {
		return r.fail(ctx, method, err)
	}

	for {
		var resp Response
		if err := r.conn.ReadJSON(&resp); err != nil {
			return r.fail(ctx, method, err)
		}
		if resp.ID != req.ID {
			r.logger.Warn("backend response out of order", "method", method, "want", req.ID, "got", resp.ID)
			continue
		}
		if resp.Error != "" {
			return fmt.Errorf("backend %s: %s", method, resp.Error)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("backend %s: decode result: %w", method, err)
		}
		return nil
	}
}

// fail closes the connection after a transport error; the stream position
// is unknown afterwards.
func (r *Remote) fail(ctx context.Context, method string, err error) error {
	r.closed = true
	_ = r.conn.Close()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("backend %s: %w", method, ctxErr)
	}
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return fmt.Errorf("backend %s: %w", method, context.DeadlineExceeded)
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return fmt.Errorf("backend %s: %w", method, errors.Join(ErrClosed, err))
	}
	return fmt.Errorf("backend %s: %w", method, err)
}

func (r *Remote) Reset(ctx context.Context, seed int64) error {
	return r.call(ctx, MethodReset, ResetParams{Seed: seed}, nil)
}

func (r *Remote) Update(ctx context.Context, actions []game.Action) error {
	return r.call(ctx, MethodUpdate, UpdateParams{Actions: actionRows(actions)}, nil)
}

func (r *Remote) Observe(ctx context.Context) ([][]float32, error) {
	var out [][]float32
	err := r.call(ctx, MethodObserve, nil, &out)
	return out, err
}

func (r *Remote) Result(ctx context.Context) ([][]float32, error) {
	var out [][]float32
	err := r.call(ctx, MethodResult, nil, &out)
	return out, err
}

func (r *Remote) UI(ctx context.Context, agent int) ([]float32, error) {
	var out []float32
	err := r.call(ctx, MethodUI, UIParams{Agent: agent}, &out)
	return out, err
}

func (r *Remote) RunScript(ctx context.Context, src string) (string, error) {
	var out string
	err := r.call(ctx, MethodRunScript, ScriptParams{Script: src}, &out)
	return out, err
}

func (r *Remote) AgentCount(ctx context.Context) (int, error) {
	var out int
	err := r.call(ctx, MethodAgentCount, nil, &out)
	return out, err
}
