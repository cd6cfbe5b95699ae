// Package backend talks to the eden simulation. Remote drives a live backend
// over a websocket; Replay plays a recorded trace back through the same
// interface.
package backend

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/brensch/eden/game"
)

var (
	ErrClosed     = errors.New("backend: closed")
	ErrEndOfTrace = errors.New("backend: end of trace")
)

// Backend is the step interface of the simulation. Observe and Result return
// one flat record per agent; an empty record means the agent is absent.
type Backend interface {
	Reset(ctx context.Context, seed int64) error
	Update(ctx context.Context, actions []game.Action) error
	Observe(ctx context.Context) ([][]float32, error)
	Result(ctx context.Context) ([][]float32, error)
	UI(ctx context.Context, agent int) ([]float32, error)
	RunScript(ctx context.Context, src string) (string, error)
	AgentCount(ctx context.Context) (int, error)
	Close() error
}

// Method names on the wire.
const (
	MethodReset      = "reset"
	MethodUpdate     = "update"
	MethodObserve    = "observe"
	MethodResult     = "result"
	MethodUI         = "ui"
	MethodRunScript  = "run_script"
	MethodAgentCount = "agent_count"
)

// Request is one call sent to the backend.
type Request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Response answers the Request with the same ID. A non-empty Error means
// the call failed on the backend side.
type Response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type ResetParams struct {
	Seed int64 `json:"seed"`
}

type UpdateParams struct {
	Actions [][3]float32 `json:"actions"`
}

type UIParams struct {
	Agent int `json:"agent"`
}

type ScriptParams struct {
	Script string `json:"script"`
}

func actionRows(actions []game.Action) [][3]float32 {
	rows := make([][3]float32, len(actions))
	for i, a := range actions {
		rows[i] = [3]float32(a)
	}
	return rows
}
