package inference

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/brensch/eden/executor/convert"
)

// RuntimeStats aggregates batch counters across sessions.
type RuntimeStats struct {
	TotalBatches  int64
	TotalItems    int64
	TotalRunNanos int64
	LastBatchSize int64
	QueueLen      int
	AvgBatchSize  float64
	AvgRunMs      float64
}

func (s RuntimeStats) withAverages() RuntimeStats {
	if s.TotalBatches > 0 {
		s.AvgBatchSize = float64(s.TotalItems) / float64(s.TotalBatches)
		s.AvgRunMs = float64(s.TotalRunNanos) / 1e6 / float64(s.TotalBatches)
	}
	return s
}

// OnnxPool spreads Predict calls across several clients, each with its own
// session and batching loop.
type OnnxPool struct {
	clients []*OnnxClient
	rr      atomic.Uint64
}

func NewOnnxPool(modelPath string, space Space, sessions int, cfg OnnxClientConfig) (*OnnxPool, error) {
	if sessions <= 0 {
		sessions = 1
	}
	clients := make([]*OnnxClient, 0, sessions)
	for i := 0; i < sessions; i++ {
		c, err := NewOnnxClient(modelPath, space, cfg)
		if err != nil {
			for _, created := range clients {
				_ = created.Close()
			}
			return nil, fmt.Errorf("create onnx client %d/%d: %w", i+1, sessions, err)
		}
		clients = append(clients, c)
	}
	return &OnnxPool{clients: clients}, nil
}

func (p *OnnxPool) Stats() RuntimeStats {
	var total RuntimeStats
	for _, c := range p.clients {
		st := c.Stats()
		total.TotalBatches += st.TotalBatches
		total.TotalItems += st.TotalItems
		total.TotalRunNanos += st.TotalRunNanos
		total.QueueLen += st.QueueLen
		total.LastBatchSize = max(total.LastBatchSize, st.LastBatchSize)
	}
	return total.withAverages()
}

func (p *OnnxPool) Close() error {
	var firstErr error
	for _, c := range p.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *OnnxPool) Predict(ctx context.Context, input []float32) ([]float32, []float32, error) {
	if len(p.clients) == 0 {
		return nil, nil, fmt.Errorf("onnx pool has no clients")
	}
	idx := int(p.rr.Add(1)-1) % len(p.clients)
	return p.clients[idx].Predict(ctx, input)
}

// Predictor is the scoring half of a model.
type Predictor interface {
	Predict(ctx context.Context, input []float32) (target, kind []float32, err error)
}

// ModelPolicy scores each observation with a Predictor and decides greedily.
// Observations are submitted concurrently so the batching loop can group
// them.
type ModelPolicy struct {
	space  Space
	model  Predictor
	closer func() error
}

func NewModelPolicy(space Space, model Predictor) *ModelPolicy {
	p := &ModelPolicy{space: space, model: model}
	if c, ok := model.(interface{ Close() error }); ok {
		p.closer = c.Close
	}
	return p
}

func (p *ModelPolicy) Act(ctx context.Context, obs []*convert.Observation) ([]Choice, error) {
	out := make([]Choice, len(obs))
	buf := convert.Flatten(obs)
	g, ctx := errgroup.WithContext(ctx)
	off := 0
	for i, o := range obs {
		if o == nil {
			continue
		}
		n := o.Len()
		input := (*buf)[off : off+n : off+n]
		off += n
		if o.Absent {
			continue
		}
		g.Go(func() error {
			target, kind, err := p.model.Predict(ctx, input)
			if err != nil {
				return fmt.Errorf("agent %d: %w", o.Agent, err)
			}
			c, err := p.space.Decide(target, kind)
			if err != nil {
				return fmt.Errorf("agent %d: %w", o.Agent, err)
			}
			out[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// a cancelled request may still be queued with a view of buf, so it
		// is not returned to the pool
		return nil, err
	}
	convert.PutFloatBuffer(buf)
	return out, nil
}

func (p *ModelPolicy) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

// Stats forwards the model's batch counters when it keeps any.
func (p *ModelPolicy) Stats() RuntimeStats {
	if s, ok := p.model.(interface{ Stats() RuntimeStats }); ok {
		return s.Stats()
	}
	return RuntimeStats{}
}
