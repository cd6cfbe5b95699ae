package inference

import (
	"context"
	"math/rand"
	"sync"

	"github.com/brensch/eden/executor/convert"
)

// RandomPolicy picks uniformly among targets and the kinds allowed on them.
type RandomPolicy struct {
	space Space

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomPolicy(space Space, seed int64) *RandomPolicy {
	return &RandomPolicy{space: space, rng: rand.New(rand.NewSource(seed))}
}

func (p *RandomPolicy) Act(ctx context.Context, obs []*convert.Observation) ([]Choice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Choice, len(obs))
	kinds := make([]int, 0, p.space.Kinds())
	for i := range obs {
		target := p.rng.Intn(p.space.Targets)
		kinds = kinds[:0]
		for k := 0; k < p.space.Kinds(); k++ {
			if p.space.KindAllowed(k, target) {
				kinds = append(kinds, k)
			}
		}
		c := Choice{Target: target}
		if len(kinds) > 0 {
			c.Kind = kinds[p.rng.Intn(len(kinds))]
		}
		out[i] = c
	}
	return out, nil
}

func (p *RandomPolicy) Close() error { return nil }
