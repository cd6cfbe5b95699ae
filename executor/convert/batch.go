package convert

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/brensch/eden/game"
)

// EncodeBatch encodes one record per agent in parallel. Each agent writes its
// own observation; the encoder and terrain are only read.
func EncodeBatch(ctx context.Context, enc Encoder, recs []*game.Record, terrain game.Terrain, workers int) ([]*Observation, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]*Observation, len(recs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rec := range recs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			obs, err := enc.Encode(i, rec, terrain)
			if err != nil {
				return err
			}
			out[i] = obs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

var floatPool = sync.Pool{
	New: func() interface{} {
		b := make([]float32, 0, 4096)
		return &b
	},
}

// GetFloatBuffer returns an empty pooled buffer.
func GetFloatBuffer() *[]float32 {
	b := floatPool.Get().(*[]float32)
	*b = (*b)[:0]
	return b
}

// PutFloatBuffer returns a buffer to the pool.
func PutFloatBuffer(b *[]float32) {
	floatPool.Put(b)
}

// Flatten packs observations back to back into a pooled buffer suitable for
// a batched tensor. Nil entries are skipped. Caller must return it with
// PutFloatBuffer.
func Flatten(obs []*Observation) *[]float32 {
	buf := GetFloatBuffer()
	for _, o := range obs {
		if o != nil {
			*buf = o.Float32(*buf)
		}
	}
	return buf
}
