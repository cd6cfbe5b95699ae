// Package rollout drives episodes against a backend: observe, encode, pick,
// decode, update, score, record.
package rollout

import (
	"github.com/brensch/eden/config"
	"github.com/brensch/eden/executor/convert"
	"github.com/brensch/eden/executor/inference"
	"github.com/brensch/eden/game"
)

// Decoder turns a policy choice into the action sent for agent.
type Decoder interface {
	Decode(agent int, c inference.Choice) (game.Action, error)
}

type matrixDecoder struct {
	d    *convert.MatrixDecoder
	cols int
}

func (m matrixDecoder) Decode(agent int, c inference.Choice) (game.Action, error) {
	row, col := c.RowCol(m.cols)
	return m.d.Decode(agent, c.Intent(), row, col)
}

type compactDecoder struct {
	d *convert.CompactDecoder
}

func (m compactDecoder) Decode(agent int, c inference.Choice) (game.Action, error) {
	return m.d.Decode(agent, c.ActionType(), c.Target)
}

// Codec pairs an encoder with the decoder that reads its snapshots.
type Codec struct {
	Mode    string
	Encoder convert.Encoder
	Space   inference.Space

	decoder func(snaps *convert.SnapshotStore) Decoder
}

func MatrixCodec(enc *convert.MatrixEncoder, equippable convert.Equippable) Codec {
	space := inference.MatrixSpace(enc)
	return Codec{
		Mode:    config.ModeMatrix,
		Encoder: enc,
		Space:   space,
		decoder: func(snaps *convert.SnapshotStore) Decoder {
			return matrixDecoder{d: convert.NewMatrixDecoder(enc, snaps, equippable), cols: space.Cols}
		},
	}
}

func CompactCodec(enc *convert.CompactEncoder) Codec {
	return Codec{
		Mode:    config.ModeCompact,
		Encoder: enc,
		Space:   inference.CompactSpace(enc),
		decoder: func(snaps *convert.SnapshotStore) Decoder {
			return compactDecoder{d: convert.NewCompactDecoder(enc, snaps)}
		},
	}
}

// Decoder binds the codec's decoder to a snapshot store.
func (c Codec) Decoder(snaps *convert.SnapshotStore) Decoder {
	return c.decoder(snaps)
}
