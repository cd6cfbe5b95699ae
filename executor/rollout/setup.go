package rollout

import (
	"fmt"
	"log/slog"

	"github.com/brensch/eden/config"
	"github.com/brensch/eden/executor/convert"
	"github.com/brensch/eden/game"
	"github.com/brensch/eden/namespace"
	"github.com/brensch/eden/nearest"
)

// encodedCategories are the categories that appear in observations.
var encodedCategories = []game.Category{
	game.CategoryAgent, game.CategoryLandform, game.CategoryBeing, game.CategoryItem, game.CategoryResource,
}

// LayoutFor sizes the function bar from the definition tables for one agent
// type.
func LayoutFor(t *config.Tables, agentType int) (convert.Layout, error) {
	if agentType < 0 || agentType >= len(t.Agents) {
		return convert.Layout{}, fmt.Errorf("rollout: unknown agent type %d", agentType)
	}
	a := t.Agents[agentType]
	l := convert.Layout{
		Size:           t.MapSize,
		BackpackSlots:  a.BackpackSize,
		EquipmentSlots: len(a.Slots),
		Synthesis:      t.SynthesisList(),
		Attributes:     a.Attributes,
	}
	return l, l.Validate()
}

// NewCodec builds the codec cfg selects from the definition tables.
func NewCodec(cfg *config.Config, t *config.Tables, logger *slog.Logger) (Codec, error) {
	layout, err := LayoutFor(t, 0)
	if err != nil {
		return Codec{}, err
	}
	opt := namespace.WithLogger(logger)

	switch cfg.Mode {
	case config.ModeMatrix:
		ns, err := namespace.NewStrided(t.Lists(encodedCategories...), cfg.Multiplier, encodedCategories, opt)
		if err != nil {
			return Codec{}, err
		}
		enc, err := convert.NewMatrixEncoder(layout, ns)
		if err != nil {
			return Codec{}, err
		}
		return MatrixCodec(enc, t.Equippable), nil
	case config.ModeCompact:
		cats := compactCategories(cfg.LandformLayer)
		ns, err := namespace.NewDense(t.Lists(cats...), convert.CompactBase, cats, opt)
		if err != nil {
			return Codec{}, err
		}
		enc, err := convert.NewCompactEncoder(layout, ns)
		if err != nil {
			return Codec{}, err
		}
		return CompactCodec(enc), nil
	default:
		return Codec{}, fmt.Errorf("rollout: unknown mode %q", cfg.Mode)
	}
}

// compactCategories lists the dense namespace's categories in assignment
// order. Landform, when enabled, follows agent so the remaining ids match
// models trained with the landform layer.
func compactCategories(landform bool) []game.Category {
	if !landform {
		return game.OverlayOrder[:]
	}
	return []game.Category{game.CategoryAgent, game.CategoryLandform, game.CategoryBeing, game.CategoryItem, game.CategoryResource}
}

// NewScaler builds the scaled record encoder over every known being,
// resource and item id.
func NewScaler(t *config.Tables, logger *slog.Logger) *nearest.Scaler {
	return nearest.NewScaler(
		t.IDs(game.CategoryBeing),
		t.IDs(game.CategoryResource),
		t.IDs(game.CategoryItem),
		logger,
	)
}
