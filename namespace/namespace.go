// Package namespace maps per-category raw type ids into one compact index
// space shared by an observation encoder and its action decoder.
//
// Two layouts exist. Strided packs each category into its own fixed-width
// sub-range (compact = local + rank*multiplier) so the category can be
// recovered by division. Dense assigns consecutive indices across the
// participating categories starting at a base.
package namespace

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/brensch/eden/game"
)

var (
	// ErrConfig reports a namespace that cannot be built from its inputs.
	ErrConfig = errors.New("namespace config")
	// ErrLookupMiss reports a compact index with no raw id behind it.
	ErrLookupMiss = errors.New("namespace lookup miss")
)

// Mode selects the index layout.
type Mode int

const (
	Strided Mode = iota
	Dense
)

func (m Mode) String() string {
	if m == Dense {
		return "dense"
	}
	return "strided"
}

type entry struct {
	cat game.Category
	raw int
}

// Map is immutable after construction and safe for concurrent use.
type Map struct {
	mode       Mode
	multiplier int
	base       int
	cats       []game.Category
	included   [game.NumCategories]bool

	forward [game.NumCategories]map[int]int
	reverse map[int]entry
	counts  [game.NumCategories]int
}

// Option configures construction.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for duplicate id warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// NewStrided builds a multiplier-packed map over cats, in rank order. Every
// participating category's list must fit inside multiplier slots.
func NewStrided(lists map[game.Category][]int, multiplier int, cats []game.Category, opts ...Option) (*Map, error) {
	if multiplier <= 0 {
		return nil, fmt.Errorf("%w: multiplier %d must be positive", ErrConfig, multiplier)
	}
	m, err := newMap(Strided, lists, cats, opts)
	if err != nil {
		return nil, err
	}
	m.multiplier = multiplier

	maxLen := 0
	for _, c := range m.cats {
		maxLen = max(maxLen, m.counts[c])
	}
	if multiplier < maxLen {
		return nil, fmt.Errorf("%w: multiplier %d is less than largest category size %d",
			ErrConfig, multiplier, maxLen)
	}

	for _, c := range m.cats {
		m.forward[c] = make(map[int]int, m.counts[c])
	}
	m.assign(lists, opts, func(c game.Category, local int) int {
		return local + int(c)*multiplier
	})
	return m, nil
}

// NewDense builds a consecutively numbered map over cats, starting at base.
// Categories are laid out in the order given.
func NewDense(lists map[game.Category][]int, base int, cats []game.Category, opts ...Option) (*Map, error) {
	if base < 0 {
		return nil, fmt.Errorf("%w: base %d must not be negative", ErrConfig, base)
	}
	m, err := newMap(Dense, lists, cats, opts)
	if err != nil {
		return nil, err
	}
	m.base = base

	offsets := make(map[game.Category]int, len(m.cats))
	next := base
	for _, c := range m.cats {
		offsets[c] = next
		next += m.counts[c]
		m.forward[c] = make(map[int]int, m.counts[c])
	}
	m.assign(lists, opts, func(c game.Category, local int) int {
		return offsets[c] + local
	})
	return m, nil
}

func newMap(mode Mode, lists map[game.Category][]int, cats []game.Category, opts []Option) (*Map, error) {
	if len(cats) == 0 {
		return nil, fmt.Errorf("%w: no categories", ErrConfig)
	}
	m := &Map{mode: mode, reverse: make(map[int]entry)}
	for _, c := range cats {
		if c >= game.NumCategories {
			return nil, fmt.Errorf("%w: unknown category %d", ErrConfig, c)
		}
		if m.included[c] {
			return nil, fmt.Errorf("%w: category %s listed twice", ErrConfig, c)
		}
		m.included[c] = true
		m.cats = append(m.cats, c)
		m.counts[c] = len(unique(lists[c], c, nil))
	}
	if mode == Strided {
		// strided ranks are fixed by the enum, so order does not matter
		slices.Sort(m.cats)
	}
	return m, nil
}

func (m *Map) assign(lists map[game.Category][]int, opts []Option, index func(game.Category, int) int) {
	o := buildOptions(opts)
	for _, c := range m.cats {
		for local, raw := range unique(lists[c], c, o.logger) {
			idx := index(c, local)
			m.forward[c][raw] = idx
			m.reverse[idx] = entry{cat: c, raw: raw}
		}
	}
}

// unique drops later duplicates, keeping first-seen order. A nil logger
// suppresses the warning.
func unique(ids []int, c game.Category, logger *slog.Logger) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for i, id := range ids {
		if _, dup := seen[id]; dup {
			if logger != nil {
				logger.Warn("duplicate raw id ignored", "category", c.String(), "id", id, "position", i)
			}
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (m *Map) Mode() Mode { return m.mode }

// Multiplier is the stride between category sub-ranges. Zero for dense maps.
func (m *Map) Multiplier() int { return m.multiplier }

// Base is the first dense index. Zero for strided maps.
func (m *Map) Base() int { return m.base }

// Categories lists participating categories in layout order.
func (m *Map) Categories() []game.Category {
	return append([]game.Category(nil), m.cats...)
}

func (m *Map) Includes(c game.Category) bool {
	return c < game.NumCategories && m.included[c]
}

// Len is the number of distinct ids in category c.
func (m *Map) Len(c game.Category) int {
	if !m.Includes(c) {
		return 0
	}
	return m.counts[c]
}

// Size is the number of mapped ids across all categories.
func (m *Map) Size() int { return len(m.reverse) }

// Span is one past the largest index the map can produce.
func (m *Map) Span() int {
	if m.mode == Strided {
		return (int(m.cats[len(m.cats)-1]) + 1) * m.multiplier
	}
	return m.base + m.Size()
}

// Compact returns the compact index of (c, raw).
func (m *Map) Compact(c game.Category, raw int) (int, bool) {
	if !m.Includes(c) {
		return 0, false
	}
	idx, ok := m.forward[c][raw]
	return idx, ok
}

// Raw resolves a compact index back to its category and raw id.
func (m *Map) Raw(idx int) (game.Category, int, error) {
	e, ok := m.reverse[idx]
	if !ok {
		return 0, 0, fmt.Errorf("%w: index %d (%s map)", ErrLookupMiss, idx, m.mode)
	}
	return e.cat, e.raw, nil
}

// CategoryOf returns the category whose range holds idx. In strided mode
// this is idx/multiplier and does not require idx to be assigned.
func (m *Map) CategoryOf(idx int) (game.Category, bool) {
	if idx < 0 {
		return 0, false
	}
	if m.mode == Strided {
		c := game.Category(idx / m.multiplier)
		if idx/m.multiplier >= int(game.NumCategories) || !m.included[c] {
			return 0, false
		}
		return c, true
	}
	e, ok := m.reverse[idx]
	return e.cat, ok
}
