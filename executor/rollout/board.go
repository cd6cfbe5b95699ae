package rollout

import (
	"fmt"
	"sort"
	"strings"

	"github.com/brensch/eden/executor/convert"
	"github.com/brensch/eden/game"
	"github.com/brensch/eden/protocol"
)

// occupantGlyphs maps backend type numbers to board glyphs.
var occupantGlyphs = map[int]byte{0: 'A', 1: 'B', 2: 'i', 3: 'R'}

// RenderBoard draws a UI record as text: one glyph per cell, '@' for the
// observing agent, the first letter of the landform name for free cells.
// A legend of landforms follows the grid.
func RenderBoard(ui *protocol.UI, vocab protocol.Vocabulary) string {
	if ui == nil {
		return "<no ui>\n"
	}
	var sb strings.Builder
	day := "night"
	if ui.Daytime {
		day = "day"
	}
	fmt.Fprintf(&sb, "%dx%d weather=%d %s pos=(%d,%d)\n", ui.Size.X, ui.Size.Y, ui.Weather, day, ui.Position.X, ui.Position.Y)

	seen := map[int]string{}
	for x := 0; x < ui.Size.X; x++ {
		for y := 0; y < ui.Size.Y; y++ {
			p := game.Point{X: x, Y: y}
			c, _ := ui.Cell(p)
			switch {
			case p == ui.Position:
				sb.WriteByte('@')
			case c.Occupied():
				g, ok := occupantGlyphs[c.Occupant]
				if !ok {
					g = '?'
				}
				sb.WriteByte(g)
			default:
				name := landformName(vocab, c.Landform)
				seen[c.Landform] = name
				sb.WriteByte(strings.ToLower(name)[0])
			}
			sb.WriteByte(' ')
		}
		sb.WriteByte('\n')
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Fprintf(&sb, "  %c=%s", strings.ToLower(seen[id])[0], seen[id])
	}
	sb.WriteByte('\n')
	return sb.String()
}

func landformName(vocab protocol.Vocabulary, id int) string {
	if vocab != nil {
		if name, ok := vocab.Name(game.CategoryLandform, id); ok && name != "" {
			return name
		}
	}
	return fmt.Sprintf("?%d", id)
}

// RenderObservation prints an observation's values, a grid row per line or
// the vector in rows of width values.
func RenderObservation(obs *convert.Observation, width int) string {
	if obs == nil {
		return "<nil>\n"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "agent=%d absent=%t overflow=%d\n", obs.Agent, obs.Absent, obs.Overflow)
	switch {
	case obs.Grid != nil:
		r, c := obs.Grid.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				fmt.Fprintf(&sb, "%4g", obs.Grid.At(i, j))
			}
			sb.WriteByte('\n')
		}
	case obs.Vector != nil:
		if width <= 0 {
			width = 16
		}
		for i := 0; i < obs.Vector.Len(); i++ {
			fmt.Fprintf(&sb, "%4g", obs.Vector.AtVec(i))
			if (i+1)%width == 0 {
				sb.WriteByte('\n')
			}
		}
		if obs.Vector.Len()%width != 0 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
