package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/eden/config"
	"github.com/brensch/eden/executor/convert"
	"github.com/brensch/eden/executor/inference"
	"github.com/brensch/eden/executor/rollout"
	"github.com/brensch/eden/game"
	"github.com/brensch/eden/nearest"
	"github.com/brensch/eden/protocol"
	"github.com/brensch/eden/script"
	"github.com/brensch/eden/store"
)

// frame is one trace step encoded for display.
type frame struct {
	ui      *protocol.UI
	recs    []*game.Record
	obs     []*convert.Observation
	decoder rollout.Decoder
	local   *script.Local
	err     error
}

type model struct {
	steps  []store.TraceStep
	codec  rollout.Codec
	tables *config.Tables
	layout convert.Layout
	// resources picks the nearest sighting per resource id.
	resources *nearest.Selector

	step  int
	agent int
	// cursor is a flat target index into the observation.
	cursor int
	kind   int

	cur frame
}

func newModel(steps []store.TraceStep, codec rollout.Codec, tables *config.Tables) (model, error) {
	if len(steps) == 0 {
		return model{}, fmt.Errorf("trace has no steps")
	}
	l, ok := codec.Encoder.(interface{ Layout() convert.Layout })
	if !ok {
		return model{}, fmt.Errorf("encoder has no layout")
	}
	m := model{
		steps:     steps,
		codec:     codec,
		tables:    tables,
		layout:    l.Layout(),
		resources: nearest.NewSelector(tables.IDs(game.CategoryResource), nil),
	}
	m.cur = m.load(0)
	return m, nil
}

// load decodes and encodes one step and publishes it for the decoder.
func (m model) load(step int) frame {
	s := m.steps[step]
	recs, err := protocol.DecodeAll(s.Observations)
	if err != nil {
		return frame{err: err}
	}
	f := frame{recs: recs}
	var terrain game.Terrain
	if ui, err := protocol.DecodeUI(s.UI, m.layout.Size); err == nil {
		f.ui = ui
		terrain = ui.Terrain()
	}
	f.local = &script.Local{
		Terrain:   terrain,
		Landforms: m.tables.Landforms,
		Recipes:   m.tables.Recipe,
		Agents:    recs,
		Names:     m.tables.Name,
	}
	f.obs, err = convert.EncodeBatch(context.Background(), m.codec.Encoder, recs, terrain, 0)
	if err != nil {
		return frame{ui: f.ui, recs: recs, err: err}
	}
	snaps := convert.NewSnapshotStore(len(f.obs))
	snaps.PublishAll(step, f.obs)
	f.decoder = m.codec.Decoder(snaps)
	return f
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	width := m.layout.Size.Y
	targets := m.codec.Space.Targets
	switch key.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "n":
		if m.step+1 < len(m.steps) {
			m.step++
			m.cur = m.load(m.step)
		}
	case "p":
		if m.step > 0 {
			m.step--
			m.cur = m.load(m.step)
		}
	case "tab":
		if len(m.cur.obs) > 0 {
			m.agent = (m.agent + 1) % len(m.cur.obs)
		}
	case "k":
		m.kind = (m.kind + 1) % m.codec.Space.Kinds()
	case "left":
		if m.cursor%width > 0 {
			m.cursor--
		}
	case "right":
		if m.cursor%width < width-1 && m.cursor+1 < targets {
			m.cursor++
		}
	case "up":
		if m.cursor >= width {
			m.cursor -= width
		}
	case "down":
		if m.cursor+width < targets {
			m.cursor += width
		}
	}
	return m, nil
}

// selection decodes the cursor and kind for the current agent.
func (m model) selection() (game.Action, error) {
	if m.cur.decoder == nil {
		return game.Noop, m.cur.err
	}
	return m.cur.decoder.Decode(m.agent, inference.Choice{Kind: m.kind, Target: m.cursor})
}

func (m model) kindName() string {
	if m.codec.Space.Compact {
		return game.ActionType(m.kind).String()
	}
	if game.Intent(m.kind) == game.IntentSecondary {
		return "secondary"
	}
	return "primary"
}

func (m model) View() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "step %d/%d  agent %d  mode %s\n\n", m.step+1, len(m.steps), m.agent, m.codec.Mode)
	if m.cur.err != nil {
		fmt.Fprintf(&sb, "error: %v\n\n", m.cur.err)
	}
	sb.WriteString(rollout.RenderBoard(m.cur.ui, m.tables))
	sb.WriteByte('\n')

	if m.agent < len(m.cur.recs) {
		sb.WriteString(m.renderAgent())
	}
	if m.agent < len(m.cur.obs) {
		sb.WriteString(m.renderObservation(m.cur.obs[m.agent]))
	}

	a, err := m.selection()
	fmt.Fprintf(&sb, "\ncursor %d (%d,%d)  kind %s\n", m.cursor, m.cursor/m.layout.Size.Y, m.cursor%m.layout.Size.Y, m.kindName())
	if err != nil {
		fmt.Fprintf(&sb, "decodes to: error: %v\n", err)
	} else {
		fmt.Fprintf(&sb, "decodes to: %s\n", a)
	}
	if acts := m.steps[m.step].Actions; m.agent < len(acts) {
		fmt.Fprintf(&sb, "recorded:   %s\n", game.Action(acts[m.agent]))
	}
	sb.WriteString("\narrows move  k kind  tab agent  n/p step  q quit\n")
	return sb.String()
}

// renderObservation prints the observation a map row per line with the
// cursor cell bracketed.
func (m model) renderObservation(obs *convert.Observation) string {
	if obs.Absent {
		return "agent absent\n"
	}
	vals := obs.Float32(make([]float32, 0, obs.Len()))
	width := m.layout.Size.Y
	var sb strings.Builder
	for i, v := range vals {
		if i == m.cursor {
			fmt.Fprintf(&sb, "[%3g]", v)
		} else {
			fmt.Fprintf(&sb, " %3g ", v)
		}
		if (i+1)%width == 0 {
			sb.WriteByte('\n')
		}
	}
	if len(vals)%width != 0 {
		sb.WriteByte('\n')
	}
	return sb.String()
}

// renderAgent prints the named view of the selected agent's record: its
// attributes, the nearest sighting of each resource, and what each backpack
// slot holds.
func (m model) renderAgent() string {
	rec := m.cur.recs[m.agent]
	types := m.tables.AgentTypes(len(m.cur.recs))
	st := protocol.Structure(rec, types[m.agent], m.tables)
	if st == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "at (%d,%d)", st.Position.X, st.Position.Y)
	for _, name := range m.tables.AttributeNames(types[m.agent]) {
		if v, ok := st.Attributes[name]; ok {
			fmt.Fprintf(&sb, "  %s %g", name, v)
		}
	}
	sb.WriteByte('\n')

	near := m.resources.Select(rec.Position, rec.Resources)
	for _, id := range m.resources.IDs() {
		p := near[id]
		if p == game.NoPoint {
			continue
		}
		name, _ := m.tables.Name(game.CategoryResource, id)
		fmt.Fprintf(&sb, "nearest %s (%d,%d)\n", name, p.X, p.Y)
	}

	ctx := context.Background()
	for i := range rec.Backpack {
		desc, err := script.Describe(ctx, m.cur.local, script.BackpackSlot(m.agent, i))
		if err != nil {
			fmt.Fprintf(&sb, "slot %d: error: %v\n", i, err)
			continue
		}
		if desc == "" {
			continue
		}
		fmt.Fprintf(&sb, "slot %d: %s x%g\n", i, desc, rec.Backpack[i].Quantity)
	}
	return sb.String()
}
