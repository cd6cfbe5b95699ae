package script

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/brensch/eden/game"
)

// Recipes returns an item's synthesize table keyed by ingredient.
type Recipes func(item string) (map[string]int, bool)

// Local answers queries from data the client already holds: landform names
// from a terrain grid, synthesize tables, and the inventory of the decoded
// records in Agents. Map queries depend on live simulation state and return
// ErrUnsupported.
//
// Name ids have the form "category:id", for example "item:2".
type Local struct {
	Terrain   game.Terrain
	Landforms []string
	Recipes   Recipes

	Agents []*game.Record
	Names  func(c game.Category, id int) (string, bool)
}

func (l *Local) RunScript(_ context.Context, src string) (string, error) {
	q, err := Parse(src)
	if err != nil {
		return "", err
	}
	outputs := make([]string, 0, len(q))
	for i, st := range q {
		args := make([]string, len(st.Args))
		for j, a := range st.Args {
			if n, ok := Ref(a); ok {
				a = outputs[n]
			}
			args[j] = a
		}
		out, err := l.stage(st.Verb, st.Subject, args)
		if err != nil {
			return "", fmt.Errorf("stage %d: %w", i, err)
		}
		outputs = append(outputs, out)
	}
	return outputs[len(outputs)-1], nil
}

func (l *Local) stage(verb, subject string, args []string) (string, error) {
	if verb != VerbGet || len(args) == 0 {
		return "", fmt.Errorf("%w: %s.%s", ErrUnsupported, verb, subject)
	}
	switch {
	case subject == SubjectLandform && len(args) == 1:
		p, err := ParseCell(args[0])
		if err != nil {
			return "", err
		}
		if l.Terrain == nil {
			return "", fmt.Errorf("%w: no terrain", ErrUnsupported)
		}
		id, ok := l.Terrain.LandformAt(p)
		if !ok || id < 0 || id >= len(l.Landforms) {
			return "", nil
		}
		return l.Landforms[id], nil
	case subject == SubjectSynthesize && len(args) == 1:
		if l.Recipes == nil {
			return "", fmt.Errorf("%w: no recipes", ErrUnsupported)
		}
		table, ok := l.Recipes(args[0])
		if !ok {
			return "", nil
		}
		return FormatRecipe(table), nil
	case subject == SubjectAgent && len(args) == 1:
		i, err := strconv.Atoi(args[0])
		if err != nil {
			return "", fmt.Errorf("%w: agent %q", ErrSyntax, args[0])
		}
		if l.agent(i) == nil {
			return "", nil
		}
		return NameID(game.CategoryAgent, i), nil
	case (subject == SubjectBackpack || subject == SubjectEquipment) && len(args) == 2:
		return l.slot(subject, args[0], args[1])
	case subject == SubjectInfo && len(args) == 1:
		c, id, err := ParseNameID(args[0])
		if err != nil {
			return "", err
		}
		if l.Names == nil {
			return "", fmt.Errorf("%w: no names", ErrUnsupported)
		}
		name, _ := l.Names(c, id)
		return name, nil
	}
	return "", fmt.Errorf("%w: %s.%s", ErrUnsupported, verb, subject)
}

func (l *Local) agent(i int) *game.Record {
	if i < 0 || i >= len(l.Agents) || l.Agents[i] == nil || l.Agents[i].Absent {
		return nil
	}
	return l.Agents[i]
}

// slot answers backpack and equipment queries with the item's name id, or ""
// for an empty or missing slot.
func (l *Local) slot(subject, agentID, slotArg string) (string, error) {
	if agentID == "" {
		return "", nil
	}
	c, i, err := ParseNameID(agentID)
	if err != nil {
		return "", err
	}
	if c != game.CategoryAgent {
		return "", fmt.Errorf("%w: %q is not an agent", ErrSyntax, agentID)
	}
	n, err := strconv.Atoi(slotArg)
	if err != nil {
		return "", fmt.Errorf("%w: slot %q", ErrSyntax, slotArg)
	}
	rec := l.agent(i)
	if rec == nil || n < 0 {
		return "", nil
	}
	item := -1
	switch subject {
	case SubjectBackpack:
		if n < len(rec.Backpack) {
			item = rec.Backpack[n].Item
		}
	case SubjectEquipment:
		if n < len(rec.Equipment) {
			item = rec.Equipment[n]
		}
	}
	if item < 0 {
		return "", nil
	}
	return NameID(game.CategoryItem, item), nil
}

// NameID formats a "category:id" name id.
func NameID(c game.Category, id int) string {
	return c.String() + ":" + strconv.Itoa(id)
}

// ParseNameID splits a "category:id" name id.
func ParseNameID(s string) (game.Category, int, error) {
	cat, num, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: name id %q", ErrSyntax, s)
	}
	c, ok := game.ParseCategory(cat)
	if !ok {
		return 0, 0, fmt.Errorf("%w: name id category %q", ErrSyntax, cat)
	}
	id, err := strconv.Atoi(num)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: name id %q", ErrSyntax, s)
	}
	return c, id, nil
}

// FormatRecipe renders a synthesize table as "A:2;B:1" in ingredient order.
func FormatRecipe(table map[string]int) string {
	names := make([]string, 0, len(table))
	for k := range table {
		names = append(names, k)
	}
	slices.Sort(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + ":" + strconv.Itoa(table[n])
	}
	return strings.Join(parts, ";")
}
