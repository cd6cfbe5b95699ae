// Package script builds and parses the query pipelines the backend's
// run-script call accepts, such as "get.map.3-4|get.info.$0".
//
// A pipeline is a list of stages joined by '|'. Each stage is a dotted path
// whose first element is the verb. An argument of the form $N is replaced by
// the output of stage N before the stage runs.
package script

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/brensch/eden/game"
)

var (
	ErrSyntax      = errors.New("script: syntax error")
	ErrUnsupported = errors.New("script: unsupported query")
)

const (
	VerbGet = "get"

	SubjectLandform   = "landform"
	SubjectMap        = "map"
	SubjectInfo       = "info"
	SubjectAgent      = "agent"
	SubjectBackpack   = "backpack"
	SubjectEquipment  = "equipment"
	SubjectSynthesize = "synthesize_table"
)

// Stage is one dotted command.
type Stage struct {
	Verb    string
	Subject string
	Args    []string
}

func (s Stage) String() string {
	parts := append([]string{s.Verb, s.Subject}, s.Args...)
	return strings.Join(parts, ".")
}

// Ref returns the stage index an argument refers to, if it is a $N reference.
func Ref(arg string) (int, bool) {
	if !strings.HasPrefix(arg, "$") {
		return 0, false
	}
	n, err := strconv.Atoi(arg[1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Query is a parsed pipeline.
type Query []Stage

func (q Query) String() string {
	parts := make([]string, len(q))
	for i, s := range q {
		parts[i] = s.String()
	}
	return strings.Join(parts, "|")
}

// Parse splits a pipeline into stages. References must point at an earlier
// stage.
func Parse(src string) (Query, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrSyntax)
	}
	var q Query
	for i, raw := range strings.Split(src, "|") {
		fields := strings.Split(strings.TrimSpace(raw), ".")
		if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
			return nil, fmt.Errorf("%w: stage %d %q", ErrSyntax, i, raw)
		}
		st := Stage{Verb: fields[0], Subject: fields[1], Args: fields[2:]}
		for _, a := range st.Args {
			if a == "" {
				return nil, fmt.Errorf("%w: stage %d has an empty argument", ErrSyntax, i)
			}
			if n, ok := Ref(a); ok && n >= i {
				return nil, fmt.Errorf("%w: stage %d refers forward to $%d", ErrSyntax, i, n)
			} else if !ok && strings.HasPrefix(a, "$") {
				return nil, fmt.Errorf("%w: bad reference %q", ErrSyntax, a)
			}
		}
		q = append(q, st)
	}
	return q, nil
}

func cell(p game.Point) string {
	return strconv.Itoa(p.X) + "-" + strconv.Itoa(p.Y)
}

// ParseCell reads an "x-y" argument.
func ParseCell(arg string) (game.Point, error) {
	xs, ys, ok := strings.Cut(arg, "-")
	x, errX := strconv.Atoi(xs)
	y, errY := strconv.Atoi(ys)
	if !ok || errX != nil || errY != nil {
		return game.NoPoint, fmt.Errorf("%w: cell %q", ErrSyntax, arg)
	}
	return game.Point{X: x, Y: y}, nil
}

// Landform asks for the landform name at p.
func Landform(p game.Point) Query {
	return Query{{Verb: VerbGet, Subject: SubjectLandform, Args: []string{cell(p)}}}
}

// Occupant asks for the description of whatever occupies p.
func Occupant(p game.Point) Query {
	return Query{
		{Verb: VerbGet, Subject: SubjectMap, Args: []string{cell(p)}},
		{Verb: VerbGet, Subject: SubjectInfo, Args: []string{"$0"}},
	}
}

// BackpackSlot asks for the name id held in an agent's backpack slot. The
// backend answers "" for an empty slot.
func BackpackSlot(agent, slot int) Query {
	return Query{
		{Verb: VerbGet, Subject: SubjectAgent, Args: []string{strconv.Itoa(agent)}},
		{Verb: VerbGet, Subject: SubjectBackpack, Args: []string{"$0", strconv.Itoa(slot)}},
	}
}

// EquipmentSlot asks for the name id worn in an agent's equipment slot.
func EquipmentSlot(agent, slot int) Query {
	return Query{
		{Verb: VerbGet, Subject: SubjectAgent, Args: []string{strconv.Itoa(agent)}},
		{Verb: VerbGet, Subject: SubjectEquipment, Args: []string{"$0", strconv.Itoa(slot)}},
	}
}

func Info(nameID string) Query {
	return Query{{Verb: VerbGet, Subject: SubjectInfo, Args: []string{nameID}}}
}

func SynthesizeTable(item string) Query {
	return Query{{Verb: VerbGet, Subject: SubjectSynthesize, Args: []string{item}}}
}

// Runner executes a raw pipeline. Backends implement it.
type Runner interface {
	RunScript(ctx context.Context, src string) (string, error)
}

// Run sends q through r.
func Run(ctx context.Context, r Runner, q Query) (string, error) {
	return r.RunScript(ctx, q.String())
}

// Describe fetches the description of a slot's content: it resolves the name
// id first and follows up with an info query. An empty slot yields "".
func Describe(ctx context.Context, r Runner, slotQuery Query) (string, error) {
	id, err := Run(ctx, r, slotQuery)
	if err != nil || id == "" {
		return "", err
	}
	return Run(ctx, r, Info(id))
}
