package protocol

import (
	"sort"

	"github.com/brensch/eden/game"
)

// Vocabulary resolves raw ids to the names used by the definition tables.
type Vocabulary interface {
	IDs(c game.Category) []int
	Name(c game.Category, id int) (string, bool)
	// AttributeNames lists attribute names in record order for an agent type.
	AttributeNames(agentType int) []string
	// Slots lists equipment slot names for an agent type.
	Slots(agentType int) []string
	// ItemSlots lists the slots an equippable item occupies.
	ItemSlots(item int) []string
}

// Located is a sighting position plus its Manhattan distance from the
// observer.
type Located struct {
	game.Point
	Distance int
}

// Structured is the name-keyed view of one agent's record.
type Structured struct {
	Env        game.EnvInfo
	Position   game.Point
	Attributes map[string]float32
	// Backpack maps every known item name to its quantity, -1 when absent.
	Backpack map[string]float32
	// Equipment maps every slot of the agent type to the item id worn there,
	// -1 when the slot is empty.
	Equipment map[string]int
	// Sightings holds, per category and entity name, sighted positions sorted
	// by distance.
	Sightings map[game.Category]map[string][]Located
}

// Structure builds the name-keyed view of rec for an agent of agentType. It
// returns nil for absent records.
func Structure(rec *game.Record, agentType int, vocab Vocabulary) *Structured {
	if rec == nil || rec.Absent {
		return nil
	}

	s := &Structured{
		Env:        rec.Env,
		Position:   rec.Position,
		Attributes: make(map[string]float32),
		Backpack:   make(map[string]float32),
		Equipment:  make(map[string]int),
		Sightings:  make(map[game.Category]map[string][]Located, len(game.OverlayOrder)),
	}

	for i, name := range vocab.AttributeNames(agentType) {
		if i < len(rec.Attributes) {
			s.Attributes[name] = rec.Attributes[i]
		}
	}

	for _, id := range vocab.IDs(game.CategoryItem) {
		if name, ok := vocab.Name(game.CategoryItem, id); ok {
			s.Backpack[name] = -1
		}
	}
	for _, slot := range rec.Backpack {
		if slot.Empty() {
			continue
		}
		if name, ok := vocab.Name(game.CategoryItem, slot.Item); ok {
			s.Backpack[name] = slot.Quantity
		}
	}

	for _, slot := range vocab.Slots(agentType) {
		s.Equipment[slot] = -1
	}
	for _, item := range rec.Equipment {
		if item < 0 {
			continue
		}
		for _, slot := range vocab.ItemSlots(item) {
			s.Equipment[slot] = item
		}
	}

	for _, cat := range game.OverlayOrder {
		byName := make(map[string][]Located)
		for _, id := range vocab.IDs(cat) {
			if name, ok := vocab.Name(cat, id); ok {
				byName[name] = nil
			}
		}
		for _, sight := range rec.Sightings(cat) {
			if sight.ID < 0 {
				continue
			}
			name, ok := vocab.Name(cat, sight.ID)
			if !ok {
				continue
			}
			byName[name] = append(byName[name], Located{
				Point:    sight.Pos(),
				Distance: sight.Pos().Manhattan(rec.Position),
			})
		}
		for _, list := range byName {
			sort.SliceStable(list, func(i, j int) bool { return list[i].Distance < list[j].Distance })
		}
		s.Sightings[cat] = byName
	}
	return s
}
