package protocol

import (
	"testing"

	"github.com/brensch/eden/game"
)

type testVocab struct{}

func (testVocab) IDs(c game.Category) []int {
	switch c {
	case game.CategoryItem:
		return []int{7, 9}
	case game.CategoryAgent:
		return []int{0}
	case game.CategoryBeing:
		return []int{1}
	case game.CategoryResource:
		return []int{2}
	}
	return nil
}

func (testVocab) Name(c game.Category, id int) (string, bool) {
	names := map[game.Category]map[int]string{
		game.CategoryItem:     {7: "Meat", 9: "Spear"},
		game.CategoryAgent:    {0: "Brave"},
		game.CategoryBeing:    {1: "Wolf"},
		game.CategoryResource: {2: "Tree"},
	}
	n, ok := names[c][id]
	return n, ok
}

func (testVocab) AttributeNames(int) []string { return []string{"Health", "Vision"} }
func (testVocab) Slots(int) []string          { return []string{"Hand", "Body"} }
func (testVocab) ItemSlots(item int) []string {
	if item == 9 {
		return []string{"Hand"}
	}
	return nil
}

func TestStructure_NamesEverything(t *testing.T) {
	raw := fixture()
	// add a second, closer agent sighting of the same type
	raw = append(raw[:16], append([]float32{2, 0, 9, 9, 0, 4, 5}, raw[20:]...)...)
	rec, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	s := Structure(rec, 0, testVocab{})
	if s.Attributes["Health"] != 10 || s.Attributes["Vision"] != 3 {
		t.Fatalf("attributes=%v", s.Attributes)
	}
	if s.Backpack["Meat"] != 2 || s.Backpack["Spear"] != -1 {
		t.Fatalf("backpack=%v", s.Backpack)
	}
	if s.Equipment["Hand"] != 9 || s.Equipment["Body"] != -1 {
		t.Fatalf("equipment=%v", s.Equipment)
	}
	agents := s.Sightings[game.CategoryAgent]["Brave"]
	if len(agents) != 2 || agents[0].Distance != 0 || agents[1].Distance != 9 {
		t.Fatalf("agents=%v want sorted by distance", agents)
	}
	if got := s.Sightings[game.CategoryBeing]["Wolf"]; len(got) != 1 || got[0].Distance != 1 {
		t.Fatalf("beings=%v", got)
	}
	if Structure(&game.Record{Absent: true}, 0, testVocab{}) != nil {
		t.Fatalf("absent record should structure to nil")
	}
}
