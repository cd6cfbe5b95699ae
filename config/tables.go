package config

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/brensch/eden/game"
)

// Definition files, in load order.
const (
	GeneralFile  = "0_general.csv"
	LandformFile = "1_landform.csv"
	AgentFile    = "2_agent.csv"
	BeingFile    = "3_being.csv"
	ItemFile     = "4_item.csv"
	ResourceFile = "5_resource.csv"
	BuffFile     = "6_buff.csv"
	WeatherFile  = "7_weather.csv"
	PresetFile   = "8_preset.csv"
)

// Agent attribute values sit in these header columns of the agent table.
const (
	agentAttributeStart = 3
	agentAttributeEnd   = 14
)

// ErrDefinition reports a definition table that cannot be interpreted.
var ErrDefinition = errors.New("invalid definition table")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type landformRow struct {
	Name string `csv:"LandformName"`
}

type agentRow struct {
	Name         string `csv:"AgentName"`
	Distribution string `csv:"Distribution"`
	BackpackSize int    `csv:"BackpackSize"`
	Slot         string `csv:"Slot"`
}

type beingRow struct {
	Name         string `csv:"BeingName"`
	CollectTable string `csv:"CollectTable"`
}

type itemRow struct {
	Name            string `csv:"ItemName"`
	ConsumeBuff     string `csv:"ConsumeBuff"`
	Slot            string `csv:"Slot"`
	SynthesizeTable string `csv:"SynthesizeTable"`
}

type resourceRow struct {
	Name         string `csv:"ResourceName"`
	CollectTable string `csv:"CollectTable"`
}

type buffRow struct {
	Name    string `csv:"BuffName"`
	Enhance string `csv:"Enhance"`
}

// AgentType is one row of the agent table.
type AgentType struct {
	ID           int
	Name         string
	Count        int
	BackpackSize int
	Slots        []string
	Attributes   []string
	Initial      []float64
}

// Drop is one entry of a collect table: collecting yields Count of Item at
// the given probability weight.
type Drop struct {
	Item   string
	Weight float64
	Count  int
}

// Collectable is a being or resource with its collect table.
type Collectable struct {
	ID      int
	Name    string
	Collect []Drop
}

// Item is one row of the item table.
type Item struct {
	ID          int
	Name        string
	Consumable  bool
	Slots       []string
	Synthesize  map[string]int
	ConsumeBuff string
}

type Buff struct {
	ID      int
	Name    string
	Enhance map[string]float64
}

// Tables is the loaded set of definition files.
type Tables struct {
	General map[string]string
	MapSize game.MapSize

	Landforms []string
	Agents    []AgentType
	Beings    []Collectable
	Items     []Item
	Resources []Collectable
	Buffs     []Buff
	Weathers  []string
	// Seasons maps season name to per-weather weights.
	Seasons map[string]map[string]string
	Presets []map[string]string

	names  [game.NumCategories][]string
	byName map[string]typeID
}

type typeID struct {
	cat game.Category
	id  int
}

// LoadTables reads every definition file from dir.
func LoadTables(dir string) (*Tables, error) {
	t := &Tables{byName: make(map[string]typeID)}
	read := func(name string) ([]byte, error) {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return bytes.TrimPrefix(data, utf8BOM), nil
	}

	steps := []struct {
		file string
		load func([]byte) error
	}{
		{GeneralFile, t.loadGeneral},
		{LandformFile, t.loadLandforms},
		{AgentFile, t.loadAgents},
		{BeingFile, t.loadBeings},
		{ItemFile, t.loadItems},
		{ResourceFile, t.loadResources},
		{BuffFile, t.loadBuffs},
		{WeatherFile, t.loadWeather},
		{PresetFile, t.loadPresets},
	}
	for _, s := range steps {
		data, err := read(s.file)
		if err != nil {
			return nil, err
		}
		if err := s.load(data); err != nil {
			return nil, fmt.Errorf("%s: %w", s.file, err)
		}
	}
	return t, nil
}

func (t *Tables) register(c game.Category, name string) int {
	id := len(t.names[c])
	t.names[c] = append(t.names[c], name)
	if name != "" {
		t.byName[name] = typeID{cat: c, id: id}
	}
	return id
}

func (t *Tables) loadGeneral(data []byte) error {
	rows, err := gocsv.CSVToMaps(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: no rows", ErrDefinition)
	}
	t.General = rows[0]
	x, errX := strconv.Atoi(strings.TrimSpace(t.General["MapSizeX"]))
	y, errY := strconv.Atoi(strings.TrimSpace(t.General["MapSizeY"]))
	if errX != nil || errY != nil || x <= 0 || y <= 0 {
		return fmt.Errorf("%w: map size %q x %q", ErrDefinition, t.General["MapSizeX"], t.General["MapSizeY"])
	}
	t.MapSize = game.MapSize{X: x, Y: y}
	return nil
}

func (t *Tables) loadLandforms(data []byte) error {
	var rows []landformRow
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return err
	}
	for _, r := range rows {
		t.register(game.CategoryLandform, r.Name)
		t.Landforms = append(t.Landforms, r.Name)
	}
	return nil
}

func (t *Tables) loadAgents(data []byte) error {
	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return fmt.Errorf("%w: header: %v", ErrDefinition, err)
	}
	attrs := header[min(agentAttributeStart, len(header)):min(agentAttributeEnd, len(header))]

	var rows []agentRow
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return err
	}
	maps, err := gocsv.CSVToMaps(bytes.NewReader(data))
	if err != nil {
		return err
	}

	for i, r := range rows {
		count, err := parseDistribution(r.Distribution)
		if err != nil {
			return fmt.Errorf("agent %s: %w", r.Name, err)
		}
		a := AgentType{
			ID:           t.register(game.CategoryAgent, r.Name),
			Name:         r.Name,
			Count:        count,
			BackpackSize: r.BackpackSize,
			Slots:        splitList(r.Slot),
			Attributes:   append([]string(nil), attrs...),
			Initial:      make([]float64, len(attrs)),
		}
		for j, name := range attrs {
			v, err := strconv.ParseFloat(strings.TrimSpace(maps[i][name]), 64)
			if err != nil {
				return fmt.Errorf("%w: agent %s attribute %s: %v", ErrDefinition, r.Name, name, err)
			}
			a.Initial[j] = v
		}
		t.Agents = append(t.Agents, a)
	}
	return nil
}

func (t *Tables) loadBeings(data []byte) error {
	var rows []beingRow
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return err
	}
	for _, r := range rows {
		drops, err := parseDrops(r.CollectTable)
		if err != nil {
			return fmt.Errorf("being %s: %w", r.Name, err)
		}
		t.Beings = append(t.Beings, Collectable{ID: t.register(game.CategoryBeing, r.Name), Name: r.Name, Collect: drops})
	}
	return nil
}

func (t *Tables) loadItems(data []byte) error {
	var rows []itemRow
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return err
	}
	for _, r := range rows {
		it := Item{
			ID:          t.register(game.CategoryItem, r.Name),
			Name:        r.Name,
			Consumable:  strings.TrimSpace(r.ConsumeBuff) != "",
			ConsumeBuff: r.ConsumeBuff,
			Slots:       splitList(r.Slot),
		}
		if s := strings.TrimSpace(r.SynthesizeTable); s != "" {
			it.Synthesize = make(map[string]int)
			for _, kv := range splitList(s) {
				k, v, ok := strings.Cut(kv, ":")
				n, err := strconv.Atoi(v)
				if !ok || err != nil {
					return fmt.Errorf("%w: item %s synthesize entry %q", ErrDefinition, r.Name, kv)
				}
				it.Synthesize[k] = n
			}
		}
		t.Items = append(t.Items, it)
	}
	return nil
}

func (t *Tables) loadResources(data []byte) error {
	var rows []resourceRow
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return err
	}
	for _, r := range rows {
		drops, err := parseDrops(r.CollectTable)
		if err != nil {
			return fmt.Errorf("resource %s: %w", r.Name, err)
		}
		t.Resources = append(t.Resources, Collectable{ID: t.register(game.CategoryResource, r.Name), Name: r.Name, Collect: drops})
	}
	return nil
}

func (t *Tables) loadBuffs(data []byte) error {
	var rows []buffRow
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return err
	}
	for _, r := range rows {
		b := Buff{ID: t.register(game.CategoryBuff, r.Name), Name: r.Name, Enhance: make(map[string]float64)}
		for _, kv := range splitList(r.Enhance) {
			k, v, ok := strings.Cut(kv, ":")
			f, err := strconv.ParseFloat(v, 64)
			if !ok || err != nil {
				return fmt.Errorf("%w: buff %s enhance entry %q", ErrDefinition, r.Name, kv)
			}
			b.Enhance[k] = f
		}
		t.Buffs = append(t.Buffs, b)
	}
	return nil
}

// loadWeather reads a season-by-weather table. Weather ids follow the header
// order after the Season column.
func (t *Tables) loadWeather(data []byte) error {
	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return fmt.Errorf("%w: header: %v", ErrDefinition, err)
	}
	if len(header) == 0 || header[0] != "Season" {
		return fmt.Errorf("%w: first column must be Season", ErrDefinition)
	}
	for _, name := range header[1:] {
		t.register(game.CategoryWeather, name)
		t.Weathers = append(t.Weathers, name)
	}
	rows, err := gocsv.CSVToMaps(bytes.NewReader(data))
	if err != nil {
		return err
	}
	t.Seasons = make(map[string]map[string]string, len(rows))
	for _, r := range rows {
		t.Seasons[r["Season"]] = r
	}
	return nil
}

func (t *Tables) loadPresets(data []byte) error {
	rows, err := gocsv.CSVToMaps(bytes.NewReader(data))
	if err != nil {
		return err
	}
	t.Presets = rows
	return nil
}

// IDs lists the raw ids of category c in table order.
func (t *Tables) IDs(c game.Category) []int {
	if c >= game.NumCategories {
		return nil
	}
	out := make([]int, len(t.names[c]))
	for i := range out {
		out[i] = i
	}
	return out
}

// Lists returns the raw id list of every requested category, ready for a
// namespace constructor.
func (t *Tables) Lists(cats ...game.Category) map[game.Category][]int {
	out := make(map[game.Category][]int, len(cats))
	for _, c := range cats {
		out[c] = t.IDs(c)
	}
	return out
}

func (t *Tables) Name(c game.Category, id int) (string, bool) {
	if c >= game.NumCategories || id < 0 || id >= len(t.names[c]) {
		return "", false
	}
	return t.names[c][id], true
}

// Lookup resolves an entity name to its category and raw id. A name defined
// in more than one table resolves to the later table.
func (t *Tables) Lookup(name string) (game.Category, int, bool) {
	ref, ok := t.byName[name]
	return ref.cat, ref.id, ok
}

func (t *Tables) agent(agentType int) *AgentType {
	if agentType < 0 || agentType >= len(t.Agents) {
		return nil
	}
	return &t.Agents[agentType]
}

func (t *Tables) AttributeNames(agentType int) []string {
	if a := t.agent(agentType); a != nil {
		return a.Attributes
	}
	return nil
}

func (t *Tables) Slots(agentType int) []string {
	if a := t.agent(agentType); a != nil {
		return a.Slots
	}
	return nil
}

func (t *Tables) ItemSlots(item int) []string {
	if item < 0 || item >= len(t.Items) {
		return nil
	}
	return t.Items[item].Slots
}

// Equippable reports whether item occupies at least one equipment slot.
func (t *Tables) Equippable(item int) bool {
	return len(t.ItemSlots(item)) > 0
}

// SynthesisList lists items that have a synthesize recipe.
func (t *Tables) SynthesisList() []int {
	var out []int
	for _, it := range t.Items {
		if len(it.Synthesize) > 0 {
			out = append(out, it.ID)
		}
	}
	return out
}

// Recipe returns the synthesize table of the named item.
func (t *Tables) Recipe(item string) (map[string]int, bool) {
	c, id, ok := t.Lookup(item)
	if !ok || c != game.CategoryItem || len(t.Items[id].Synthesize) == 0 {
		return nil, false
	}
	return t.Items[id].Synthesize, true
}

// ConsumeList lists items that grant a buff when consumed.
func (t *Tables) ConsumeList() []int {
	var out []int
	for _, it := range t.Items {
		if it.Consumable {
			out = append(out, it.ID)
		}
	}
	return out
}

// CollectList lists the beings and resources that drop items when collected.
func (t *Tables) CollectList() map[game.Category][]int {
	out := make(map[game.Category][]int, 2)
	for _, b := range t.Beings {
		if len(b.Collect) > 0 {
			out[game.CategoryBeing] = append(out[game.CategoryBeing], b.ID)
		}
	}
	for _, r := range t.Resources {
		if len(r.Collect) > 0 {
			out[game.CategoryResource] = append(out[game.CategoryResource], r.ID)
		}
	}
	return out
}

// AgentTypes assigns an agent type to each of n agents. Types take
// consecutive index blocks sized by their distribution counts; agents past
// the last block get -1.
func (t *Tables) AgentTypes(n int) []int {
	out := make([]int, n)
	i := 0
	for _, a := range t.Agents {
		for k := 0; k < a.Count && i < n; k++ {
			out[i] = a.ID
			i++
		}
	}
	for ; i < n; i++ {
		out[i] = -1
	}
	return out
}

// TotalAgents is the number of agents the distributions place on the map.
func (t *Tables) TotalAgents() int {
	total := 0
	for _, a := range t.Agents {
		total += a.Count
	}
	return total
}

// parseDistribution sums the trailing counts of "type:n;type:n".
func parseDistribution(s string) (int, error) {
	total := 0
	for _, part := range splitList(s) {
		i := strings.LastIndex(part, ":")
		v := part[i+1:]
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%w: distribution entry %q", ErrDefinition, part)
		}
		total += n
	}
	return total, nil
}

// parseDrops reads "Item:weight:count;..." collect tables.
func parseDrops(s string) ([]Drop, error) {
	var out []Drop
	for _, part := range splitList(s) {
		fields := strings.Split(part, ":")
		d := Drop{Item: fields[0], Weight: 1, Count: 1}
		if len(fields) > 1 {
			w, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: collect entry %q", ErrDefinition, part)
			}
			d.Weight = w
		}
		if len(fields) > 2 {
			n, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, fmt.Errorf("%w: collect entry %q", ErrDefinition, part)
			}
			d.Count = n
		}
		out = append(out, d)
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ";") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
