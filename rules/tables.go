package rules

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/brensch/eden/game"
)

const (
	DoneFile  = "game_done.json"
	ScoreFile = "score.json"
)

// ErrTable reports a done or score table that fails validation.
var ErrTable = errors.New("invalid rules table")

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemaOnce  sync.Once
	doneSchema  *jsonschema.Schema
	scoreSchema *jsonschema.Schema
	schemaErr   error
)

func schemas() (*jsonschema.Schema, *jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		for _, name := range []string{"done.schema.json", "score.schema.json"} {
			data, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				schemaErr = err
				return
			}
			if err := c.AddResource(name, bytes.NewReader(data)); err != nil {
				schemaErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}
		}
		if doneSchema, schemaErr = c.Compile("done.schema.json"); schemaErr != nil {
			return
		}
		scoreSchema, schemaErr = c.Compile("score.schema.json")
	})
	return doneSchema, scoreSchema, schemaErr
}

func validate(s *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrTable, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrTable, err)
	}
	return nil
}

// DoneTable lists the conditions that end an agent's episode.
type DoneTable struct {
	Position  [][2]int           `json:"position"`
	Attribute map[string]float64 `json:"attribute"`
	Backpack  map[string]float64 `json:"backpack"`
	Equipment []string           `json:"equipment"`
}

// ScoreTable holds reward weights. Actions is keyed by action type, then by
// "fail", "default", "default_<outcome>", "<target>" or
// "<target>_<outcome>".
type ScoreTable struct {
	Actions    map[game.ActionType]map[string]float64
	Attribute  map[string]float64
	Dead       float64
	ScorePoint map[string]float64
}

func (t *ScoreTable) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Actions = make(map[game.ActionType]map[string]float64)
	for key, msg := range raw {
		var err error
		switch key {
		case "Attribute":
			err = json.Unmarshal(msg, &t.Attribute)
		case "Dead":
			err = json.Unmarshal(msg, &t.Dead)
		case "ScorePoint":
			err = json.Unmarshal(msg, &t.ScorePoint)
		default:
			a, ok := game.ParseActionType(key)
			if !ok {
				return fmt.Errorf("%w: unknown score section %q", ErrTable, key)
			}
			var weights map[string]float64
			err = json.Unmarshal(msg, &weights)
			t.Actions[a] = weights
		}
		if err != nil {
			return fmt.Errorf("score section %q: %w", key, err)
		}
	}
	return nil
}

// ParseDone validates and decodes a done table.
func ParseDone(data []byte) (*DoneTable, error) {
	ds, _, err := schemas()
	if err != nil {
		return nil, err
	}
	if err := validate(ds, data); err != nil {
		return nil, fmt.Errorf("done table: %w", err)
	}
	var t DoneTable
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("done table: %w", err)
	}
	return &t, nil
}

// ParseScore validates and decodes a score table.
func ParseScore(data []byte) (*ScoreTable, error) {
	_, ss, err := schemas()
	if err != nil {
		return nil, err
	}
	if err := validate(ss, data); err != nil {
		return nil, fmt.Errorf("score table: %w", err)
	}
	var t ScoreTable
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("score table: %w", err)
	}
	return &t, nil
}

// LoadTables reads game_done.json and score.json from dir.
func LoadTables(dir string) (*DoneTable, *ScoreTable, error) {
	doneData, err := os.ReadFile(filepath.Join(dir, DoneFile))
	if err != nil {
		return nil, nil, fmt.Errorf("read done table: %w", err)
	}
	scoreData, err := os.ReadFile(filepath.Join(dir, ScoreFile))
	if err != nil {
		return nil, nil, fmt.Errorf("read score table: %w", err)
	}
	done, err := ParseDone(doneData)
	if err != nil {
		return nil, nil, err
	}
	score, err := ParseScore(scoreData)
	if err != nil {
		return nil, nil, err
	}
	return done, score, nil
}
