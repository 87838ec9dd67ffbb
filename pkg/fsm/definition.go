package fsm

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Transition lists the states reachable from one state.
type Transition struct {
	From string   `yaml:"from" toml:"from" json:"from"`
	To   []string `yaml:"to" toml:"to" json:"to"`
}

// Definition describes a machine declaratively.
type Definition struct {
	Name         string       `yaml:"name" toml:"name" json:"name"`
	Initial      string       `yaml:"initial" toml:"initial" json:"initial"`
	States       []string     `yaml:"states" toml:"states" json:"states"`
	Transitions  []Transition `yaml:"transitions" toml:"transitions" json:"transitions"`
	Interconnect [][]string   `yaml:"interconnect" toml:"interconnect" json:"interconnect"`
}

// Validate checks that every referenced state is declared exactly once.
func (d Definition) Validate() error {
	declared := make(map[string]struct{}, len(d.States))
	for _, s := range d.States {
		if s == "" {
			return fmt.Errorf("machine %s: state name cannot be empty", d.Name)
		}
		if _, dup := declared[s]; dup {
			return &DuplicateStateError{Machine: d.Name, State: s}
		}
		declared[s] = struct{}{}
	}

	check := func(s string) error {
		if _, ok := declared[s]; !ok {
			return &UnknownStateError{Machine: d.Name, State: s}
		}
		return nil
	}
	if d.Initial != "" {
		if err := check(d.Initial); err != nil {
			return err
		}
	}
	for _, tr := range d.Transitions {
		if err := check(tr.From); err != nil {
			return err
		}
		for _, to := range tr.To {
			if err := check(to); err != nil {
				return err
			}
		}
	}
	for _, group := range d.Interconnect {
		for _, s := range group {
			if err := check(s); err != nil {
				return err
			}
		}
	}
	return nil
}

// Parse decodes a definition in the given format: "yaml", "yml" or "toml".
func Parse(data []byte, format string) (Definition, error) {
	var def Definition
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return Definition{}, fmt.Errorf("decode yaml definition: %w", err)
		}
	case "toml":
		md, err := toml.Decode(string(data), &def)
		if err != nil {
			return Definition{}, fmt.Errorf("decode toml definition: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Definition{}, fmt.Errorf("decode toml definition: unknown key %s", undecoded[0])
		}
	default:
		return Definition{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return def, nil
}

// LoadFile reads a definition, choosing the format from the file extension.
// A definition without a name is named after the file.
func LoadFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read definition: %w", err)
	}
	ext := filepath.Ext(path)
	def, err := Parse(data, ext)
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), ext)
	}
	return def, nil
}

// Build validates def and returns a machine with its states and transitions
// created, switched to the initial state when one is set. The definition
// name overrides any WithName option.
func Build(def Definition, opts ...Option) (*Machine, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if def.Name != "" {
		opts = append(opts, WithName(def.Name))
	}
	m, err := New(opts...)
	if err != nil {
		return nil, err
	}

	for _, s := range def.States {
		m.CreateState(s)
	}
	for _, tr := range def.Transitions {
		for _, to := range tr.To {
			m.ConnectState(tr.From, to)
		}
	}
	for _, group := range def.Interconnect {
		m.InterConnect(group...)
	}
	if def.Initial != "" {
		m.SwitchTo(def.Initial)
	}
	return m, nil
}
