package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TaskProfile describes one simulated worker: it yields the processor
// spins times, then exits.
type TaskProfile struct {
	Name  string `yaml:"name"`
	Spins int    `yaml:"spins"`
}

// Profile is the simulation configuration loaded from YAML.
type Profile struct {
	Quantum     uint64        `yaml:"quantum"`      // slice length in ticks
	Hz          int           `yaml:"hz"`           // timer rate
	Ticks       uint64        `yaml:"ticks"`        // tick budget, 0 = until all workers exit
	StackSize   uint64        `yaml:"stack_size"`   // per-task stack bytes
	MetricsAddr string        `yaml:"metrics_addr"` // serve /metrics here when set
	Tasks       []TaskProfile `yaml:"tasks"`
}

// DefaultProfile is the simulation run without a profile file: two
// workers trading the processor at the default quantum.
func DefaultProfile() Profile {
	return Profile{
		Hz: 1000,
		Tasks: []TaskProfile{
			{Name: "worker-a", Spins: 20},
			{Name: "worker-b", Spins: 20},
		},
	}
}

// LoadProfile reads and validates a YAML profile. An empty path yields
// DefaultProfile.
func LoadProfile(path string) (Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("profile: %w", err)
	}
	p := DefaultProfile()
	p.Tasks = nil
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("profile %s: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return Profile{}, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

func (p Profile) validate() error {
	if len(p.Tasks) == 0 {
		return fmt.Errorf("no tasks")
	}
	seen := make(map[string]bool, len(p.Tasks))
	for i, t := range p.Tasks {
		if t.Name == "" {
			return fmt.Errorf("task %d: empty name", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("task %d: duplicate name %q", i, t.Name)
		}
		seen[t.Name] = true
		if t.Spins < 0 {
			return fmt.Errorf("task %q: negative spins", t.Name)
		}
	}
	if p.Hz <= 0 {
		return fmt.Errorf("hz must be positive, got %d", p.Hz)
	}
	return nil
}
