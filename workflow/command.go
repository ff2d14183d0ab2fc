// Package workflow loads and runs user-defined workflow commands that a
// chat response can invoke through a function call.
package workflow

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Parameter describes one command parameter.
type Parameter struct {
	Type        string   `yaml:"type"`
	Description string   `yaml:"description"`
	Enum        []string `yaml:"enum,omitempty"`
}

// Step is one executable step of a command. Run holds a command line with
// $name placeholders substituted from the parameters at run time.
type Step struct {
	Run string `yaml:"run"`
}

// Command is a named workflow command.
type Command struct {
	Name        string               `yaml:"-"`
	Description string               `yaml:"description"`
	Input       string               `yaml:"input"` // "required" or "optional"
	Parameters  map[string]Parameter `yaml:"parameters,omitempty"`
	Steps       []Step               `yaml:"steps"`
}

// LoadDir loads every command defined under dir. Each command lives in its
// own subdirectory as <dir>/<name>/command.yml. A missing dir yields an
// empty set.
func LoadDir(dir string) (map[string]Command, error) {
	commands := make(map[string]Command)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return commands, nil
		}
		return nil, fmt.Errorf("failed to read workflow dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name(), "command.yml")
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		var command Command
		if err := yaml.Unmarshal(data, &command); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if len(command.Steps) == 0 {
			return nil, fmt.Errorf("command %s has no steps", entry.Name())
		}
		command.Name = entry.Name()
		commands[command.Name] = command
	}

	return commands, nil
}
