package workflow

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	commandDir := filepath.Join(dir, "release.note")
	if err := os.MkdirAll(commandDir, 0o755); err != nil {
		t.Fatalf("failed to create command dir: %v", err)
	}
	yml := `description: Summarize changes since the last tag
input: required
parameters:
  input:
    type: string
    description: range to summarize
steps:
  - run: git log $input
`
	if err := os.WriteFile(filepath.Join(commandDir, "command.yml"), []byte(yml), 0o644); err != nil {
		t.Fatalf("failed to write command.yml: %v", err)
	}
	// Directories without a command.yml are skipped.
	if err := os.MkdirAll(filepath.Join(dir, "empty"), 0o755); err != nil {
		t.Fatalf("failed to create empty dir: %v", err)
	}

	commands, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(commands))
	}

	command := commands["release.note"]
	if command.Name != "release.note" || command.Input != "required" {
		t.Fatalf("unexpected command: %+v", command)
	}
	if len(command.Steps) != 1 || command.Steps[0].Run != "git log $input" {
		t.Fatalf("unexpected steps: %+v", command.Steps)
	}
	if command.Parameters["input"].Type != "string" {
		t.Fatalf("unexpected parameters: %+v", command.Parameters)
	}
}

func TestLoadDirMissing(t *testing.T) {
	commands, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(commands) != 0 {
		t.Fatalf("expected no commands, got %d", len(commands))
	}
}

func TestLoadDirNoSteps(t *testing.T) {
	dir := t.TempDir()
	commandDir := filepath.Join(dir, "broken")
	if err := os.MkdirAll(commandDir, 0o755); err != nil {
		t.Fatalf("failed to create command dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(commandDir, "command.yml"), []byte("description: nothing\n"), 0o644); err != nil {
		t.Fatalf("failed to write command.yml: %v", err)
	}

	if _, err := LoadDir(dir); err == nil {
		t.Fatalf("expected error for command without steps")
	}
}
