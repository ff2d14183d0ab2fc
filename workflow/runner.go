package workflow

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/xiaot623/devchat/policy"
)

// Runner executes workflow commands after the policy engine clears them.
type Runner struct {
	engine *policy.Engine
}

// NewRunner creates a runner gated by the given policy engine.
func NewRunner(engine *policy.Engine) *Runner {
	return &Runner{engine: engine}
}

// Run substitutes args into the command's first step and executes it,
// writing combined output to out. It fails when the policy blocks the
// command, when required input is missing, or when a placeholder stays
// unresolved after substitution.
func (r *Runner) Run(ctx context.Context, command Command, args map[string]string, out io.Writer) error {
	decision, reason, err := r.engine.Evaluate(ctx, map[string]interface{}{
		"command": command.Name,
		"args":    args,
	})
	if err != nil {
		return fmt.Errorf("failed to evaluate workflow policy: %w", err)
	}
	if decision != "allow" {
		if reason != "" {
			return fmt.Errorf("command %s blocked by policy: %s", command.Name, reason)
		}
		return fmt.Errorf("command %s blocked by policy", command.Name)
	}

	if command.Input == "required" && strings.TrimSpace(args["input"]) == "" {
		return fmt.Errorf("command %s requires input", command.Name)
	}

	run := command.Steps[0].Run
	for name, value := range args {
		run = strings.ReplaceAll(run, "$"+name, value)
	}
	if strings.Contains(run, "$") {
		return fmt.Errorf("unresolved parameter in command line: %s", run)
	}

	argv := strings.Fields(run)
	if len(argv) == 0 {
		return fmt.Errorf("command %s has an empty step", command.Name)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command %s failed: %w", command.Name, err)
	}
	return nil
}

// RunFunctionCall resolves a function-call name to a command and runs it.
// Function-call names use "---" where command names use ".".
func (r *Runner) RunFunctionCall(ctx context.Context, commands map[string]Command, name string, args map[string]string, out io.Writer) error {
	commandName := strings.ReplaceAll(name, "---", ".")
	command, ok := commands[commandName]
	if !ok {
		return fmt.Errorf("unknown workflow command %q", commandName)
	}
	return r.Run(ctx, command, args, out)
}
