package shell

import (
	"context"
	"fmt"
	"strings"
)

// MockCommand describes a canned result for any command line starting with
// Pattern.
type MockCommand struct {
	Pattern string
	Output  string
	Error   error
}

// MockExecutor is an Executor that never starts a process. It records every
// command line it is asked to run and answers from Commands.
type MockExecutor struct {
	Commands []MockCommand
	// Paths maps executable names to their resolved paths for LookPath.
	Paths map[string]string
	// Calls holds the command lines seen, in order.
	Calls [][]string
	// AttachedCalls holds the subset of Calls run through Attached.
	AttachedCalls [][]string
}

// NewMockExecutor returns a mock answering the given commands.
func NewMockExecutor(commands ...MockCommand) *MockExecutor {
	return &MockExecutor{Commands: commands, Paths: map[string]string{}}
}

func (m *MockExecutor) match(argv []string) (string, error) {
	line := strings.Join(argv, " ")
	for _, c := range m.Commands {
		if strings.HasPrefix(line, c.Pattern) {
			return c.Output, c.Error
		}
	}
	return "", fmt.Errorf("unexpected command for mock: %s", line)
}

func (m *MockExecutor) Output(_ context.Context, argv []string) (string, error) {
	m.Calls = append(m.Calls, append([]string(nil), argv...))
	return m.match(argv)
}

func (m *MockExecutor) Attached(_ context.Context, argv []string) error {
	cp := append([]string(nil), argv...)
	m.Calls = append(m.Calls, cp)
	m.AttachedCalls = append(m.AttachedCalls, cp)
	_, err := m.match(argv)
	return err
}

func (m *MockExecutor) LookPath(file string) (string, error) {
	if p, ok := m.Paths[file]; ok {
		return p, nil
	}
	return "", fmt.Errorf("exec: %q: executable file not found in $PATH", file)
}

// CallLines returns the recorded calls joined with spaces.
func (m *MockExecutor) CallLines() []string {
	lines := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		lines[i] = strings.Join(c, " ")
	}
	return lines
}
