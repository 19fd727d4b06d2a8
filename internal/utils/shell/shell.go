package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/open-edge-platform/cowbuilder-aide/internal/utils/logger"
)

// Executor runs external programs. Every process started by the tool goes
// through an Executor so tests can swap in a MockExecutor.
type Executor interface {
	// Output runs argv and returns its combined output.
	Output(ctx context.Context, argv []string) (string, error)
	// Attached runs argv with the caller's stdin, stdout and stderr.
	Attached(ctx context.Context, argv []string) error
	// LookPath resolves an executable name or absolute path.
	LookPath(file string) (string, error)
}

// Default is the executor used when callers do not provide their own.
var Default Executor = &HostExecutor{}

// HostExecutor runs commands on the host through os/exec.
type HostExecutor struct{}

func (h *HostExecutor) Output(ctx context.Context, argv []string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("empty command")
	}
	log := logger.Logger()
	log.Debugf("Exec: [%s]", FormatCmd(argv))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	outputStr := out.String()
	if err != nil {
		if outputStr != "" {
			log.Info(outputStr)
		}
		return outputStr, fmt.Errorf("failed to exec %s: %w", FormatCmd(argv), err)
	}
	if outputStr != "" {
		log.Debug(outputStr)
	}
	return outputStr, nil
}

func (h *HostExecutor) Attached(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty command")
	}
	logger.Logger().Debugf("Exec attached: [%s]", FormatCmd(argv))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to exec %s: %w", FormatCmd(argv), err)
	}
	return nil
}

func (h *HostExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// IsCommandExist reports whether cmd can be resolved by the executor.
func IsCommandExist(e Executor, cmd string) bool {
	if e == nil {
		e = Default
	}
	_, err := e.LookPath(cmd)
	return err == nil
}

// GetFullCmd prefixes argv with the privilege escalator when sudo is set.
func GetFullCmd(argv []string, sudo bool, escalator string) []string {
	if !sudo || escalator == "" {
		return append([]string(nil), argv...)
	}
	full := make([]string, 0, len(argv)+1)
	full = append(full, escalator)
	return append(full, argv...)
}

// FormatCmd renders argv as a single shell-safe line for logs.
func FormatCmd(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = shellescape.Quote(arg)
	}
	return strings.Join(quoted, " ")
}
