package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// formatFlag is a --format value restricted to a fixed set of names.
type formatFlag struct {
	value   string
	allowed []string
}

var _ pflag.Value = (*formatFlag)(nil)

func newFormatFlag(allowed ...string) *formatFlag {
	return &formatFlag{value: allowed[0], allowed: allowed}
}

func (f *formatFlag) String() string { return f.value }

func (f *formatFlag) Set(s string) error {
	s = strings.ToLower(strings.TrimSpace(s))
	if !lo.Contains(f.allowed, s) {
		return fmt.Errorf("expected %s", strings.Join(f.allowed, "|"))
	}
	f.value = s
	return nil
}

func (f *formatFlag) Type() string { return "format" }

// createListCommand creates the list subcommand
func (a *App) createListCommand() *cobra.Command {
	format := newFormatFlag("text", "json")

	cmd := &cobra.Command{
		Use:   "list [flags]",
		Short: "List chroot environments in the cache root",
		Long: `List the base cows found under the cache root. Environments whose
bind-mount directory exists are marked with a check.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := a.dispatcher.List()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format.value == "json" {
				return writeJSON(out, entries)
			}

			if len(entries) == 0 {
				a.log.Infof("No chroot environments found in %s", a.dispatcher.Layout().CacheRoot)
				return nil
			}
			ok := color.New(color.FgGreen).SprintFunc()
			missing := color.New(color.FgYellow).SprintFunc()
			for _, e := range entries {
				mark := ok("✓")
				if !e.HasBindMountDir {
					mark = missing("-")
				}
				fmt.Fprintf(out, "%s %s\n", mark, e.Name)
				if a.verbose {
					fmt.Fprintf(out, "    base:  %s\n    binds: %s\n", e.BasePath, e.BindMountDir)
				}
			}
			return nil
		},
	}

	cmd.Flags().Var(format, "format", "Output format: text or json")
	return cmd
}

// createNameCommand creates the name subcommand
func (a *App) createNameCommand() *cobra.Command {
	flags := &envFlags{}
	format := newFormatFlag("text", "json", "yaml")

	cmd := &cobra.Command{
		Use:   "name [flags]",
		Short: "Print the environment name and paths without touching anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := flags.options(cmd, a.helpers, nil)
			env, err := a.dispatcher.Resolve(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format.value {
			case "json":
				return writeJSON(out, env)
			case "yaml":
				b, err := yaml.Marshal(map[string]string{
					"name":         env.Name,
					"role":         env.Role,
					"basePath":     env.BasePath,
					"bindMountDir": env.BindMountDir,
				})
				if err != nil {
					return fmt.Errorf("marshal yaml: %w", err)
				}
				_, err = out.Write(b)
				return err
			default:
				fmt.Fprintln(out, env.Name)
				if a.verbose {
					fmt.Fprintf(out, "base:  %s\nbinds: %s\n", env.BasePath, env.BindMountDir)
				}
				return nil
			}
		},
	}

	flags.register(cmd)
	cmd.Flags().Var(format, "format", "Output format: text, json or yaml")
	return cmd
}

func writeJSON(out io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	_, _ = fmt.Fprintln(out, string(b))
	return nil
}
