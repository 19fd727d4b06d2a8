package cli

import (
	"github.com/open-edge-platform/cowbuilder-aide/internal/config"
	"github.com/open-edge-platform/cowbuilder-aide/internal/cowbuilder"
	"github.com/spf13/cobra"
)

// envFlags are the flags shared by every command that names an environment.
type envFlags struct {
	distribution string
	architecture string
	role         string
	force        bool
}

func (f *envFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.distribution, "distribution", "d", "", "Distribution (required)")
	cmd.Flags().StringVarP(&f.architecture, "architecture", "a", config.DefaultArchitecture, "Architecture")
	cmd.Flags().StringVarP(&f.role, "role", "r", "", "Role")
	_ = cmd.MarkFlagRequired("distribution")
}

// options turns the parsed flags into dispatcher options. An architecture
// left at its flag default picks up the configured default instead.
func (f *envFlags) options(cmd *cobra.Command, h *config.ConfigHelpers, passthrough []string) cowbuilder.Options {
	arch := f.architecture
	if !cmd.Flags().Changed("architecture") {
		arch = h.DefaultArchitecture()
	}
	return cowbuilder.Options{
		Distribution: f.distribution,
		Architecture: arch,
		Role:         f.role,
		Force:        f.force,
		Passthrough:  passthrough,
	}
}

var envCommandText = map[cowbuilder.Operation]struct {
	short string
	long  string
}{
	cowbuilder.OpCreate: {
		short: "Create a new chroot environment",
		long: `Create a new copy-on-write chroot environment with cowbuilder.

An existing environment is left untouched unless --force is given, in which
case it is removed before being created again.`,
	},
	cowbuilder.OpUpdate: {
		short: "Update an existing chroot environment",
		long:  `Update an existing copy-on-write chroot environment with cowbuilder.`,
	},
	cowbuilder.OpLogin: {
		short: "Log in to a chroot environment",
		long:  `Open an interactive cowbuilder session inside an existing chroot environment.`,
	},
}

// createEnvCommand creates the create, update or login subcommand.
func (a *App) createEnvCommand(op cowbuilder.Operation) *cobra.Command {
	flags := &envFlags{}
	text := envCommandText[op]

	cmd := &cobra.Command{
		Use:         op.String() + " [flags] [-- COWBUILDER_OPTIONS...]",
		Short:       text.short,
		Long:        text.long,
		Args:        cobra.ArbitraryArgs,
		Annotations: map[string]string{annotationNeedsTools: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			passthrough := args
			if cmd.ArgsLenAtDash() == 0 {
				// pflag ate the end-of-flags "--"; put it back so the
				// dispatcher drops exactly one
				passthrough = append([]string{"--"}, args...)
			}
			opts := flags.options(cmd, a.helpers, passthrough)
			status, err := a.dispatcher.Run(cmd.Context(), op, opts)
			a.log.Debugf("%s finished with status %s", op, status)
			return err
		},
	}

	flags.register(cmd)
	if op == cowbuilder.OpCreate {
		cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Force creation even if base cow exists")
	}
	if a.variant.PassthroughStyle == config.PassthroughRemainder {
		// everything from the first positional argument on belongs to cowbuilder
		cmd.Flags().SetInterspersed(false)
	}

	return cmd
}
