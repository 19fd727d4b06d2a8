// Package cli wires the cobra command tree shared by every tool variant.
package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/open-edge-platform/cowbuilder-aide/internal/config"
	"github.com/open-edge-platform/cowbuilder-aide/internal/cowbuilder"
	"github.com/open-edge-platform/cowbuilder-aide/internal/utils/logger"
	"github.com/open-edge-platform/cowbuilder-aide/internal/utils/shell"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// annotationNeedsTools marks commands that shell out to cowbuilder and so
// require the escalator and cowbuilder binaries to be present.
const annotationNeedsTools = "cowbuilder-aide/needs-tools"

var errNoCommand = errors.New("a command is required: create, update, login, list or name")

// Option customises an App, mostly for tests.
type Option func(*App)

// WithExecutor replaces shell.Default for every external command.
func WithExecutor(e shell.Executor) Option {
	return func(a *App) { a.exec = e }
}

// WithLogOutput sends log lines to w instead of standard error.
func WithLogOutput(w io.Writer) Option {
	return func(a *App) { a.logOut = w }
}

// WithOutput sends command output (list, name) to w.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// App holds the state of one invocation.
type App struct {
	variant config.Variant

	configPath string
	logLevel   string
	verbose    bool

	exec   shell.Executor
	logOut io.Writer
	out    io.Writer

	helpers    *config.ConfigHelpers
	log        *zap.SugaredLogger
	dispatcher *cowbuilder.Dispatcher
}

func newApp(variant config.Variant, opts ...Option) *App {
	a := &App{variant: variant, exec: shell.Default}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Execute runs the tool for variant with the process arguments and returns
// the exit code.
func Execute(variant config.Variant, opts ...Option) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, variant, os.Args[1:], opts...)
}

// Run runs the tool for variant with args and returns the exit code.
func Run(ctx context.Context, variant config.Variant, args []string, opts ...Option) int {
	a := newApp(variant, opts...)
	root := a.createRootCommand()
	root.SetArgs(args)
	if a.out != nil {
		root.SetOut(a.out)
	}
	err := root.ExecuteContext(ctx)
	if a.log != nil {
		defer func() { _ = a.log.Sync() }()
	}
	return a.exitCode(err)
}

// createRootCommand creates the root command and attaches all subcommands.
func (a *App) createRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               a.variant.Name,
		Short:             a.variant.Description,
		SilenceErrors:     true,
		Args:              cobra.NoArgs,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()
			return errNoCommand
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "",
		"Path to configuration file (default: $XDG_CONFIG_HOME/"+a.variant.Name+"/config.yml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides config)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"Enable verbose logging")

	root.AddCommand(a.createEnvCommand(cowbuilder.OpCreate))
	root.AddCommand(a.createEnvCommand(cowbuilder.OpUpdate))
	root.AddCommand(a.createEnvCommand(cowbuilder.OpLogin))
	root.AddCommand(a.createListCommand())
	root.AddCommand(a.createNameCommand())

	return root
}

// resolveRequestedLogLevel returns the level asked for on the command line:
// an explicit --log-level wins, --verbose means debug, otherwise "".
func (a *App) resolveRequestedLogLevel() string {
	if a.logLevel != "" {
		return a.logLevel
	}
	if a.verbose {
		return "debug"
	}
	return ""
}

// setup loads configuration, builds the logger and dispatcher and checks for
// required executables. It runs before every subcommand.
func (a *App) setup(cmd *cobra.Command, _ []string) error {
	if !cmd.HasParent() {
		return nil
	}
	// cobra only checks these after the pre-run hooks
	if err := cmd.ValidateRequiredFlags(); err != nil {
		return err
	}
	cmd.SilenceUsage = true

	cfg, err := config.LoadGlobalConfig(a.configPath, a.variant)
	if err != nil {
		return err
	}
	a.helpers = config.NewConfigHelpers(cfg)

	level := a.resolveRequestedLogLevel()
	if level == "" {
		level = a.helpers.LogLevel()
	}
	log, err := logger.New(level, a.logOut)
	if err != nil {
		return err
	}
	if lvl, _ := logger.ParseLevel(level); lvl == zap.DebugLevel {
		log = log.With("run", uuid.NewString())
	}
	a.log = log
	logger.Init(log)

	a.dispatcher, err = cowbuilder.New(a.helpers, a.exec, log)
	if err != nil {
		return err
	}

	if cmd.Annotations[annotationNeedsTools] == "true" {
		if err := a.dispatcher.CheckRequiredCommands(); err != nil {
			return err
		}
	}
	return nil
}

// exitCode reports err and maps it onto the process exit status.
func (a *App) exitCode(err error) int {
	if err == nil {
		return 0
	}

	log := a.log
	if log == nil {
		log, _ = logger.New(logger.DefaultLevel, a.logOut)
	}

	var (
		notFound *cowbuilder.CommandNotFoundError
		cbErr    *cowbuilder.CowbuilderError
		rmErr    *cowbuilder.RemoveError
		missing  *cowbuilder.MissingEnvironmentError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &cbErr):
		log.Error(err.Error())
	case errors.As(err, &rmErr), errors.As(err, &missing):
		// already logged by the dispatcher
	case a.dispatcher == nil:
		// usage or configuration problem before anything ran
		log.Error(err.Error())
	default:
		log.Errorw("An unexpected error occurred", "error", err)
	}
	return 1
}
