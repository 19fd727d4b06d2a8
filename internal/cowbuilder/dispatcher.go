package cowbuilder

import (
	"context"
	"fmt"

	"github.com/open-edge-platform/cowbuilder-aide/internal/config"
	"github.com/open-edge-platform/cowbuilder-aide/internal/cowenv"
	"github.com/open-edge-platform/cowbuilder-aide/internal/utils/shell"
	"github.com/open-edge-platform/cowbuilder-aide/internal/utils/system"
	"go.uber.org/zap"
)

// Options are the per-invocation inputs of an operation.
type Options struct {
	Distribution string
	Architecture string
	Role         string
	// Force only applies to create.
	Force bool
	// Passthrough is appended verbatim after one leading "--" is dropped.
	Passthrough []string
}

// Dispatcher turns create/update/login requests into cowbuilder invocations.
type Dispatcher struct {
	layout        cowenv.Layout
	escalator     string
	command       string
	extraArgs     []string
	required      []string
	failOnMissing bool

	exec shell.Executor
	log  *zap.SugaredLogger

	// checkArch is consulted before create; it only ever logs.
	checkArch func(ctx context.Context, arch string) bool
}

// New builds a dispatcher from configuration. A nil executor means
// shell.Default; a nil logger discards output.
func New(h *config.ConfigHelpers, exec shell.Executor, log *zap.SugaredLogger) (*Dispatcher, error) {
	if exec == nil {
		exec = shell.Default
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	cacheRoot, err := h.CacheRoot()
	if err != nil {
		return nil, err
	}
	home, err := h.HomeDir()
	if err != nil {
		return nil, err
	}
	extra, err := h.ExtraArgs()
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		layout: cowenv.Layout{
			CacheRoot: cacheRoot,
			Home:      home,
			Namespace: h.BindMountNamespace(),
		},
		escalator:     h.Escalator(),
		command:       h.CowbuilderCommand(),
		extraArgs:     extra,
		required:      h.RequiredCommands(),
		failOnMissing: h.FailOnMissing(),
		exec:          exec,
		log:           log,
	}
	d.checkArch = func(ctx context.Context, arch string) bool {
		return system.CheckForeignArch(ctx, d.exec, d.log, arch)
	}
	return d, nil
}

// Layout returns the roots environments are resolved against.
func (d *Dispatcher) Layout() cowenv.Layout {
	return d.layout
}

// CheckRequiredCommands fails with *CommandNotFoundError for the first
// required executable the host cannot resolve.
func (d *Dispatcher) CheckRequiredCommands() error {
	for _, cmd := range d.required {
		if !shell.IsCommandExist(d.exec, cmd) {
			return &CommandNotFoundError{Command: cmd}
		}
		d.log.Debugf("Found required command %s", cmd)
	}
	return nil
}

// Resolve derives the environment named by opts.
func (d *Dispatcher) Resolve(opts Options) (*cowenv.Environment, error) {
	return d.layout.Resolve(opts.Distribution, opts.Architecture, opts.Role)
}

// Run dispatches op.
func (d *Dispatcher) Run(ctx context.Context, op Operation, opts Options) (Status, error) {
	switch op {
	case OpCreate:
		return d.Create(ctx, opts)
	case OpUpdate:
		return d.Update(ctx, opts)
	case OpLogin:
		return d.Login(ctx, opts)
	default:
		return StatusFailed, fmt.Errorf("unknown operation %s", op)
	}
}

// Create builds a new base cow. An existing one is kept unless opts.Force is
// set, in which case it is removed first.
func (d *Dispatcher) Create(ctx context.Context, opts Options) (Status, error) {
	env, err := d.Resolve(opts)
	if err != nil {
		return StatusFailed, err
	}

	exists, err := env.Exists()
	if err != nil {
		return StatusFailed, err
	}
	if exists && !opts.Force {
		d.log.Warnf("Base cow already exists at %s. Use --force to overwrite.", env.BasePath)
		return StatusSkippedAlreadyExists, nil
	}

	if exists {
		d.log.Infof("Force flag set. Removing existing base cow at %s.", env.BasePath)
		rm := shell.GetFullCmd([]string{"rm", "-rf", env.BasePath}, true, d.escalator)
		if _, err := d.exec.Output(ctx, rm); err != nil {
			d.log.Errorf("Error removing existing base cow: %v", err)
			return StatusFailed, &RemoveError{Path: env.BasePath, Err: err}
		}
	}

	d.checkArch(ctx, env.Architecture)

	if err := d.invoke(ctx, OpCreate, env, opts.Passthrough); err != nil {
		return StatusFailed, err
	}
	d.log.Infof("Successfully created new chroot environment at %s", env.BasePath)
	return StatusSuccess, nil
}

// Update refreshes an existing base cow.
func (d *Dispatcher) Update(ctx context.Context, opts Options) (Status, error) {
	env, status, err := d.requireExisting(opts)
	if env == nil {
		return status, err
	}
	if err := d.invoke(ctx, OpUpdate, env, opts.Passthrough); err != nil {
		return StatusFailed, err
	}
	d.log.Infof("Successfully updated chroot environment at %s", env.BasePath)
	return StatusSuccess, nil
}

// Login opens an interactive session inside an existing base cow.
func (d *Dispatcher) Login(ctx context.Context, opts Options) (Status, error) {
	env, status, err := d.requireExisting(opts)
	if env == nil {
		return status, err
	}
	if err := d.invoke(ctx, OpLogin, env, opts.Passthrough); err != nil {
		return StatusFailed, err
	}
	return StatusSuccess, nil
}

// requireExisting resolves opts and returns a nil environment when the
// caller must stop, together with the status to report.
func (d *Dispatcher) requireExisting(opts Options) (*cowenv.Environment, Status, error) {
	env, err := d.Resolve(opts)
	if err != nil {
		return nil, StatusFailed, err
	}
	exists, err := env.Exists()
	if err != nil {
		return nil, StatusFailed, err
	}
	if !exists {
		d.log.Errorf("Base cow does not exist at %s. Create it first.", env.BasePath)
		if d.failOnMissing {
			return nil, StatusSkippedMissing, &MissingEnvironmentError{BasePath: env.BasePath}
		}
		return nil, StatusSkippedMissing, nil
	}
	return env, StatusSuccess, nil
}

func (d *Dispatcher) invoke(ctx context.Context, op Operation, env *cowenv.Environment, passthrough []string) error {
	if err := env.EnsureBindMountDir(); err != nil {
		return err
	}

	argv := d.BuildArgs(op, env, passthrough)
	d.log.Infof("Running cowbuilder with args: %s", shell.FormatCmd(argv))

	if err := d.exec.Attached(ctx, argv); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("cowbuilder %s interrupted: %w", op, ctx.Err())
		}
		return &CowbuilderError{Operation: op, Err: err}
	}
	return nil
}

// BuildArgs assembles the full escalated cowbuilder command line.
func (d *Dispatcher) BuildArgs(op Operation, env *cowenv.Environment, passthrough []string) []string {
	argv := []string{
		d.command, op.Flag(),
		"--basepath", env.BasePath,
		"--distribution", env.Distribution,
		"--architecture", env.Architecture,
		"--bindmounts", env.BindMountDir,
	}
	argv = append(argv, d.extraArgs...)
	argv = append(argv, StripSeparator(passthrough)...)
	return shell.GetFullCmd(argv, true, d.escalator)
}

// StripSeparator drops a single leading "--" end-of-flags marker.
func StripSeparator(args []string) []string {
	if len(args) > 0 && args[0] == "--" {
		return args[1:]
	}
	return args
}
