package cowbuilder

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/open-edge-platform/cowbuilder-aide/internal/config"
	"github.com/open-edge-platform/cowbuilder-aide/internal/cowenv"
	"github.com/open-edge-platform/cowbuilder-aide/internal/utils/logger"
	"github.com/open-edge-platform/cowbuilder-aide/internal/utils/shell"
)

type testEnv struct {
	d    *Dispatcher
	mock *shell.MockExecutor
	logs *bytes.Buffer
	home string
	root string
}

func newTestDispatcher(t *testing.T, mutate func(cfg *config.GlobalConfig), commands ...shell.MockCommand) *testEnv {
	t.Helper()

	tmp := t.TempDir()
	home := filepath.Join(tmp, "home")
	if err := os.MkdirAll(home, 0755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })

	cfg := config.DefaultGlobalConfig(config.VariantCowbuilderAide)
	cfg.CacheRoot = filepath.Join(tmp, "pbuilder")
	if mutate != nil {
		mutate(cfg)
	}

	mock := shell.NewMockExecutor(commands...)
	var logs bytes.Buffer
	log, err := logger.New("debug", &logs)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	d, err := New(config.NewConfigHelpers(cfg), mock, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.checkArch = func(context.Context, string) bool { return true }

	return &testEnv{d: d, mock: mock, logs: &logs, home: home, root: cfg.CacheRoot}
}

func (e *testEnv) makeBaseCow(t *testing.T, opts Options) *cowenv.Environment {
	t.Helper()
	env, err := e.d.Resolve(opts)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := os.MkdirAll(env.BasePath, 0755); err != nil {
		t.Fatalf("mkdir base cow: %v", err)
	}
	return env
}

func TestCreateInvokesCowbuilder(t *testing.T) {
	te := newTestDispatcher(t, nil, shell.MockCommand{Pattern: "sudo cowbuilder --create"})
	opts := Options{Distribution: "bookworm", Architecture: "amd64", Passthrough: []string{"--", "--othermirror", "deb http://x y z"}}

	status, err := te.d.Create(context.Background(), opts)
	if err != nil || status != StatusSuccess {
		t.Fatalf("Create() = %v, %v", status, err)
	}

	name := cowenv.Derive("bookworm", "amd64", "")
	want := []string{
		"sudo", "cowbuilder", "--create",
		"--basepath", filepath.Join(te.root, name+".cow"),
		"--distribution", "bookworm",
		"--architecture", "amd64",
		"--bindmounts", filepath.Join(te.home, ".cowbuilder-aide", name),
		"--othermirror", "deb http://x y z",
	}
	if len(te.mock.AttachedCalls) != 1 || !reflect.DeepEqual(te.mock.AttachedCalls[0], want) {
		t.Fatalf("unexpected cowbuilder call:\n got %q\nwant %q", te.mock.AttachedCalls, want)
	}

	if info, err := os.Stat(filepath.Join(te.home, ".cowbuilder-aide", name)); err != nil || !info.IsDir() {
		t.Errorf("bind mount directory not created: %v", err)
	}
	if !strings.Contains(te.logs.String(), "Successfully created new chroot environment at") {
		t.Errorf("missing success log:\n%s", te.logs.String())
	}
}

func TestCreateExistingWithoutForceSkips(t *testing.T) {
	te := newTestDispatcher(t, nil)
	opts := Options{Distribution: "bookworm", Architecture: "arm64", Role: "build"}
	env := te.makeBaseCow(t, opts)

	status, err := te.d.Create(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusSkippedAlreadyExists {
		t.Errorf("status = %v, want %v", status, StatusSkippedAlreadyExists)
	}
	if len(te.mock.Calls) != 0 {
		t.Errorf("no command may run, got %v", te.mock.CallLines())
	}
	if _, err := os.Stat(env.BasePath); err != nil {
		t.Errorf("existing base cow must be left alone: %v", err)
	}
	if !strings.Contains(te.logs.String(), "Base cow already exists at "+env.BasePath+". Use --force to overwrite.") {
		t.Errorf("missing warning:\n%s", te.logs.String())
	}
}

func TestCreateExistingWithForceRemovesFirst(t *testing.T) {
	te := newTestDispatcher(t, nil,
		shell.MockCommand{Pattern: "sudo rm -rf"},
		shell.MockCommand{Pattern: "sudo cowbuilder --create"},
	)
	opts := Options{Distribution: "bookworm", Architecture: "arm64", Role: "build", Force: true}
	env := te.makeBaseCow(t, opts)

	status, err := te.d.Create(context.Background(), opts)
	if err != nil || status != StatusSuccess {
		t.Fatalf("Create() = %v, %v", status, err)
	}

	lines := te.mock.CallLines()
	if len(lines) != 2 {
		t.Fatalf("expected remove then create, got %v", lines)
	}
	if lines[0] != "sudo rm -rf "+env.BasePath {
		t.Errorf("first call = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "sudo cowbuilder --create --basepath "+env.BasePath) {
		t.Errorf("second call = %q", lines[1])
	}
}

func TestCreateForceRemovalFailure(t *testing.T) {
	te := newTestDispatcher(t, nil,
		shell.MockCommand{Pattern: "sudo rm -rf", Error: errors.New("permission denied")},
	)
	opts := Options{Distribution: "sid", Architecture: "amd64", Force: true}
	te.makeBaseCow(t, opts)

	status, err := te.d.Create(context.Background(), opts)
	if status != StatusFailed {
		t.Errorf("status = %v, want failed", status)
	}
	var rmErr *RemoveError
	if !errors.As(err, &rmErr) {
		t.Fatalf("expected *RemoveError, got %T: %v", err, err)
	}
	if len(te.mock.AttachedCalls) != 0 {
		t.Errorf("cowbuilder must not run after a failed removal: %v", te.mock.AttachedCalls)
	}
}

func TestCowbuilderFailure(t *testing.T) {
	te := newTestDispatcher(t, nil,
		shell.MockCommand{Pattern: "sudo cowbuilder", Error: errors.New("exit status 1")},
	)
	opts := Options{Distribution: "bookworm", Architecture: "amd64", Role: "ci"}
	te.makeBaseCow(t, opts)

	status, err := te.d.Update(context.Background(), opts)
	if status != StatusFailed {
		t.Errorf("status = %v", status)
	}
	var cbErr *CowbuilderError
	if !errors.As(err, &cbErr) {
		t.Fatalf("expected *CowbuilderError, got %T", err)
	}
	if cbErr.Operation != OpUpdate {
		t.Errorf("operation = %v", cbErr.Operation)
	}
	if err.Error() != "Error running cowbuilder --update: exit status 1" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestUpdateAndLoginOnMissingEnvironment(t *testing.T) {
	for _, op := range []Operation{OpUpdate, OpLogin} {
		t.Run(op.String(), func(t *testing.T) {
			te := newTestDispatcher(t, nil)
			opts := Options{Distribution: "trixie", Architecture: "amd64"}

			status, err := te.d.Run(context.Background(), op, opts)
			if err != nil {
				t.Fatalf("missing environment must not be an error by default: %v", err)
			}
			if status != StatusSkippedMissing {
				t.Errorf("status = %v", status)
			}
			if len(te.mock.Calls) != 0 {
				t.Errorf("no command may run, got %v", te.mock.CallLines())
			}
			if !strings.Contains(te.logs.String(), "Create it first.") {
				t.Errorf("missing error log:\n%s", te.logs.String())
			}
		})
	}
}

func TestMissingEnvironmentWithFailOnMissing(t *testing.T) {
	te := newTestDispatcher(t, func(cfg *config.GlobalConfig) { cfg.FailOnMissing = true })

	status, err := te.d.Login(context.Background(), Options{Distribution: "trixie", Architecture: "amd64"})
	if status != StatusSkippedMissing {
		t.Errorf("status = %v", status)
	}
	var missing *MissingEnvironmentError
	if !errors.As(err, &missing) {
		t.Fatalf("expected *MissingEnvironmentError, got %v", err)
	}
}

func TestLoginRunsAttached(t *testing.T) {
	te := newTestDispatcher(t, func(cfg *config.GlobalConfig) {
		cfg.Escalator = "doas"
		cfg.Cowbuilder.ExtraArgs = "--save-after-login"
	}, shell.MockCommand{Pattern: "doas cowbuilder --login"})
	opts := Options{Distribution: "bookworm", Architecture: "amd64", Role: "dev", Passthrough: []string{"--bindmounts", "/srv"}}
	env := te.makeBaseCow(t, opts)

	status, err := te.d.Login(context.Background(), opts)
	if err != nil || status != StatusSuccess {
		t.Fatalf("Login() = %v, %v", status, err)
	}
	want := "doas cowbuilder --login --basepath " + env.BasePath +
		" --distribution bookworm --architecture amd64 --bindmounts " + env.BindMountDir +
		" --save-after-login --bindmounts /srv"
	if got := strings.Join(te.mock.AttachedCalls[0], " "); got != want {
		t.Errorf("call = %q\nwant  %q", got, want)
	}
}

func TestCreateChecksForeignArch(t *testing.T) {
	te := newTestDispatcher(t, nil, shell.MockCommand{Pattern: "sudo cowbuilder --create"})
	var checked string
	te.d.checkArch = func(_ context.Context, arch string) bool {
		checked = arch
		return false
	}

	status, err := te.d.Create(context.Background(), Options{Distribution: "bookworm", Architecture: "riscv64"})
	if err != nil || status != StatusSuccess {
		t.Fatalf("a failed arch check must only warn: %v, %v", status, err)
	}
	if checked != "riscv64" {
		t.Errorf("arch check saw %q", checked)
	}
}

func TestCheckRequiredCommands(t *testing.T) {
	te := newTestDispatcher(t, nil)
	te.mock.Paths["sudo"] = "/usr/bin/sudo"

	err := te.d.CheckRequiredCommands()
	var nf *CommandNotFoundError
	if !errors.As(err, &nf) || nf.Command != "/usr/sbin/cowbuilder" {
		t.Fatalf("expected missing cowbuilder, got %v", err)
	}
	if err.Error() != "Required command not found: /usr/sbin/cowbuilder" {
		t.Errorf("message = %q", err.Error())
	}

	te.mock.Paths["/usr/sbin/cowbuilder"] = "/usr/sbin/cowbuilder"
	if err := te.d.CheckRequiredCommands(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestResolveRejectsEmptyDistribution(t *testing.T) {
	te := newTestDispatcher(t, nil)
	status, err := te.d.Create(context.Background(), Options{Architecture: "amd64"})
	if err == nil || status != StatusFailed {
		t.Errorf("Create() = %v, %v", status, err)
	}
}

func TestStripSeparator(t *testing.T) {
	tests := []struct {
		in, want []string
	}{
		{nil, nil},
		{[]string{"--"}, []string{}},
		{[]string{"--", "--debug"}, []string{"--debug"}},
		{[]string{"--", "--", "x"}, []string{"--", "x"}},
		{[]string{"--debug", "--"}, []string{"--debug", "--"}},
	}
	for _, tt := range tests {
		got := StripSeparator(tt.in)
		if len(got) != len(tt.want) || (len(got) > 0 && !reflect.DeepEqual(got, tt.want)) {
			t.Errorf("StripSeparator(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestList(t *testing.T) {
	te := newTestDispatcher(t, nil)

	entries, err := te.d.List()
	if err != nil || len(entries) != 0 {
		t.Fatalf("missing cache root must list nothing: %v, %v", entries, err)
	}

	a := te.makeBaseCow(t, Options{Distribution: "sid", Architecture: "amd64", Role: "x"})
	b := te.makeBaseCow(t, Options{Distribution: "bookworm", Architecture: "arm64", Role: "build"})
	if err := b.EnsureBindMountDir(); err != nil {
		t.Fatalf("bind dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(te.root, "stray.cow"), nil, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(te.root, "aptcache"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	entries, err = te.d.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	if entries[0].Name != b.Name || entries[1].Name != a.Name {
		t.Errorf("entries not sorted by name: %+v", entries)
	}
	if !entries[0].HasBindMountDir || entries[1].HasBindMountDir {
		t.Errorf("unexpected bind dir flags: %+v", entries)
	}
	if entries[0].BasePath != b.BasePath {
		t.Errorf("base path = %q", entries[0].BasePath)
	}
}

func TestOperationAndStatusStrings(t *testing.T) {
	if OpCreate.Flag() != "--create" || OpUpdate.Flag() != "--update" || OpLogin.Flag() != "--login" {
		t.Error("unexpected operation flags")
	}
	if StatusSkippedAlreadyExists.String() != "skipped-already-exists" {
		t.Errorf("unexpected status string %q", StatusSkippedAlreadyExists)
	}
	if _, err := (&Dispatcher{}).Run(context.Background(), Operation(42), Options{}); err == nil {
		t.Error("unknown operation must fail")
	}
}
