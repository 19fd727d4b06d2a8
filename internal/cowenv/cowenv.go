// Package cowenv derives the names and paths of cowbuilder environments.
//
// An environment is identified by "{distribution}-{architecture}-{role}". When
// no role is given, it is replaced by the first ten hex characters of the
// SHA-512 digest of "{distribution}-{architecture}", so repeated invocations
// without a role always land on the same environment.
package cowenv

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	roleHashLength = 10
	baseCowSuffix  = ".cow"
)

// DefaultRole returns the role used when none is given.
func DefaultRole(distribution, architecture string) string {
	sum := sha512.Sum512([]byte(distribution + "-" + architecture))
	return hex.EncodeToString(sum[:])[:roleHashLength]
}

// Derive returns the environment identifier for the given triple.
func Derive(distribution, architecture, role string) string {
	if role == "" {
		role = DefaultRole(distribution, architecture)
	}
	return distribution + "-" + architecture + "-" + role
}

// BasePath returns the location of the base cow for name under cacheRoot.
func BasePath(cacheRoot, name string) string {
	return filepath.Join(cacheRoot, name+baseCowSuffix)
}

// BindMountDir returns the per-environment bind-mount directory.
func BindMountDir(home, namespace, name string) string {
	return filepath.Join(home, namespace, name)
}

// Layout holds the roots every environment path is derived from.
type Layout struct {
	CacheRoot string
	Home      string
	Namespace string
}

// Environment is a fully resolved environment.
type Environment struct {
	Distribution string `json:"distribution"`
	Architecture string `json:"architecture"`
	Role         string `json:"role"`
	Name         string `json:"name"`
	BasePath     string `json:"basePath"`
	BindMountDir string `json:"bindMountDir"`
}

// Resolve derives the environment for the given triple. The role in the
// result is the effective one, hashed when the caller passed none.
func (l Layout) Resolve(distribution, architecture, role string) (*Environment, error) {
	if distribution == "" {
		return nil, errors.New("distribution must not be empty")
	}
	if architecture == "" {
		return nil, errors.New("architecture must not be empty")
	}
	for _, f := range []struct{ field, value string }{
		{"distribution", distribution},
		{"architecture", architecture},
		{"role", role},
	} {
		if err := checkNameComponent(f.field, f.value); err != nil {
			return nil, err
		}
	}
	if role == "" {
		role = DefaultRole(distribution, architecture)
	}

	name := Derive(distribution, architecture, role)
	return &Environment{
		Distribution: distribution,
		Architecture: architecture,
		Role:         role,
		Name:         name,
		BasePath:     BasePath(l.CacheRoot, name),
		BindMountDir: BindMountDir(l.Home, l.Namespace, name),
	}, nil
}

// checkNameComponent rejects values that would move the base cow or the
// bind-mount directory out of their roots once joined into a path.
func checkNameComponent(field, value string) error {
	if strings.ContainsAny(value, "/\\\x00") {
		return fmt.Errorf("invalid %s %q: must not contain path separators", field, value)
	}
	return nil
}

// Exists reports whether the base cow is present on disk.
func (e *Environment) Exists() (bool, error) {
	_, err := os.Stat(e.BasePath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking base cow %s: %w", e.BasePath, err)
}

// EnsureBindMountDir creates the bind-mount directory and any missing parents.
func (e *Environment) EnsureBindMountDir() error {
	if err := os.MkdirAll(e.BindMountDir, 0755); err != nil {
		return fmt.Errorf("creating bind mount directory %s: %w", e.BindMountDir, err)
	}
	return nil
}
