package system

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-edge-platform/cowbuilder-aide/internal/utils/shell"
	"go.uber.org/zap"
)

// unameToDebArch maps `uname -m` machine names onto Debian architecture names.
var unameToDebArch = map[string]string{
	"x86_64":  "amd64",
	"aarch64": "arm64",
	"armv7l":  "armhf",
	"armv6l":  "armel",
	"i386":    "i386",
	"i686":    "i386",
	"ppc64le": "ppc64el",
	"riscv64": "riscv64",
	"s390x":   "s390x",
	"mips64":  "mips64el",
}

// debArchToQemu maps Debian architecture names onto qemu-user-static suffixes.
var debArchToQemu = map[string]string{
	"amd64":    "x86_64",
	"arm64":    "aarch64",
	"armhf":    "arm",
	"armel":    "arm",
	"i386":     "i386",
	"ppc64el":  "ppc64le",
	"riscv64":  "riscv64",
	"s390x":    "s390x",
	"mips64el": "mips64el",
}

// NormalizeArch converts a machine name to its Debian spelling. Names that are
// already Debian architectures are returned unchanged.
func NormalizeArch(arch string) string {
	arch = strings.TrimSpace(arch)
	if deb, ok := unameToDebArch[arch]; ok {
		return deb
	}
	return arch
}

// QemuArch returns the qemu-user-static suffix for a Debian architecture.
func QemuArch(debArch string) (string, bool) {
	q, ok := debArchToQemu[NormalizeArch(debArch)]
	return q, ok
}

// GetHostArch returns the host architecture in Debian spelling. dpkg is asked
// first; `uname -m` is the fallback on hosts without dpkg.
func GetHostArch(ctx context.Context, e shell.Executor) (string, error) {
	if e == nil {
		e = shell.Default
	}

	output, err := e.Output(ctx, []string{"dpkg", "--print-architecture"})
	if err == nil && strings.TrimSpace(output) != "" {
		return strings.TrimSpace(output), nil
	}

	output, err = e.Output(ctx, []string{"uname", "-m"})
	if err != nil {
		return "", fmt.Errorf("failed to get host architecture: %w", err)
	}
	arch := NormalizeArch(output)
	if arch == "" {
		return "", fmt.Errorf("failed to get host architecture: empty output")
	}
	return arch, nil
}

// CheckForeignArch warns when targetArch cannot run natively on the host and
// no qemu-user-static interpreter is installed for it. It reports whether the
// host looks ready to build for targetArch; it never fails the caller.
func CheckForeignArch(ctx context.Context, e shell.Executor, log *zap.SugaredLogger, targetArch string) bool {
	if e == nil {
		e = shell.Default
	}

	hostArch, err := GetHostArch(ctx, e)
	if err != nil {
		log.Debugf("Skipping cross-architecture check: %v", err)
		return true
	}

	target := NormalizeArch(targetArch)
	if target == hostArch || isNativeCompat(hostArch, target) {
		log.Debugf("Host architecture %s can run target architecture %s natively", hostArch, target)
		return true
	}

	qemu, ok := QemuArch(target)
	if !ok {
		log.Warnf("Unknown target architecture %s; cannot check for emulation support", target)
		return false
	}

	binary := fmt.Sprintf("qemu-%s-static", qemu)
	if !shell.IsCommandExist(e, binary) {
		log.Warnf("Host architecture %s differs from target %s and %s was not found; install qemu-user-static",
			hostArch, target, binary)
		return false
	}

	log.Infof("Host architecture %s, target %s: using %s", hostArch, target, binary)
	return true
}

// isNativeCompat covers host/target pairs the kernel runs without emulation.
func isNativeCompat(host, target string) bool {
	switch host {
	case "amd64":
		return target == "i386"
	case "arm64":
		return target == "armhf" || target == "armel"
	}
	return false
}
