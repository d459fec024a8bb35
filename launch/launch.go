// Package launch implements self execution-mode detection and detached
// process spawn for peers missing from a live mesh.
package launch

import (
	"os"
	"path/filepath"

	"github.com/liiesl/neverliie/registry"
)

// DetectSelf builds the Launch Descriptor this process should register for
// itself at boot. Go programs are always compiled to a native executable,
// so there is no interpreter-invocation branch to detect at runtime the
// way a scripting-language host would: self-registration is always
// ModeBinary, with cmd = [self-image-path] and cwd = the image's
// directory.
func DetectSelf() (registry.Descriptor, error) {
	exe, err := os.Executable()
	if err != nil {
		return registry.Descriptor{}, err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return registry.Descriptor{}, err
	}
	return registry.Descriptor{
		Mode:    registry.ModeBinary,
		Command: []string{exe},
		Cwd:     filepath.Dir(exe),
	}, nil
}
