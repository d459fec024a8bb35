package launch

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/bfix/gospel/logger"

	"github.com/liiesl/neverliie/registry"
)

// ErrNoLaunchTarget is returned when a descriptor's command is too short
// to identify a launch target for its mode.
var ErrNoLaunchTarget = errors.New("launch: descriptor has no command target")

// Spawn starts d's command as a detached child: no inherited standard
// handles, no shell, a new process group, and the descriptor's cwd as the
// working directory. The child outlives the caller; Spawn does not wait
// on it or read its output.
func Spawn(d registry.Descriptor) error {
	if len(d.Command) == 0 {
		return ErrNoLaunchTarget
	}
	if _, ok := d.Target(); !ok {
		return ErrNoLaunchTarget
	}

	cmd := exec.Command(d.Command[0], d.Command[1:]...)
	cmd.Dir = d.Cwd
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		logger.Printf(logger.WARN, "[launch] failed to spawn %v: %s\n", d.Command, err.Error())
		return err
	}
	// Detach: release the OS process handle so the parent never reaps it
	// and holds no reference to the child beyond this call.
	if err := cmd.Process.Release(); err != nil {
		logger.Printf(logger.WARN, "[launch] failed to release spawned process: %s\n", err.Error())
	}
	return nil
}

// TargetExists reports whether d's launch target is still present on
// disk.
func TargetExists(d registry.Descriptor) bool {
	target, ok := d.Target()
	if !ok {
		return false
	}
	_, err := os.Stat(target)
	return err == nil
}
