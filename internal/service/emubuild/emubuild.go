package emubuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/oshokin/clip2gif-packager/internal/config"
	"github.com/oshokin/clip2gif-packager/internal/logger"
	"github.com/oshokin/clip2gif-packager/internal/platform"
)

const (
	// ToolchainEnvVar overrides the interpreter/toolchain used for cross builds.
	ToolchainEnvVar = "CLIP2GIF_TOOLCHAIN"

	// deploymentTargetEnvVar is the macOS deployment floor exported to build steps.
	deploymentTargetEnvVar = "MACOSX_DEPLOYMENT_TARGET"

	// archCommand runs a subprocess under a pinned architecture on macOS.
	archCommand = "arch"

	// rosettaProbe is a no-op binary executed under emulation to test Rosetta.
	rosettaProbe = "/usr/bin/true"
)

var (
	errEmptyBuildCommand = errors.New("build command is not configured")
	errRosettaMissing    = errors.New("emulation layer (Rosetta 2) is unavailable and could not be installed")
)

// commandRunner executes a command and returns its combined output.
// Swapped out in tests; the default shells out via os/exec.
type commandRunner func(ctx context.Context, extraEnv []string, name string, args ...string) ([]byte, error)

// Executor runs the packaging build step, under an emulation layer when the
// target architecture differs from the host's.
type Executor struct {
	target        *platform.Target
	build         config.Build
	run           commandRunner
	emulatorReady bool
	toolchainPath string
}

// NewExecutor creates a build executor for the resolved target.
func NewExecutor(target *platform.Target, build config.Build) *Executor {
	return &Executor{
		target: target,
		build:  build,
		run:    runCommand,
	}
}

// runCommand is the production commandRunner.
func runCommand(ctx context.Context, extraEnv []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), extraEnv...)

	return cmd.CombinedOutput()
}

// EnsureEmulator verifies the host can execute target-arch binaries,
// installing Rosetta 2 when the probe fails. A host that still cannot run
// the probe afterwards is a fatal condition: nothing downstream can succeed.
func (e *Executor) EnsureEmulator(ctx context.Context) error {
	if !e.target.NeedsEmulation() {
		return nil
	}

	if e.emulatorReady {
		return nil
	}

	if e.probeEmulator(ctx) {
		e.emulatorReady = true
		return nil
	}

	logger.InfoKV(ctx, "Emulation layer missing, installing Rosetta 2", "arch", e.target.Arch)

	output, err := e.run(ctx, nil, "softwareupdate", "--install-rosetta", "--agree-to-license")
	if err != nil {
		return fmt.Errorf("%w: %s", errRosettaMissing, firstLine(output, err))
	}

	if !e.probeEmulator(ctx) {
		return errRosettaMissing
	}

	e.emulatorReady = true

	return nil
}

// probeEmulator runs a trivial binary under the target architecture.
func (e *Executor) probeEmulator(ctx context.Context) bool {
	_, err := e.run(ctx, nil, archCommand, "-"+e.target.Arch, rosettaProbe)
	return err == nil
}

// Toolchain returns the arch-pinned toolchain instance for cross builds,
// creating it on first use. The instance is expensive to create and is
// reused across invocations; the CLIP2GIF_TOOLCHAIN environment variable
// bypasses creation entirely.
func (e *Executor) Toolchain(ctx context.Context) (string, error) {
	if e.toolchainPath != "" {
		return e.toolchainPath, nil
	}

	if override := os.Getenv(ToolchainEnvVar); override != "" {
		logger.InfoKV(ctx, "Using toolchain override", "path", override)
		e.toolchainPath = override

		return override, nil
	}

	path := ".toolchain-" + e.target.Arch
	if _, err := os.Stat(path); err == nil {
		e.toolchainPath = path
		return path, nil
	}

	if len(e.build.ToolchainInit) == 0 {
		// Nothing to create; the build step relies on whatever is on PATH.
		return "", nil
	}

	logger.InfoKV(ctx, "Creating architecture-pinned toolchain", "path", path, "arch", e.target.Arch)

	command := append(e.build.ToolchainInit, path) //nolint:gocritic // Init command receives the instance path.

	output, err := e.execute(ctx, command)
	if err != nil {
		return "", fmt.Errorf("initialize toolchain: %w: %s", err, firstLine(output, err))
	}

	e.toolchainPath = path

	return path, nil
}

// RunBuildStep executes the packaging build step, prefixed with the arch
// pin when cross-building. A non-zero exit aborts the pipeline with the
// step's combined output as the diagnostic.
func (e *Executor) RunBuildStep(ctx context.Context) error {
	ctx = logger.WithName(ctx, "build")

	if len(e.build.Command) == 0 {
		return errEmptyBuildCommand
	}

	if err := e.EnsureEmulator(ctx); err != nil {
		return err
	}

	toolchain, err := e.Toolchain(ctx)
	if err != nil {
		return err
	}

	extraEnv := []string{deploymentTargetEnvVar + "=" + e.build.MinMacOSVersion}
	if toolchain != "" {
		extraEnv = append(extraEnv, ToolchainEnvVar+"="+toolchain)
	}

	logger.InfoKV(ctx, "Running packaging build step",
		"command", e.build.Command, "emulated", e.target.NeedsEmulation())

	output, err := e.executeEnv(ctx, extraEnv, e.build.Command)
	if err != nil {
		return fmt.Errorf("build step failed: %w\n%s", err, output)
	}

	return nil
}

// execute runs a command with the arch prefix applied for cross builds.
func (e *Executor) execute(ctx context.Context, command []string) ([]byte, error) {
	return e.executeEnv(ctx, nil, command)
}

func (e *Executor) executeEnv(ctx context.Context, extraEnv, command []string) ([]byte, error) {
	if e.target.NeedsEmulation() {
		command = append([]string{archCommand, "-" + e.target.Arch}, command...)
	}

	return e.run(ctx, extraEnv, command[0], command[1:]...)
}

// firstLine trims diagnostics to something log-friendly.
func firstLine(output []byte, err error) string {
	if len(output) == 0 {
		return err.Error()
	}

	for i, b := range output {
		if b == '\n' {
			return string(output[:i])
		}
	}

	return string(output)
}
