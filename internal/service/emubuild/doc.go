// Package emubuild runs the packaging build step, pinned to the target CPU
// architecture when it differs from the host's.
//
// On Apple Silicon hosts cross-building for x86_64, the executor verifies
// Rosetta 2 (installing it when missing, which is the one privileged and
// fatal-on-failure operation in the pipeline), maintains a lazily-created
// arch-pinned toolchain instance, and exports the macOS deployment floor so
// produced artifacts stay runnable on the oldest supported OS version.
package emubuild
