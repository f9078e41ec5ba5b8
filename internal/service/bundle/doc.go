// Package bundle assembles the distributable package directory for a
// target platform: a minimal .app bundle on macOS or a flat distribution
// folder on Windows. The compiled application executable and the acquired
// ffmpeg helper binaries are laid out at the fixed paths the application
// searches at runtime, and an identity manifest (Info.plist or YAML) is
// rendered alongside them.
package bundle
