// Package acquire obtains the helper binaries (ffmpeg, ffprobe) bundled
// with the packaged application.
//
// Each binary is resolved through an ordered fallback chain: an
// operator-populated pre-staged directory, a copy of a same-named tool from
// the host's search path (native builds only), then a list of remote archive
// URLs. The first success wins; exhausting the chain records the binary as
// unresolved, which is a warning rather than a failure — the packaged app
// falls back to whatever the end user has installed.
//
// After resolution the binary's architecture is introspected and compared
// against the target. The comparison is tri-state and advisory.
package acquire
