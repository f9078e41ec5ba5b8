// Package distribute turns an assembled package directory into the final
// deliverable: a compressed disk image on macOS (falling back to the bare
// bundle when hdiutil is unavailable) or the distribution directory itself
// on Windows. It also reports the architecture of every shipped binary.
package distribute
