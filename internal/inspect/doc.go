// Package inspect introspects compiled executables to report their CPU
// architecture. It understands Mach-O (thin and universal) and PE formats
// via the standard library debug packages.
//
// Results are advisory: comparing against an expected architecture yields a
// tri-state Verdict and an unparseable file is "unknown", never an error
// that stops a build.
package inspect
