// Package platform resolves the packaging target architecture.
//
// It normalizes the differing architecture spellings found across vendors,
// validates the requested target against the fixed per-OS set, and decides
// whether the build step must run under an emulation layer. Host details
// are collected with gopsutil for diagnostics only.
package platform
