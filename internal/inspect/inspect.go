package inspect

import (
	"debug/macho"
	"debug/pe"
	"fmt"
	"strings"

	"github.com/oshokin/clip2gif-packager/internal/platform"
)

// Verdict is the outcome of comparing an executable against an expected
// architecture. Introspection of third-party binaries is heuristic, so the
// zero value is Unknown and callers must never treat it as a failure.
type Verdict int

const (
	// VerdictUnknown means the file could not be parsed as a known executable format.
	VerdictUnknown Verdict = iota
	// VerdictMatch means the executable contains code for the expected architecture.
	VerdictMatch
	// VerdictMismatch means it does not.
	VerdictMismatch
)

// String returns a short operator-facing label.
func (v Verdict) String() string {
	switch v {
	case VerdictMatch:
		return "match"
	case VerdictMismatch:
		return "mismatch"
	case VerdictUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Verify compares the executable at path against the expected architecture.
func Verify(path, expectedArch string) Verdict {
	archs, err := Architectures(path)
	if err != nil || len(archs) == 0 {
		return VerdictUnknown
	}

	for _, arch := range archs {
		if arch == expectedArch {
			return VerdictMatch
		}
	}

	return VerdictMismatch
}

// Describe renders the architectures of an executable for reports,
// e.g. "x86_64", "universal (x86_64, arm64)" or "unknown".
func Describe(path string) string {
	archs, err := Architectures(path)
	if err != nil || len(archs) == 0 {
		return "unknown"
	}

	if len(archs) == 1 {
		return archs[0]
	}

	return fmt.Sprintf("universal (%s)", strings.Join(archs, ", "))
}

// Architectures reports the CPU architectures an executable was built for.
// Mach-O thin and fat (universal) files and PE files are recognized.
func Architectures(path string) ([]string, error) {
	if fat, err := macho.OpenFat(path); err == nil {
		defer func() {
			_ = fat.Close()
		}()

		archs := make([]string, 0, len(fat.Arches))
		for _, arch := range fat.Arches {
			archs = append(archs, machoCPUName(arch.Cpu))
		}

		return archs, nil
	}

	if thin, err := macho.Open(path); err == nil {
		defer func() {
			_ = thin.Close()
		}()

		return []string{machoCPUName(thin.Cpu)}, nil
	}

	if img, err := pe.Open(path); err == nil {
		defer func() {
			_ = img.Close()
		}()

		return []string{peMachineName(img.FileHeader.Machine)}, nil
	}

	return nil, fmt.Errorf("%s: not a recognized executable format", path)
}

func machoCPUName(cpu macho.Cpu) string {
	switch cpu {
	case macho.CpuAmd64:
		return platform.ArchX8664
	case macho.CpuArm64:
		return platform.ArchARM64
	case macho.Cpu386:
		return "i386"
	default:
		return fmt.Sprintf("cpu(%#x)", uint32(cpu))
	}
}

func peMachineName(machine uint16) string {
	switch machine {
	case pe.IMAGE_FILE_MACHINE_AMD64:
		return platform.ArchX8664
	case pe.IMAGE_FILE_MACHINE_ARM64:
		return platform.ArchARM64
	case pe.IMAGE_FILE_MACHINE_I386:
		return "i386"
	default:
		return fmt.Sprintf("machine(%#x)", machine)
	}
}
