// Package platform maps the Go runtime's view of the host onto the
// identifiers used by the version manifests and the runtime-distribution
// endpoint. The two naming schemes disagree (manifests say "osx", the
// runtime endpoint says "mac"), so both live here and nowhere else.
package platform

import "runtime"

// Platform describes the host as seen by rule evaluation and artifact
// selection.
type Platform struct {
	// OS is the manifest-side name: "windows", "osx" or "linux".
	OS string
	// Arch is the manifest-side architecture: "x86", "x64" or "arm64".
	Arch string
	// OSVersion is the host OS release string, matched by versioned OS
	// rules. Empty when undetectable.
	OSVersion string
	// Features holds launcher feature flags consulted by argument rules
	// (demo user, custom resolution and similar). All off by default.
	Features map[string]bool
}

// Current returns the host platform.
func Current() Platform {
	return Platform{
		OS:       manifestOS(runtime.GOOS),
		Arch:     manifestArch(runtime.GOARCH),
		Features: map[string]bool{},
	}
}

func manifestOS(goos string) string {
	switch goos {
	case "darwin":
		return "osx"
	case "windows":
		return "windows"
	default:
		return "linux"
	}
}

func manifestArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x64"
	case "arm64":
		return "arm64"
	case "386":
		return "x86"
	default:
		return goarch
	}
}

// RuntimeOS returns the OS segment for the runtime-distribution endpoint.
func RuntimeOS() string {
	switch runtime.GOOS {
	case "darwin":
		return "mac"
	case "windows":
		return "windows"
	default:
		return "linux"
	}
}

// RuntimeArch returns the architecture segment for the runtime-distribution
// endpoint.
func RuntimeArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x64"
	case "arm64":
		return "aarch64"
	case "386":
		return "x86"
	default:
		return runtime.GOARCH
	}
}

// NativesClassifier returns the library classifier key for the host OS
// ("natives-windows", "natives-osx", "natives-linux").
func NativesClassifier() string {
	return "natives-" + manifestOS(runtime.GOOS)
}
