package manifest

import (
	"regexp"

	"github.com/soapstonemc/soapstone/internal/platform"
)

// Rule gates inclusion of a library or argument token on the current
// platform and feature-flag state.
type Rule struct {
	Action   string          `json:"action"` // "allow" or "disallow"
	OS       *OSRule         `json:"os"`
	Features map[string]bool `json:"features"`
}

// OSRule is the optional OS predicate of a rule. Absent fields match
// anything.
type OSRule struct {
	Name    string `json:"name"`
	Version string `json:"version"` // regular expression over the OS release
	Arch    string `json:"arch"`
}

// Allowed evaluates a rule list against the platform. An empty list allows
// unconditionally. Otherwise every rule must be individually satisfied: an
// allow rule is satisfied when its predicate matches, a disallow rule when
// its predicate does not.
func Allowed(rules []Rule, p platform.Platform) bool {
	for _, r := range rules {
		matches := r.matches(p)
		switch r.Action {
		case "allow":
			if !matches {
				return false
			}
		case "disallow":
			if matches {
				return false
			}
		default:
			// Unknown actions fail closed.
			return false
		}
	}
	return true
}

// matches reports whether the rule's predicates hold for the platform. A
// rule with no predicates matches unconditionally.
func (r Rule) matches(p platform.Platform) bool {
	if r.OS != nil {
		if r.OS.Name != "" && r.OS.Name != p.OS {
			return false
		}
		if r.OS.Arch != "" && r.OS.Arch != p.Arch {
			return false
		}
		if r.OS.Version != "" {
			re, err := regexp.Compile(r.OS.Version)
			if err != nil || !re.MatchString(p.OSVersion) {
				return false
			}
		}
	}
	for name, want := range r.Features {
		if p.Features[name] != want {
			return false
		}
	}
	return true
}
