package manifest

import (
	"testing"

	"github.com/soapstonemc/soapstone/internal/platform"
)

func windowsHost() platform.Platform {
	return platform.Platform{OS: "windows", Arch: "x64", Features: map[string]bool{}}
}

func TestAllowedEmptyListIncludes(t *testing.T) {
	if !Allowed(nil, windowsHost()) {
		t.Error("empty rule list must include")
	}
}

func TestAllowedRuleTable(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
		want  bool
	}{
		{
			name:  "allow other os excludes",
			rules: []Rule{{Action: "allow", OS: &OSRule{Name: "linux"}}},
			want:  false,
		},
		{
			name:  "disallow other os includes",
			rules: []Rule{{Action: "disallow", OS: &OSRule{Name: "linux"}}},
			want:  true,
		},
		{
			name:  "allow matching os includes",
			rules: []Rule{{Action: "allow", OS: &OSRule{Name: "windows"}}},
			want:  true,
		},
		{
			name:  "disallow matching os excludes",
			rules: []Rule{{Action: "disallow", OS: &OSRule{Name: "windows"}}},
			want:  false,
		},
		{
			name:  "bare allow includes",
			rules: []Rule{{Action: "allow"}},
			want:  true,
		},
		{
			name: "conjunction of allow and disallow",
			rules: []Rule{
				{Action: "allow"},
				{Action: "disallow", OS: &OSRule{Name: "osx"}},
			},
			want: true,
		},
		{
			name: "conjunction fails when any rule fails",
			rules: []Rule{
				{Action: "allow"},
				{Action: "disallow", OS: &OSRule{Name: "windows"}},
			},
			want: false,
		},
		{
			name:  "feature flag off excludes",
			rules: []Rule{{Action: "allow", Features: map[string]bool{"is_demo_user": true}}},
			want:  false,
		},
		{
			name:  "arch mismatch excludes",
			rules: []Rule{{Action: "allow", OS: &OSRule{Arch: "x86"}}},
			want:  false,
		},
		{
			name:  "unknown action fails closed",
			rules: []Rule{{Action: "maybe"}},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Allowed(tt.rules, windowsHost()); got != tt.want {
				t.Errorf("Allowed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAllowedOSVersionRegexp(t *testing.T) {
	host := platform.Platform{OS: "windows", Arch: "x64", OSVersion: "10.0", Features: map[string]bool{}}
	rules := []Rule{{Action: "allow", OS: &OSRule{Name: "windows", Version: `^10\.`}}}

	if !Allowed(rules, host) {
		t.Error("version 10.0 should match ^10\\.")
	}

	host.OSVersion = "6.1"
	if Allowed(rules, host) {
		t.Error("version 6.1 should not match ^10\\.")
	}
}

func TestAllowedFeatureMatch(t *testing.T) {
	host := windowsHost()
	host.Features["has_custom_resolution"] = true

	rules := []Rule{{Action: "allow", Features: map[string]bool{"has_custom_resolution": true}}}
	if !Allowed(rules, host) {
		t.Error("matching feature flag should include")
	}
}
