package manifest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// VersionDetail is the parsed per-version detail document.
type VersionDetail struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	MainClass   string `json:"mainClass"`
	JavaVersion struct {
		Component    string `json:"component"`
		MajorVersion int    `json:"majorVersion"`
	} `json:"javaVersion"`
	AssetIndex AssetIndexRef `json:"assetIndex"`
	Assets     string        `json:"assets"`
	Downloads  struct {
		Client DownloadInfo `json:"client"`
	} `json:"downloads"`
	Libraries []Library `json:"libraries"`
	Arguments struct {
		Game []Argument `json:"game"`
		JVM  []Argument `json:"jvm"`
	} `json:"arguments"`
	// MinecraftArguments is the legacy pre-rules game argument string.
	MinecraftArguments string `json:"minecraftArguments"`
}

// AssetIndexRef points at the asset-index document for a version.
type AssetIndexRef struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	SHA1      string `json:"sha1"`
	Size      int64  `json:"size"`
	TotalSize int64  `json:"totalSize"`
}

// DownloadInfo is one downloadable artifact descriptor.
type DownloadInfo struct {
	Path string `json:"path"`
	URL  string `json:"url"`
	SHA1 string `json:"sha1"`
	Size int64  `json:"size"`
}

// Library declares one class-path or native-library dependency.
type Library struct {
	Name      string `json:"name"`
	Downloads struct {
		Artifact    *DownloadInfo           `json:"artifact"`
		Classifiers map[string]DownloadInfo `json:"classifiers"`
	} `json:"downloads"`
	// Natives maps an OS name to its classifier key (e.g. "natives-linux").
	Natives map[string]string `json:"natives"`
	Rules   []Rule            `json:"rules"`
	Extract *struct {
		Exclude []string `json:"exclude"`
	} `json:"extract"`
}

// MavenPath derives the repository-relative path for a "group:artifact:
// version" coordinate, used when the document omits an explicit path.
func MavenPath(name string) (string, error) {
	parts := strings.Split(name, ":")
	if len(parts) < 3 {
		return "", fmt.Errorf("invalid library coordinate %q", name)
	}
	group, artifact, version := parts[0], parts[1], parts[2]
	file := artifact + "-" + version
	if len(parts) > 3 {
		file += "-" + parts[3]
	}
	return strings.ReplaceAll(group, ".", "/") + "/" + artifact + "/" + version + "/" + file + ".jar", nil
}

// Argument is one declared argument in normalized form: a rule list gating
// an ordered token sequence. The wire shape is either a bare string or an
// object with rules and a string-or-array value; both collapse to this at
// parse time.
type Argument struct {
	Rules  []Rule
	Tokens []string
}

// UnmarshalJSON resolves the two wire shapes of a declared argument.
func (a *Argument) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		a.Rules = nil
		a.Tokens = []string{s}
		return nil
	}

	var obj struct {
		Rules []Rule          `json:"rules"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("argument is neither string nor rule object: %w", err)
	}

	a.Rules = obj.Rules

	var single string
	if err := json.Unmarshal(obj.Value, &single); err == nil {
		a.Tokens = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(obj.Value, &many); err != nil {
		return fmt.Errorf("argument value is neither string nor array: %w", err)
	}
	a.Tokens = many
	return nil
}

// AssetIndex is the parsed asset-index document.
type AssetIndex struct {
	Objects map[string]AssetObject `json:"objects"`
}

// AssetObject is one content-addressed asset entry.
type AssetObject struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}
