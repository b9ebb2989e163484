package manifest

import (
	"fmt"
	"path"
	"strings"

	"github.com/soapstonemc/soapstone/internal/platform"
)

// VersionDescriptor is the fully resolved, platform-filtered set of facts
// needed to download and later launch one version. Built once per install
// or launch and never mutated afterwards.
type VersionDescriptor struct {
	ID        string
	Type      string
	JavaMajor int
	MainClass string

	AssetIndex AssetIndexRef

	// Binary is the primary client jar. BinaryPath is relative to the
	// data directory, as are all paths below.
	Binary     DownloadInfo
	BinaryPath string
	NativesDir string

	// Libraries are the class-path artifacts, platform-filtered and
	// de-duplicated by coordinate, in declaration order.
	Libraries []LibraryArtifact

	// Natives are the platform classifier archives to extract.
	Natives []NativeArtifact

	// ClassPath is the ordered class-path entry list (library paths then
	// the primary binary), relative to the data directory.
	ClassPath []string

	// JVMArgs and GameArgs are the flattened token lists, rule-gated for
	// this platform, with launch placeholders still unsubstituted.
	JVMArgs  []string
	GameArgs []string
}

// LibraryArtifact is one resolved class-path download.
type LibraryArtifact struct {
	Name string
	Path string // relative to the libraries directory
	URL  string
	SHA1 string
	Size int64
}

// NativeArtifact is one platform-specific archive whose binary entries get
// extracted into the natives directory.
type NativeArtifact struct {
	Name    string
	URL     string
	SHA1    string
	Size    int64
	Exclude []string
}

// defaultJVMArgs covers legacy documents that predate declared jvm
// arguments.
var defaultJVMArgs = []string{
	"-Djava.library.path=${natives_directory}",
	"-cp", "${classpath}",
}

// Resolve materializes a version detail document for the given platform.
func Resolve(detail *VersionDetail, p platform.Platform) (*VersionDescriptor, error) {
	if detail.ID == "" {
		return nil, fmt.Errorf("version document has no id")
	}
	if detail.MainClass == "" {
		return nil, fmt.Errorf("version %s has no main class", detail.ID)
	}

	desc := &VersionDescriptor{
		ID:         detail.ID,
		Type:       detail.Type,
		JavaMajor:  detail.JavaVersion.MajorVersion,
		MainClass:  detail.MainClass,
		AssetIndex: detail.AssetIndex,
		Binary:     detail.Downloads.Client,
		BinaryPath: path.Join("versions", detail.ID, detail.ID+".jar"),
		NativesDir: path.Join("versions", detail.ID, "natives"),
	}
	if desc.JavaMajor == 0 {
		desc.JavaMajor = 8
	}
	if desc.AssetIndex.ID == "" {
		desc.AssetIndex.ID = detail.Assets
	}

	seen := make(map[string]bool)
	for _, lib := range detail.Libraries {
		if !Allowed(lib.Rules, p) {
			continue
		}

		if art := lib.Downloads.Artifact; art != nil && !seen[lib.Name] {
			seen[lib.Name] = true
			relPath := art.Path
			if relPath == "" {
				derived, err := MavenPath(lib.Name)
				if err != nil {
					return nil, err
				}
				relPath = derived
			}
			desc.Libraries = append(desc.Libraries, LibraryArtifact{
				Name: lib.Name,
				Path: relPath,
				URL:  art.URL,
				SHA1: art.SHA1,
				Size: art.Size,
			})
		}

		if native, err := resolveNative(lib, p); err != nil {
			return nil, err
		} else if native != nil {
			desc.Natives = append(desc.Natives, *native)
		}
	}

	for _, lib := range desc.Libraries {
		desc.ClassPath = append(desc.ClassPath, path.Join("libraries", lib.Path))
	}
	desc.ClassPath = append(desc.ClassPath, desc.BinaryPath)

	desc.JVMArgs = flattenArgs(detail.Arguments.JVM, p)
	desc.GameArgs = flattenArgs(detail.Arguments.Game, p)

	if len(desc.JVMArgs) == 0 {
		desc.JVMArgs = append(desc.JVMArgs, defaultJVMArgs...)
	}
	if len(desc.GameArgs) == 0 && detail.MinecraftArguments != "" {
		desc.GameArgs = strings.Fields(detail.MinecraftArguments)
	}

	return desc, nil
}

// resolveNative returns the platform classifier archive for a library, or
// nil when the library carries none for this platform.
func resolveNative(lib Library, p platform.Platform) (*NativeArtifact, error) {
	key, ok := lib.Natives[p.OS]
	if !ok {
		return nil, nil
	}

	bits := "64"
	if p.Arch == "x86" {
		bits = "32"
	}
	key = strings.ReplaceAll(key, "${arch}", bits)

	info, ok := lib.Downloads.Classifiers[key]
	if !ok {
		// Declared for this OS but no matching classifier published; the
		// document treats this as simply unavailable.
		return nil, nil
	}

	native := &NativeArtifact{
		Name: lib.Name,
		URL:  info.URL,
		SHA1: info.SHA1,
		Size: info.Size,
	}
	if lib.Extract != nil {
		native.Exclude = lib.Extract.Exclude
	}
	return native, nil
}

// flattenArgs evaluates each declared argument's rule set and appends the
// tokens of the gated-in ones, in order.
func flattenArgs(args []Argument, p platform.Platform) []string {
	var out []string
	for _, a := range args {
		if !Allowed(a.Rules, p) {
			continue
		}
		out = append(out, a.Tokens...)
	}
	return out
}
