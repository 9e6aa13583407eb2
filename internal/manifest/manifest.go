package manifest

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// SDKIncludePrefix is the repository directory holding the plugin SDK headers.
const SDKIncludePrefix = "Plugins/Include"

var (
	// ErrDuplicateTarget is returned when two tasks resolve to the same target.
	ErrDuplicateTarget = errors.New("manifest: duplicate target")

	// ErrInvalidEntry is returned for empty or absolute file entries.
	ErrInvalidEntry = errors.New("manifest: invalid entry")
)

// Task is a single file to fetch. Target is slash separated and relative to
// the destination root.
type Task struct {
	Branch string `yaml:"branch" json:"branch"`
	Source string `yaml:"source" json:"source"`
	Target string `yaml:"target" json:"target"`
}

// Manifest is the ordered list of tasks for one run.
type Manifest []Task

// File maps a framework file to the local directory it is stored under.
type File struct {
	Source string
	Dir    string
}

// Sources holds everything the manifest is built from.
type Sources struct {
	FrameworkVersion string
	FrameworkBranch  string
	SDKVersion       string
	Files            []File
	SDKFiles         []string
}

// frameworkBranch returns the branch framework files are fetched from.
// An explicit branch wins over the release tag derived from the version.
func (s Sources) frameworkBranch() string {
	if s.FrameworkBranch != "" {
		return s.FrameworkBranch
	}
	return ReleaseBranch(s.FrameworkVersion)
}

// ReleaseBranch returns the repository tag of an Orthanc release.
func ReleaseBranch(version string) string {
	return "Orthanc-" + version
}

// SDKDir returns the target directory of a plugin SDK release.
func SDKDir(version string) string {
	return "../Orthanc/Sdk-" + version
}

// Build constructs the manifest: framework files first, then SDK headers,
// each list in declaration order.
func Build(src Sources) (Manifest, error) {
	m := make(Manifest, 0, len(src.Files)+len(src.SDKFiles))

	branch := src.frameworkBranch()
	for _, f := range src.Files {
		if err := checkEntry(f.Source); err != nil {
			return nil, err
		}
		m = append(m, Task{
			Branch: branch,
			Source: f.Source,
			Target: path.Join(f.Dir, path.Base(f.Source)),
		})
	}

	for _, f := range src.SDKFiles {
		if err := checkEntry(f); err != nil {
			return nil, err
		}
		m = append(m, Task{
			Branch: ReleaseBranch(src.SDKVersion),
			Source: SDKIncludePrefix + "/" + f,
			Target: SDKDir(src.SDKVersion) + "/" + f,
		})
	}

	if err := m.checkUnique(); err != nil {
		return nil, err
	}
	return m, nil
}

// URL returns the raw-file URL of t under repository.
func URL(repository string, t Task) string {
	return strings.TrimRight(repository, "/") + "/" + t.Branch + "/" + t.Source
}

// Targets returns the target of every task, in manifest order.
func (m Manifest) Targets() []string {
	targets := make([]string, len(m))
	for i, t := range m {
		targets[i] = t.Target
	}
	return targets
}

func (m Manifest) checkUnique() error {
	seen := make(map[string]int, len(m))
	for i, t := range m {
		key := path.Clean(t.Target)
		if j, ok := seen[key]; ok {
			return fmt.Errorf("%w: %s (%s and %s)", ErrDuplicateTarget, t.Target, m[j].Source, t.Source)
		}
		seen[key] = i
	}
	return nil
}

func checkEntry(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidEntry)
	}
	if path.IsAbs(p) {
		return fmt.Errorf("%w: absolute path %s", ErrInvalidEntry, p)
	}
	return nil
}
