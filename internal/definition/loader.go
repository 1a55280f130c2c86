package definition

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// Definition file names recognized by the loader.
const (
	DefinitionFileName    = "TOOL.yaml"
	DefinitionFileNameAlt = "TOOL.yml"
)

// templatesDirName marks subtrees holding definition templates, which
// are scaffolding and never mounted.
const templatesDirName = "templates"

// SourceUnreadableError is returned when the definition source
// directory itself cannot be read. This aborts startup.
type SourceUnreadableError struct {
	Dir string `json:"dir"`
	Err error  `json:"-"`
}

// Error returns the error message for the SourceUnreadableError
func (e *SourceUnreadableError) Error() string {
	return fmt.Sprintf("definition source unreadable: %s: %v", e.Dir, e.Err)
}

// Unwrap returns the underlying filesystem error
func (e *SourceUnreadableError) Unwrap() error {
	return e.Err
}

// NewSourceUnreadableError creates a new SourceUnreadableError
func NewSourceUnreadableError(dir string, err error) *SourceUnreadableError {
	return &SourceUnreadableError{Dir: dir, Err: err}
}

// Interface guard for SourceUnreadableError
// This ensures that SourceUnreadableError implements the error interface.
var _ error = &SourceUnreadableError{}

var validate = validator.New()

// Load walks the definition source directory and parses every
// discovered definition file, in lexical path order so registration
// output is reproducible across runs. Each file yields exactly one
// Result: a RawDefinition or a per-file MountingError. Only an
// unreadable source directory is fatal.
func Load(dir string) ([]Result, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, NewSourceUnreadableError(dir, err)
	}

	paths, err := discoverDefinitionPaths(dir)
	if err != nil {
		return nil, NewSourceUnreadableError(dir, err)
	}

	results := make([]Result, 0, len(paths))
	for i, path := range paths {
		raw, mountErr := parseDefinitionFile(path)
		if mountErr != nil {
			zap.L().Warn("Skipping unparseable tool definition",
				zap.String("path", path),
				zap.String("reason", string(mountErr.Reason)),
				zap.String("detail", mountErr.Detail))
			results = append(results, Result{Err: mountErr})
			continue
		}
		raw.Order = i
		results = append(results, Result{Raw: raw})
	}

	return results, nil
}

// discoverDefinitionPaths returns all definition file paths under dir
// in lexical order, skipping templates subtrees.
func discoverDefinitionPaths(dir string) ([]string, error) {
	var paths []string

	// Note: filepath.WalkDir visits entries in lexical order, which is
	// what makes loader enumeration deterministic.
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if d.Name() == templatesDirName {
				return fs.SkipDir
			}
			return nil
		}

		if d.Name() == DefinitionFileName || d.Name() == DefinitionFileNameAlt {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(paths)
	return paths, nil
}

// parseDefinitionFile reads and parses one definition file into a
// RawDefinition, performing the base shape validation that does not
// depend on the definition's kind.
func parseDefinitionFile(path string) (*RawDefinition, *MountingError) {
	// #nosec G304 -- path comes from definition discovery, not direct user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMountingError("", path, ReasonSchemaInvalid,
			fmt.Sprintf("failed to read definition file: %v", err))
	}

	if strings.TrimSpace(string(data)) == "" {
		return nil, NewMountingError("", path, ReasonSchemaInvalid, "definition file is empty")
	}

	var raw RawDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, NewMountingError("", path, ReasonSchemaInvalid,
			fmt.Sprintf("failed to parse definition file: %v", err))
	}

	raw.Name = strings.TrimSpace(raw.Name)
	raw.Kind = strings.ToLower(strings.TrimSpace(raw.Kind))
	raw.SourcePath = path

	if err := validate.Struct(&raw); err != nil {
		return nil, NewMountingError(raw.Name, path, ReasonSchemaInvalid,
			fmt.Sprintf("definition validation failed: %v", err))
	}

	// A version is optional, but when declared it must be semver so
	// operators can order releases of the same tool.
	if raw.Version != "" && !semver.IsValid("v"+strings.TrimPrefix(raw.Version, "v")) {
		return nil, NewMountingError(raw.Name, path, ReasonSchemaInvalid,
			fmt.Sprintf("version %q is not valid semver", raw.Version))
	}

	return &raw, nil
}
