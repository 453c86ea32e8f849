package secgate

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
)

// PathValidator resolves candidate paths to their canonical form and
// confirms they stay inside a base directory. Resolution follows the real
// path, not the lexical one, so both `../` sequences and symlink escapes
// are rejected.
type PathValidator struct {
	// AllowAbsolute permits absolute candidates. They are still required to
	// resolve inside the base directory.
	AllowAbsolute bool
}

// NewPathValidator returns a validator that rejects absolute inputs.
func NewPathValidator() *PathValidator {
	return &PathValidator{}
}

// Validate resolves candidate against baseDir and returns the canonical
// absolute path. The returned path is guaranteed to lie within baseDir.
// No filesystem mutation happens here; failures return a
// *PathValidationError.
func (v *PathValidator) Validate(candidate, baseDir string) (string, error) {
	if candidate == "" {
		return "", &PathValidationError{Path: candidate, Base: baseDir, Reason: "empty path"}
	}

	if filepath.IsAbs(candidate) && !v.AllowAbsolute {
		return "", &PathValidationError{Path: candidate, Base: baseDir, Reason: "absolute paths are not permitted"}
	}

	realBase, err := filepath.EvalSymlinks(baseDir)
	if err != nil {
		return "", &PathValidationError{Path: candidate, Base: baseDir, Reason: "base directory is not resolvable: " + err.Error()}
	}

	abs := candidate
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(realBase, candidate)
	}
	abs = filepath.Clean(abs)

	real, err := resolveRealPath(abs)
	if err != nil {
		return "", &PathValidationError{Path: candidate, Base: baseDir, Reason: "cannot resolve real path: " + err.Error()}
	}

	if real != realBase && !strings.HasPrefix(real, realBase+string(filepath.Separator)) {
		return "", &PathValidationError{Path: candidate, Base: baseDir, Reason: "resolved path escapes base directory"}
	}

	return real, nil
}

// resolveRealPath canonicalizes a path that may not fully exist yet:
// symlinks are resolved for the deepest existing ancestor, and the
// not-yet-created remainder is re-appended lexically.
func resolveRealPath(abs string) (string, error) {
	existing := abs
	var trailer []string
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			for i := len(trailer) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, trailer[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}

		parent := filepath.Dir(existing)
		if parent == existing {
			return "", err
		}
		trailer = append(trailer, filepath.Base(existing))
		existing = parent
	}
}
