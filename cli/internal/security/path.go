package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePathWithinBoundary ensures that targetPath is within or equal to
// boundaryPath once both are made absolute.
//
//	boundary := "/srv/agents"
//	target := "/srv/agents/chains/research.yaml"  // valid
//	target := "/srv/agents/../../etc/passwd"      // rejected
func ValidatePathWithinBoundary(boundaryPath, targetPath string) error {
	absBoundary, err := filepath.Abs(boundaryPath)
	if err != nil {
		return fmt.Errorf("failed to resolve boundary path %q: %w", boundaryPath, err)
	}

	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return fmt.Errorf("failed to resolve target path %q: %w", targetPath, err)
	}

	rel, err := filepath.Rel(absBoundary, absTarget)
	if err != nil {
		return fmt.Errorf("invalid path relationship between %q and %q: %w", absBoundary, absTarget, err)
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return fmt.Errorf("path traversal detected: %q escapes boundary %q", targetPath, boundaryPath)
	}

	return nil
}

// ValidatePathsWithinBoundary validates multiple target paths against a single boundary.
// Returns the first validation error encountered.
func ValidatePathsWithinBoundary(boundaryPath string, targetPaths ...string) error {
	for _, target := range targetPaths {
		if err := ValidatePathWithinBoundary(boundaryPath, target); err != nil {
			return err
		}
	}
	return nil
}

// ResolveWithin joins a relative path onto boundaryPath and checks that the
// result stays inside it. Absolute paths are checked as given.
func ResolveWithin(boundaryPath, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(boundaryPath, path)
	}
	if err := ValidatePathWithinBoundary(boundaryPath, path); err != nil {
		return "", err
	}
	return filepath.Abs(path)
}
