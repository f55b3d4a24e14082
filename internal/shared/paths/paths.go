// Package paths provides the on-disk layout of the test case store.
//
// Every test case occupies one directory named after the test, holding a
// metadata file, the ordered action log, and a screenshots subfolder whose
// images are named by sequence index. Aborted sessions land in a separate
// area so they never show up as valid test cases.
package paths

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Store subdirectories
const (
	// Tests contains committed test cases, one directory per test.
	Tests = "tests"

	// Aborted contains partial logs persisted from aborted sessions.
	Aborted = "aborted"
)

// Well-known file names inside a test case directory
const (
	MetadataFile   = "metadata.json"
	ActionsFile    = "actions.json"
	ScreenshotsDir = "screenshots"
)

// ErrUnsafeName rejects test names that would escape the store root.
var ErrUnsafeName = errors.New("test name contains path separators or traversal")

// TestDir returns the directory of a committed test case.
func TestDir(root, name string) string {
	return filepath.Join(root, Tests, name)
}

// AbortedDir returns the directory an aborted session's partial log lands in.
func AbortedDir(root, name string) string {
	return filepath.Join(root, Aborted, name)
}

// Metadata returns the metadata file path inside a test directory.
func Metadata(dir string) string {
	return filepath.Join(dir, MetadataFile)
}

// Actions returns the action log file path inside a test directory.
func Actions(dir string) string {
	return filepath.Join(dir, ActionsFile)
}

// Screenshots returns the screenshot folder inside a test directory.
func Screenshots(dir string) string {
	return filepath.Join(dir, ScreenshotsDir)
}

// Screenshot returns the image path for a given sequence index.
func Screenshot(dir string, seq int) string {
	return filepath.Join(dir, ScreenshotsDir, ScreenshotName(seq))
}

// ScreenshotName returns the image file name for a sequence index.
// Zero-padded so directory listings sort in action order.
func ScreenshotName(seq int) string {
	return fmt.Sprintf("%04d.png", seq)
}

// CheckName validates that a test name is safe to use as a directory name.
func CheckName(name string) error {
	if name == "" {
		return ErrUnsafeName
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." ||
		strings.Contains(name, "..") {
		return ErrUnsafeName
	}
	return nil
}
