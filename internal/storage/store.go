// Package storage persists test cases to the directory-per-test layout.
//
// A committed test case lives under <root>/tests/<name>/ with its metadata
// file, ordered action log, and screenshots folder. Aborted sessions keep
// their partial log under <root>/aborted/<name>/ with the incomplete flag
// set; they never appear in the normal listing.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"github.com/charlievieth/fastwalk"
	"github.com/google/uuid"
	"github.com/replaykit/recorderd/internal/infrastructure/logging"
	"github.com/replaykit/recorderd/internal/shared/paths"
	"github.com/replaykit/recorderd/internal/shared/types"
	"go.uber.org/zap"
)

var (
	// ErrNotFound indicates no test case with the given name exists.
	ErrNotFound = errors.New("test case not found")

	// ErrExists indicates a test case with the given name already exists.
	ErrExists = errors.New("test case already exists")
)

// Store is the test case repository rooted at one directory.
type Store struct {
	root string
	log  *logging.Logger
}

// New creates a store, preparing its directory skeleton.
func New(root string, log *logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Nop()
	}
	for _, dir := range []string{
		filepath.Join(root, paths.Tests),
		filepath.Join(root, paths.Aborted),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to prepare store at %s: %w", root, err)
		}
	}
	return &Store{root: root, log: log}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Exists reports whether a committed test case with the name exists.
func (s *Store) Exists(name string) bool {
	if paths.CheckName(name) != nil {
		return false
	}
	_, err := os.Stat(paths.TestDir(s.root, name))
	return err == nil
}

// Recording is an in-progress test case directory. Screenshots are written
// into it while recording runs; Commit or Discard finalizes it.
type Recording struct {
	store *Store
	tc    types.TestCase
	dir   string
}

// Begin allocates the directory for a new recording. Duplicate names fail
// with ErrExists: a test case name is unique per run.
func (s *Store) Begin(tc types.TestCase) (*Recording, error) {
	if err := paths.CheckName(tc.Name); err != nil {
		return nil, err
	}
	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}

	dir := paths.TestDir(s.root, tc.Name)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrExists, tc.Name)
		}
		return nil, fmt.Errorf("failed to create test directory: %w", err)
	}
	if err := os.Mkdir(paths.Screenshots(dir), 0o755); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create screenshots folder: %w", err)
	}
	return &Recording{store: s, tc: tc, dir: dir}, nil
}

// Dir returns the recording's directory.
func (r *Recording) Dir() string { return r.dir }

// ScreenshotPath returns where the capture for a sequence index belongs.
func (r *Recording) ScreenshotPath(seq int) string {
	return paths.Screenshot(r.dir, seq)
}

// Commit writes the metadata and ordered action log, making the recording
// a valid test case.
func (r *Recording) Commit(records []types.ActionRecord) error {
	return writeCase(r.dir, r.tc, records)
}

// Abandon removes the recording directory outright. Used when session
// setup fails after the directory was allocated but before any recording
// happened.
func (r *Recording) Abandon() error {
	return os.RemoveAll(r.dir)
}

// Discard finalizes an aborted recording: the partial log is persisted with
// the incomplete flag under the aborted area, never as a valid test case.
func (r *Recording) Discard(records []types.ActionRecord) error {
	r.tc.Incomplete = true
	if err := writeCase(r.dir, r.tc, records); err != nil {
		return err
	}

	target := paths.AbortedDir(r.store.root, r.tc.Name)
	if _, err := os.Stat(target); err == nil {
		// A previous abort left the same name behind; keep both.
		target = fmt.Sprintf("%s-%s", target, time.Now().Format("20060102-150405"))
	}
	if err := os.Rename(r.dir, target); err != nil {
		return fmt.Errorf("failed to move aborted recording: %w", err)
	}
	r.store.log.Info("aborted recording parked",
		zap.String("test", r.tc.Name), zap.String("dir", target))
	return nil
}

func writeCase(dir string, tc types.TestCase, records []types.ActionRecord) error {
	if records == nil {
		records = []types.ActionRecord{}
	}

	meta, err := sonic.MarshalIndent(tc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(paths.Metadata(dir), meta, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	log, err := sonic.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal action log: %w", err)
	}
	if err := os.WriteFile(paths.Actions(dir), log, 0o644); err != nil {
		return fmt.Errorf("failed to write action log: %w", err)
	}
	return nil
}

// Load reads a committed test case and its action log.
func (s *Store) Load(name string) (types.TestCase, []types.ActionRecord, error) {
	var tc types.TestCase
	if err := paths.CheckName(name); err != nil {
		return tc, nil, err
	}

	dir := paths.TestDir(s.root, name)
	meta, err := os.ReadFile(paths.Metadata(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return tc, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return tc, nil, err
	}
	if err := sonic.Unmarshal(meta, &tc); err != nil {
		return tc, nil, fmt.Errorf("corrupt metadata for %s: %w", name, err)
	}

	data, err := os.ReadFile(paths.Actions(dir))
	if err != nil {
		return tc, nil, fmt.Errorf("failed to read action log for %s: %w", name, err)
	}
	var records []types.ActionRecord
	if err := sonic.Unmarshal(data, &records); err != nil {
		return tc, nil, fmt.Errorf("corrupt action log for %s: %w", name, err)
	}
	return tc, records, nil
}

// List returns the metadata of all committed test cases, sorted by name.
func (s *Store) List() ([]types.TestCase, error) {
	return s.Find("*")
}

// Find returns committed test cases whose names match the glob pattern.
func (s *Store) Find(pattern string) ([]types.TestCase, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}

	testsRoot := filepath.Join(s.root, paths.Tests)

	var mu sync.Mutex
	var names []string

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, testsRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entry, skip
		}
		if path == testsRoot || !d.IsDir() {
			return nil
		}
		name := d.Name()
		if ok, _ := doublestar.Match(pattern, name); ok {
			mu.Lock()
			names = append(names, name)
			mu.Unlock()
		}
		return fs.SkipDir // test dirs only, never descend
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan store: %w", err)
	}
	sort.Strings(names)

	cases := make([]types.TestCase, 0, len(names))
	for _, name := range names {
		tc, _, err := s.Load(name)
		if err != nil {
			s.log.Warn("skipping unreadable test case", zap.String("test", name), zap.Error(err))
			continue
		}
		cases = append(cases, tc)
	}
	return cases, nil
}

// Delete removes a committed test case and all its artifacts.
func (s *Store) Delete(name string) error {
	if err := paths.CheckName(name); err != nil {
		return err
	}
	dir := paths.TestDir(s.root, name)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return err
	}
	return os.RemoveAll(dir)
}
