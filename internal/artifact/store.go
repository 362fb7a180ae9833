// Package artifact persists generated images to a flat directory and expires
// them by age. The directory listing is the only record of what exists; there
// is no manifest.
package artifact

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"imagegen/internal/clock"
)

const (
	// DefaultDirectory is used when NewStore is given an empty directory.
	DefaultDirectory = "generated_images"

	// DefaultRetention is how long an artifact survives after it is written.
	DefaultRetention = time.Hour

	// LabelPrefixLen is the number of label characters considered for a file name.
	LabelPrefixLen = 30

	timestampLayout = "20060102_150405"
	savedExt        = ".png"
)

// imageExts are the extensions List recognises.
var imageExts = []string{".png", ".jpg", ".jpeg"}

// Info describes a stored artifact.
type Info struct {
	Name      string
	Path      string
	SizeBytes int64
	CreatedAt time.Time
}

// Store saves, lists, and expires image artifacts in one directory.
//
// Artifacts are written once, so a file's modification time is its creation
// time. Two saves in the same second with the same label prefix produce the
// same name; the second overwrites the first.
type Store struct {
	dir       string
	retention time.Duration
	clock     clock.Clock
	remove    func(string) error
}

// NewStore creates the directory if needed and runs one eviction sweep.
// A sweep failure is logged; only a directory that cannot be created is fatal.
func NewStore(dir string, retention time.Duration, clk clock.Clock) (*Store, error) {
	if dir == "" {
		dir = DefaultDirectory
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if clk == nil {
		clk = clock.System{}
	}

	s := &Store{dir: dir, retention: retention, clock: clk, remove: os.Remove}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StorageError{Op: "mkdir", Path: dir, Err: err}
	}

	if removed, err := s.EvictExpired(); err != nil {
		slog.Warn("Initial artifact sweep failed", "directory", dir, "error", err)
	} else if removed > 0 {
		slog.Info("Removed expired artifacts", "directory", dir, "removed", removed)
	}

	return s, nil
}

// Dir returns the artifact directory.
func (s *Store) Dir() string {
	return s.dir
}

// Retention returns how long artifacts are kept.
func (s *Store) Retention() time.Duration {
	return s.retention
}

// Save writes content under a name derived from the current time and label
// and returns the full path. An existing file with the same name is replaced.
func (s *Store) Save(content []byte, label string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", &StorageError{Op: "mkdir", Path: s.dir, Err: err}
	}

	name := FileName(s.clock.Now(), label)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", &StorageError{Op: "write", Path: path, Err: err}
	}

	return path, nil
}

// List returns the names of image files directly inside the directory, in
// lexical order. A missing directory yields an empty list.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, &StorageError{Op: "list", Path: s.dir, Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !isImageName(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Artifacts returns metadata for every listed artifact, newest name first.
// Files that vanish between listing and stat are skipped.
func (s *Store) Artifacts() ([]Info, error) {
	names, err := s.List()
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(names))
	for _, name := range names {
		info, err := s.Stat(name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name > infos[j].Name })
	return infos, nil
}

// Stat returns metadata for one artifact.
func (s *Store) Stat(name string) (Info, error) {
	path, err := s.Path(name)
	if err != nil {
		return Info{}, err
	}

	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, ErrNotFound
		}
		return Info{}, &StorageError{Op: "stat", Path: path, Err: err}
	}
	if !fi.Mode().IsRegular() {
		return Info{}, ErrNotFound
	}

	return Info{
		Name:      name,
		Path:      path,
		SizeBytes: fi.Size(),
		CreatedAt: fi.ModTime(),
	}, nil
}

// Open opens an artifact for reading. The caller closes the file.
func (s *Store) Open(name string) (*os.File, Info, error) {
	info, err := s.Stat(name)
	if err != nil {
		return nil, Info{}, err
	}

	f, err := os.Open(info.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Info{}, ErrNotFound
		}
		return nil, Info{}, &StorageError{Op: "open", Path: info.Path, Err: err}
	}
	return f, info, nil
}

// Path resolves name inside the directory, rejecting anything that is not a
// bare image file name.
func (s *Store) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) ||
		name == "." || name == ".." || !isImageName(name) {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, name), nil
}

// EvictExpired removes artifacts older than the retention period and reports
// how many were removed. Failures on individual files are logged and skipped.
// A missing directory is not an error.
func (s *Store) EvictExpired() (int, error) {
	names, err := s.List()
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	removed := 0
	for _, name := range names {
		path := filepath.Join(s.dir, name)

		fi, err := os.Stat(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("Skipping artifact during sweep", "path", path, "error", err)
			}
			continue
		}

		if now.Sub(fi.ModTime()) <= s.retention {
			continue
		}

		if err := s.remove(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("Failed to remove expired artifact", "path", path, "error", err)
			}
			continue
		}
		removed++
		slog.Debug("Removed expired artifact", "path", path, "age", now.Sub(fi.ModTime()))
	}

	return removed, nil
}

// FileName builds the artifact name for a save at t with the given label:
// YYYYMMDD_HHMMSS_<sanitized label>.png
func FileName(t time.Time, label string) string {
	return t.Format(timestampLayout) + "_" + SanitizeLabel(label) + savedExt
}

// SanitizeLabel keeps letters, digits, spaces, '-' and '_' from the first
// LabelPrefixLen characters of label and trims surrounding whitespace.
func SanitizeLabel(label string) string {
	var b strings.Builder
	n := 0
	for _, r := range label {
		if n == LabelPrefixLen {
			break
		}
		n++
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func isImageName(name string) bool {
	for _, ext := range imageExts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
