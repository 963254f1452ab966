package storage

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Iron-Ham/planningpoker/internal/errors"
	"github.com/Iron-Ham/planningpoker/internal/poker"
)

const teamFileExt = ".json"

// FileStore keeps one JSON snapshot per team in a directory. The directory
// is created lazily on first write.
type FileStore struct {
	dir   string
	clock poker.Clock
	mu    sync.Mutex
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string, opts ...Option) *FileStore {
	return &FileStore{dir: dir, clock: ApplyOptions(opts...)}
}

// Dir returns the directory holding the snapshots.
func (s *FileStore) Dir() string { return s.dir }

// pathFor maps a team name to its snapshot file. Names are folded and hex
// encoded so any team name is a safe, case-insensitive file name.
func (s *FileStore) pathFor(name string) string {
	return filepath.Join(s.dir, hex.EncodeToString([]byte(poker.NameKey(name)))+teamFileExt)
}

// LoadTeam reads and decodes the snapshot for name.
func (s *FileStore) LoadTeam(_ context.Context, name string) (*poker.Team, error) {
	data, err := os.ReadFile(s.pathFor(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "storage: read team %s", name)
	}
	team, err := poker.UnmarshalTeam(data, poker.WithClock(s.clock))
	if err != nil {
		return nil, errors.Wrap(err, "storage")
	}
	return team, nil
}

// SaveTeam atomically replaces the snapshot for team.
func (s *FileStore) SaveTeam(_ context.Context, team *poker.Team) error {
	data, err := json.Marshal(team)
	if err != nil {
		return errors.Wrapf(err, "storage: encode team %s", team.Name())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrap(err, "storage: create directory")
	}
	return atomicWriteFile(s.pathFor(team.Name()), data)
}

// DeleteTeam removes the snapshot for name.
func (s *FileStore) DeleteTeam(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.pathFor(name)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "storage: delete team %s", name)
	}
	return nil
}

// DeleteAll removes every snapshot in the directory.
func (s *FileStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths, err := s.snapshotPaths()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "storage: delete %s", filepath.Base(p))
		}
	}
	return nil
}

// TeamNames returns the display names of all stored teams in sorted order.
// Unreadable snapshots are skipped.
func (s *FileStore) TeamNames(_ context.Context) ([]string, error) {
	paths, err := s.snapshotPaths()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var header struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(data, &header); err != nil || header.Name == "" {
			continue
		}
		names = append(names, header.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) snapshotPaths() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "storage: list directory")
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), teamFileExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, e.Name()))
	}
	return paths, nil
}

// atomicWriteFile writes data to a temporary file in the same directory
// and renames it over path, so readers never see a partial snapshot.
func atomicWriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "storage: create temp file")
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "storage: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "storage: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "storage: close temp file")
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return errors.Wrap(err, "storage: set permissions")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "storage: rename temp file")
	}

	success = true
	return nil
}
