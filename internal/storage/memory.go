package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/Iron-Ham/planningpoker/internal/errors"
	"github.com/Iron-Ham/planningpoker/internal/poker"
)

// Memory keeps team snapshots in a map. It is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	teams map[string][]byte
	names map[string]string
	clock poker.Clock
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...Option) *Memory {
	return &Memory{
		teams: make(map[string][]byte),
		names: make(map[string]string),
		clock: ApplyOptions(opts...),
	}
}

// LoadTeam decodes the stored snapshot for name.
func (m *Memory) LoadTeam(_ context.Context, name string) (*poker.Team, error) {
	m.mu.RLock()
	data, ok := m.teams[poker.NameKey(name)]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return poker.UnmarshalTeam(data, poker.WithClock(m.clock))
}

// SaveTeam stores a snapshot of team.
func (m *Memory) SaveTeam(_ context.Context, team *poker.Team) error {
	data, err := json.Marshal(team)
	if err != nil {
		return errors.Wrapf(err, "storage: encode team %s", team.Name())
	}

	key := poker.NameKey(team.Name())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[key] = data
	m.names[key] = team.Name()
	return nil
}

// DeleteTeam removes the named team.
func (m *Memory) DeleteTeam(_ context.Context, name string) error {
	key := poker.NameKey(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.teams, key)
	delete(m.names, key)
	return nil
}

// DeleteAll removes every team.
func (m *Memory) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.teams)
	clear(m.names)
	return nil
}

// TeamNames returns the stored team names in sorted order.
func (m *Memory) TeamNames(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.names))
	for _, n := range m.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}
