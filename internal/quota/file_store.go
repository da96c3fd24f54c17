package quota

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"
)

// Ledger is the whole persisted document.
type Ledger map[string]map[string]int

// FileStore keeps the ledger in a single JSON document. Every mutation rewrites
// the whole file through a temp file and rename, so readers in this or another
// process never see a partial document.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// Load reads the document. A missing or empty file is an empty ledger.
func (s *FileStore) Load() (Ledger, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Ledger{}, nil
		}
		return nil, fmt.Errorf("read ledger %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return Ledger{}, nil
	}
	var l Ledger
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w: %v", s.path, ErrParse, err)
	}
	if l == nil {
		l = Ledger{}
	}
	for day, users := range l {
		for user, n := range users {
			if n < 0 {
				return nil, fmt.Errorf("ledger %s: negative count for %s on %s: %w", s.path, user, day, ErrParse)
			}
		}
	}
	return l, nil
}

func (s *FileStore) save(l Ledger) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	if err := atomicwriter.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write ledger %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) Usage(_ context.Context, day, userID string) (int, error) {
	l, err := s.Load()
	if err != nil {
		return 0, err
	}
	return l[day][userID], nil
}

func (s *FileStore) Add(_ context.Context, day, userID string, n int) (int, error) {
	l, err := s.Load()
	if err != nil {
		return 0, err
	}
	users := l[day]
	if users == nil {
		users = make(map[string]int)
		l[day] = users
	}
	users[userID] += n
	if err := s.save(l); err != nil {
		return 0, err
	}
	return users[userID], nil
}

func (s *FileStore) Day(_ context.Context, day string) (map[string]int, error) {
	l, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(l[day]))
	for user, n := range l[day] {
		out[user] = n
	}
	return out, nil
}

func (s *FileStore) DeleteDay(_ context.Context, day string) error {
	l, err := s.Load()
	if err != nil {
		return err
	}
	if _, ok := l[day]; !ok {
		return nil
	}
	delete(l, day)
	return s.save(l)
}

func (s *FileStore) PruneBefore(_ context.Context, cutoff string) (int, error) {
	l, err := s.Load()
	if err != nil {
		return 0, err
	}
	removed := 0
	for day := range l {
		if day < cutoff {
			delete(l, day)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.save(l)
}
