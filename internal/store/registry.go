package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ivmel/modelbooth-bot/internal/models"
)

// Registry is the file-backed user registry. The whole mapping lives in
// memory and every mutation is flushed back to disk before returning, so a
// read-modify-write never spans a suspension point.
type Registry struct {
	mu    sync.Mutex
	path  string
	users map[string]models.User
}

// OpenRegistry loads the registry file, initializing an empty mapping when
// the file is missing or malformed.
func OpenRegistry(path string) (*Registry, error) {
	r := &Registry{
		path:  path,
		users: make(map[string]models.User),
	}
	if err := loadJSON(path, &r.users); err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	if r.users == nil {
		r.users = make(map[string]models.User)
	}
	return r, nil
}

// Status returns the user's moderation status and whether a record exists.
func (r *Registry) Status(userID string) (models.Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return "", false
	}
	return u.Status, true
}

// EnsurePending creates a pending record for the user if none exists.
// Calling it again for a known user is a no-op; the existing status is
// never touched.
func (r *Registry) EnsurePending(userID, displayName string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userID]; ok {
		return false, nil
	}
	r.users[userID] = models.User{
		ID:          userID,
		DisplayName: displayName,
		Status:      models.StatusPending,
		RequestedAt: time.Now().UTC(),
	}
	if err := r.flush(); err != nil {
		return false, err
	}
	return true, nil
}

// SetStatus overwrites the user's status, creating the record if absent.
// RequestedAt is preserved when already set. Valid transitions are the
// caller's responsibility.
func (r *Registry) SetStatus(userID string, status models.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		u = models.User{ID: userID, RequestedAt: time.Now().UTC()}
	}
	u.Status = status
	r.users[userID] = u
	return r.flush()
}

// ListByStatus returns users with the given status, ordered by id.
func (r *Registry) ListByStatus(status models.Status) []models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.User
	for _, u := range r.users {
		if u.Status == status {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) flush() error {
	return saveJSON(r.path, r.users)
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		// A corrupt file starts the store empty rather than blocking startup.
		return nil
	}
	return nil
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
