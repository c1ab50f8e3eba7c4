// Package access holds the user directory consulted for admin gating.
package access

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sheetviz/backend/internal/models"
)

// ErrUnknownUser is returned by Lookup for ids not in the directory.
var ErrUnknownUser = errors.New("unknown user")

// usersFile is the YAML layout of the users file.
type usersFile struct {
	Users []models.User `yaml:"users"`
}

// SeedUsers is written to a new users file.
var SeedUsers = []models.User{
	{ID: "1", Name: "John Doe", Email: "john@example.com", Role: models.RoleUser, Status: models.UserStatusActive, CreatedAt: "2024-01-15"},
	{ID: "2", Name: "Jane Smith", Email: "jane@example.com", Role: models.RoleUser, Status: models.UserStatusActive, CreatedAt: "2024-01-10"},
	{ID: "3", Name: "Bob Johnson", Email: "bob@example.com", Role: models.RoleAdmin, Status: models.UserStatusActive, CreatedAt: "2024-01-05"},
}

// Directory is an in-memory user directory.
type Directory struct {
	mu    sync.RWMutex
	users map[string]models.User
}

// NewDirectory builds a directory from users.
func NewDirectory(users []models.User) *Directory {
	d := &Directory{users: make(map[string]models.User, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

// LoadDirectory reads the YAML users file at path, creating it with
// SeedUsers when it does not exist.
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := writeUsers(path, SeedUsers); err != nil {
			return nil, err
		}
		return NewDirectory(SeedUsers), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}

	var f usersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse users file: %w", err)
	}
	for i, u := range f.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("users file: entry %d has no id", i)
		}
		if u.Role == "" {
			f.Users[i].Role = models.RoleUser
		}
		if u.Status == "" {
			f.Users[i].Status = models.UserStatusActive
		}
	}
	return NewDirectory(f.Users), nil
}

func writeUsers(path string, users []models.User) error {
	out, err := yaml.Marshal(usersFile{Users: users})
	if err != nil {
		return fmt.Errorf("failed to marshal users: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create users directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("failed to write users file: %w", err)
	}
	return nil
}

// Lookup returns the user with id.
func (d *Directory) Lookup(id string) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, id)
	}
	return &u, nil
}

// List returns all users ordered by id.
func (d *Directory) List() []models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
