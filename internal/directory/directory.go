// Package directory loads the tracked users and resolves email aliases to
// canonical user records.
package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Unknown is returned by lookups for emails that are not in the directory.
const Unknown = "unknown"

// ErrNoUsers is returned when a directory file contains no users.
var ErrNoUsers = errors.New("user directory is empty")

// User is one tracked person.
type User struct {
	Email   string   `json:"email" yaml:"email"`
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Team    string   `json:"team,omitempty" yaml:"team,omitempty"`
}

// Directory maps every known email alias to its canonical user.
// It is built once and never modified afterwards.
type Directory struct {
	users   []User
	byAlias map[string]User
}

// Load reads users from a JSON file, or YAML when the extension is .yaml/.yml.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read user directory: %w", err)
	}

	var users []User
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &users)
	default:
		err = json.Unmarshal(data, &users)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse user directory %s: %w", path, err)
	}
	if len(users) == 0 {
		return nil, ErrNoUsers
	}

	return New(users)
}

// New builds a Directory from users. Every user needs an email, and an alias
// may not belong to two different users.
func New(users []User) (*Directory, error) {
	d := &Directory{
		users:   make([]User, 0, len(users)),
		byAlias: make(map[string]User),
	}

	for i, u := range users {
		if strings.TrimSpace(u.Email) == "" {
			return nil, fmt.Errorf("user at index %d has no email", i)
		}
		u.Aliases = append([]string(nil), u.Aliases...)
		d.users = append(d.users, u)

		for _, email := range append([]string{u.Email}, u.Aliases...) {
			key := normalizeEmail(email)
			if prev, ok := d.byAlias[key]; ok && prev.Email != u.Email {
				return nil, fmt.Errorf("email %s belongs to both %s and %s", email, prev.Email, u.Email)
			}
			d.byAlias[key] = u
		}
	}

	return d, nil
}

// Users returns all users in file order.
func (d *Directory) Users() []User {
	return append([]User(nil), d.users...)
}

// Resolve returns the user owning email, if any.
func (d *Directory) Resolve(email string) (User, bool) {
	u, ok := d.byAlias[normalizeEmail(email)]
	return u, ok
}

// Canonical returns the primary email for any alias, or Unknown.
func (d *Directory) Canonical(email string) string {
	if u, ok := d.Resolve(email); ok {
		return u.Email
	}
	return Unknown
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
