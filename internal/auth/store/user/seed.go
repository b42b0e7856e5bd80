package user

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"teller/internal/auth/models"
)

// Seed is a user plus plaintext password as read from the seed file. Passwords
// are hashed on load and never kept in plaintext by a store.
type Seed struct {
	ID          string   `yaml:"id"`
	Email       string   `yaml:"email"`
	Name        string   `yaml:"name"`
	Role        string   `yaml:"role"`
	Permissions []string `yaml:"permissions"`
	Password    string   `yaml:"password"`
}

type seedFile struct {
	Users []Seed `yaml:"users"`
}

// DefaultSeeds are the two demo accounts the dashboard ships with.
func DefaultSeeds() []Seed {
	return []Seed{
		{
			ID:    "1",
			Email: "test@interswitch.com",
			Name:  "Test User",
			Role:  models.RoleCustomer,
			Permissions: []string{
				models.ScopeReadAccounts,
				models.ScopeReadTransactions,
				models.ScopeWriteTransfers,
			},
			Password: "password123",
		},
		{
			ID:    "2",
			Email: "admin@interswitch.com",
			Name:  "Admin User",
			Role:  models.RoleAdmin,
			Permissions: []string{
				models.ScopeReadAccounts,
				models.ScopeReadTransactions,
				models.ScopeWriteTransfers,
				models.ScopeReadProfile,
				models.ScopeWriteProfile,
			},
			Password: "admin123",
		},
	}
}

// LoadSeeds reads a YAML document of the form:
//
//	users:
//	  - id: "1"
//	    email: test@interswitch.com
//	    password: password123
//	    role: customer
//	    permissions: [read:accounts]
func LoadSeeds(path string) ([]Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var doc seedFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	seen := make(map[string]struct{}, len(doc.Users))
	for i, s := range doc.Users {
		if s.ID == "" || s.Email == "" || s.Password == "" {
			return nil, fmt.Errorf("seed %d: id, email and password are required", i)
		}
		if _, dup := seen[s.Email]; dup {
			return nil, fmt.Errorf("seed %d: duplicate email %q", i, s.Email)
		}
		seen[s.Email] = struct{}{}
	}
	return doc.Users, nil
}

func (s Seed) user() *models.User {
	return &models.User{
		ID:          s.ID,
		Email:       s.Email,
		Name:        s.Name,
		Role:        s.Role,
		Permissions: append([]string(nil), s.Permissions...),
	}
}
