package adapters

import (
	"context"

	"teller/internal/auth/models"
	authmw "teller/pkg/platform/middleware/auth"
)

// userFinder is the part of the credential registry the bearer middleware needs.
type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// PrincipalStore exposes registry users as middleware principals, so the
// middleware package stays free of auth models.
type PrincipalStore struct {
	users userFinder
}

func NewPrincipalStore(users userFinder) *PrincipalStore {
	return &PrincipalStore{users: users}
}

func (a *PrincipalStore) FindPrincipal(ctx context.Context, userID string) (authmw.Principal, error) {
	user, err := a.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user, nil
}
