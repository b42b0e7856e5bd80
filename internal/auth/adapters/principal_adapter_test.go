package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"teller/internal/auth/models"
	"teller/internal/auth/store/user"
	"teller/pkg/platform/sentinel"
)

func TestPrincipalStore(t *testing.T) {
	users, err := user.New(user.DefaultSeeds(), user.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	store := NewPrincipalStore(users)

	p, err := store.FindPrincipal(context.Background(), "2")
	require.NoError(t, err)
	assert.True(t, p.HasRole(models.RoleAdmin))
	assert.True(t, p.HasPermission(models.ScopeWriteProfile))

	_, err = store.FindPrincipal(context.Background(), "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
