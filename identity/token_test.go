package identity_test

import (
	"testing"
	"time"

	"github.com/nasermirzaei89/backtalk/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager(t *testing.T) {
	t.Parallel()

	tm := identity.NewTokenManager([]byte("test-secret"), time.Hour)

	t.Run("issue and verify", func(t *testing.T) {
		t.Parallel()

		token, err := tm.Issue(identity.Principal{ID: "user-1", Roles: []string{"admin"}})
		require.NoError(t, err)

		principal, err := tm.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", principal.ID)
		assert.Equal(t, []string{"admin"}, principal.Roles)
	})

	t.Run("rejects token signed with another secret", func(t *testing.T) {
		t.Parallel()

		other := identity.NewTokenManager([]byte("other-secret"), time.Hour)

		token, err := other.Issue(identity.Principal{ID: "user-1"})
		require.NoError(t, err)

		_, err = tm.Verify(token)
		require.Error(t, err)

		unauthenticatedErr := &identity.UnauthenticatedError{}
		assert.ErrorAs(t, err, &unauthenticatedErr)
	})

	t.Run("rejects expired token", func(t *testing.T) {
		t.Parallel()

		expired := identity.NewTokenManager([]byte("test-secret"), -time.Minute)

		token, err := expired.Issue(identity.Principal{ID: "user-1"})
		require.NoError(t, err)

		_, err = tm.Verify(token)
		require.Error(t, err)

		unauthenticatedErr := &identity.UnauthenticatedError{}
		assert.ErrorAs(t, err, &unauthenticatedErr)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		t.Parallel()

		_, err := tm.Verify("not-a-token")
		require.Error(t, err)
	})
}

func TestPrincipalHasRole(t *testing.T) {
	t.Parallel()

	principal := identity.Principal{ID: "user-1", Roles: []string{"editor", "admin"}}

	assert.True(t, principal.HasRole("admin"))
	assert.True(t, principal.HasRole("editor"))
	assert.False(t, principal.HasRole("moderator"))
}
