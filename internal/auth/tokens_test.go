package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/roadline-tms/roadline-tms/internal/platform/httpx"
	"github.com/roadline-tms/roadline-tms/internal/shared"
	_ "github.com/roadline-tms/roadline-tms/internal/testing/guard"
)

func newTestTokenStore(t *testing.T, ttl time.Duration) (*TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTokenStore(client, ttl), mr
}

func TestTokenStoreIssueAndLookup(t *testing.T) {
	store, _ := newTestTokenStore(t, time.Hour)
	ctx := context.Background()

	token, err := store.Issue(ctx, 42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := store.Lookup(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)

	other, err := store.Issue(ctx, 42)
	require.NoError(t, err)
	assert.NotEqual(t, token, other, "each issue mints a distinct token")
}

func TestTokenStoreUnknownToken(t *testing.T) {
	store, _ := newTestTokenStore(t, time.Hour)

	_, err := store.Lookup(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokenStoreExpiry(t *testing.T) {
	store, mr := newTestTokenStore(t, time.Minute)
	ctx := context.Background()

	token, err := store.Issue(ctx, 7)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.Lookup(ctx, token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokenStoreRevoke(t *testing.T) {
	store, _ := newTestTokenStore(t, time.Hour)
	ctx := context.Background()

	token, err := store.Issue(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, store.Revoke(ctx, token))

	_, err = store.Lookup(ctx, token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

type stubAccountRepo struct {
	accounts map[string]Account
}

func (r *stubAccountRepo) FindByEmail(ctx context.Context, email string) (*Account, error) {
	account, ok := r.accounts[email]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	return &account, nil
}

func TestServiceLogin(t *testing.T) {
	store, _ := newTestTokenStore(t, time.Hour)
	hash, err := bcrypt.GenerateFromPassword([]byte("open-sesame-99"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &stubAccountRepo{accounts: map[string]Account{
		"dispatch@roadline.example": {ID: 5, Email: "dispatch@roadline.example", PasswordHash: string(hash), Status: shared.StatusActive},
		"retired@roadline.example":  {ID: 6, Email: "retired@roadline.example", PasswordHash: string(hash), Status: shared.StatusInactive},
	}}
	service := NewService(repo, store)
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		token, err := service.Login(ctx, "dispatch@roadline.example", "open-sesame-99")
		require.NoError(t, err)

		userID, err := service.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, int64(5), userID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := service.Login(ctx, "dispatch@roadline.example", "wrong")
		assert.ErrorIs(t, err, httpx.ErrUnauthorized)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := service.Login(ctx, "ghost@roadline.example", "open-sesame-99")
		assert.ErrorIs(t, err, httpx.ErrUnauthorized)
	})

	t.Run("inactive account", func(t *testing.T) {
		_, err := service.Login(ctx, "retired@roadline.example", "open-sesame-99")
		assert.ErrorIs(t, err, httpx.ErrUnauthorized)
	})

	t.Run("logout revokes", func(t *testing.T) {
		token, err := service.Login(ctx, "dispatch@roadline.example", "open-sesame-99")
		require.NoError(t, err)
		require.NoError(t, service.Logout(ctx, token))
		_, err = service.Verify(ctx, token)
		assert.ErrorIs(t, err, httpx.ErrUnauthorized)
	})
}
