package registrations_test

import (
	"context"
	"testing"
	"time"

	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/content"
	"membership-portal/internal/domain/registrations"
	"membership-portal/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedItem(t *testing.T, db *gorm.DB, slug string) *content.Item {
	t.Helper()
	item := &content.Item{Slug: slug, Kind: content.KindRetreat, Title: slug, Published: true}
	require.NoError(t, db.Create(item).Error)
	return item
}

func TestGrantAccessIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	w := registrations.NewWriter(db, nil)
	ctx := context.Background()
	item := seedItem(t, db, "winter-retreat")

	first, err := w.GrantAccess(ctx, 7, item.ID, registrations.Lifetime, nil)
	require.NoError(t, err)
	second, err := w.GrantAccess(ctx, 7, item.ID, registrations.Lifetime, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, registrations.StatusConfirmed, second.Status)

	var count int64
	require.NoError(t, db.Model(&registrations.Registration{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestGrantAccessLinksOrder(t *testing.T) {
	db := testutil.NewDB(t)
	w := registrations.NewWriter(db, nil)
	item := seedItem(t, db, "course")

	reg, err := w.GrantAccess(context.Background(), 3, item.ID, registrations.Lifetime, nil, registrations.WithOrder(42))
	require.NoError(t, err)
	require.NotNil(t, reg.OrderID)
	assert.EqualValues(t, 42, *reg.OrderID)
}

func TestGrantAccessValidatesExpiry(t *testing.T) {
	db := testutil.NewDB(t)
	w := registrations.NewWriter(db, nil)
	ctx := context.Background()
	item := seedItem(t, db, "talk")

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(30 * 24 * time.Hour)

	tests := []struct {
		name      string
		userID    uint
		access    registrations.AccessType
		expiresAt *time.Time
		kind      apperr.Kind
	}{
		{"lifetime with expiry", 1, registrations.Lifetime, &future, apperr.KindValidation},
		{"limited without expiry", 1, registrations.Limited, nil, apperr.KindValidation},
		{"limited in the past", 1, registrations.Limited, &past, apperr.KindValidation},
		{"unknown access type", 1, "forever", nil, apperr.KindValidation},
		{"anonymous user", 0, registrations.Lifetime, nil, apperr.KindAuthRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.GrantAccess(ctx, tt.userID, item.ID, tt.access, tt.expiresAt)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	reg, err := w.GrantAccess(ctx, 1, item.ID, registrations.Limited, &future)
	require.NoError(t, err)
	assert.True(t, reg.ActiveAt(time.Now()))
	assert.False(t, reg.ActiveAt(future.Add(time.Second)))
}

func TestGrantAccessKeepsCompletedStatus(t *testing.T) {
	db := testutil.NewDB(t)
	w := registrations.NewWriter(db, nil)
	ctx := context.Background()
	item := seedItem(t, db, "yoga-course")

	reg, err := w.GrantAccess(ctx, 5, item.ID, registrations.Lifetime, nil)
	require.NoError(t, err)
	_, err = w.SetStatus(ctx, reg.ID, registrations.StatusCompleted, false)
	require.NoError(t, err)

	again, err := w.GrantAccess(ctx, 5, item.ID, registrations.Lifetime, nil)
	require.NoError(t, err)
	assert.Equal(t, registrations.StatusCompleted, again.Status)
}

func TestSetStatusTransitions(t *testing.T) {
	db := testutil.NewDB(t)
	w := registrations.NewWriter(db, nil)
	ctx := context.Background()
	item := seedItem(t, db, "satsang")

	reg, err := w.GrantAccess(ctx, 9, item.ID, registrations.Lifetime, nil)
	require.NoError(t, err)

	_, err = w.SetStatus(ctx, reg.ID, registrations.StatusCancelled, false)
	require.NoError(t, err)

	_, err = w.SetStatus(ctx, reg.ID, registrations.StatusConfirmed, false)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	restored, err := w.SetStatus(ctx, reg.ID, registrations.StatusConfirmed, true)
	require.NoError(t, err)
	assert.Equal(t, registrations.StatusConfirmed, restored.Status)

	_, err = w.SetStatus(ctx, 999, registrations.StatusCancelled, true)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = w.SetStatus(ctx, reg.ID, "archived", true)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestListForUser(t *testing.T) {
	db := testutil.NewDB(t)
	w := registrations.NewWriter(db, nil)
	ctx := context.Background()
	a := seedItem(t, db, "a")
	b := seedItem(t, db, "b")

	_, err := w.GrantAccess(ctx, 1, a.ID, registrations.Lifetime, nil)
	require.NoError(t, err)
	_, err = w.GrantAccess(ctx, 1, b.ID, registrations.Lifetime, nil)
	require.NoError(t, err)
	_, err = w.GrantAccess(ctx, 2, a.ID, registrations.Lifetime, nil)
	require.NoError(t, err)

	regs, err := w.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, regs, 2)
	for _, r := range regs {
		require.NotNil(t, r.Item)
		assert.EqualValues(t, 1, r.UserID)
	}

	forItem, err := w.ForUserItem(ctx, 2, a.ID)
	require.NoError(t, err)
	assert.Len(t, forItem, 1)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, registrations.CanTransition(registrations.StatusPending, registrations.StatusConfirmed))
	assert.True(t, registrations.CanTransition(registrations.StatusConfirmed, registrations.StatusCompleted))
	assert.True(t, registrations.CanTransition(registrations.StatusConfirmed, registrations.StatusConfirmed))
	assert.False(t, registrations.CanTransition(registrations.StatusCompleted, registrations.StatusConfirmed))
	assert.False(t, registrations.CanTransition(registrations.StatusCancelled, registrations.StatusPending))
}
