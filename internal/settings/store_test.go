package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h-d3ez/nemesis/internal/database/dbtest"
	"github.com/h-d3ez/nemesis/internal/models"
)

func TestGetReturnsDefaultWhenMissing(t *testing.T) {
	s := NewStore(dbtest.New(t))

	v, err := s.Get(context.Background(), "site_title", "Nemesis")
	require.NoError(t, err)
	assert.Equal(t, "Nemesis", v)
}

func TestSetUpserts(t *testing.T) {
	db := dbtest.New(t)
	s := NewStore(db)
	ctx := context.Background()

	desc := "shown in the header"
	require.NoError(t, s.Set(ctx, "site_title", "Nemesis", &desc))
	require.NoError(t, s.Set(ctx, "site_title", "Nemesis Books", nil))

	v, err := s.Get(ctx, "site_title", "")
	require.NoError(t, err)
	assert.Equal(t, "Nemesis Books", v)

	var count int64
	require.NoError(t, db.Model(&models.Setting{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	setting, err := s.Lookup(ctx, "site_title")
	require.NoError(t, err)
	assert.Nil(t, setting.Description)
}

func TestSetRequiresKey(t *testing.T) {
	s := NewStore(dbtest.New(t))
	assert.Error(t, s.Set(context.Background(), "", "v", nil))
}
