package recipe

import (
	"context"
	"testing"

	"dinnerplan/internal/store"
	"dinnerplan/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFavorites() (*Favorites, *storetest.Memory) {
	gw := storetest.NewMemory()
	return NewFavorites(gw, store.Paths{AppID: "app", UserID: "u1"}), gw
}

func TestFavorites_AddDeduplicatesByName(t *testing.T) {
	ctx := context.Background()
	favs, gw := newTestFavorites()

	first, err := favs.Add(ctx, soup, "plan")
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	writes := gw.Writes()
	again := soup
	again.Instructions = []string{"different"}
	second, err := favs.Add(ctx, again, "url")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, writes, gw.Writes())

	list, err := favs.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "plan", list[0].MealSource)
	assert.Equal(t, soup.Ingredients, list[0].Ingredients)
	assert.False(t, list[0].SavedAt.IsZero())
	assert.Nil(t, list[0].LastUsed)
}

func TestFavorites_Toggle(t *testing.T) {
	ctx := context.Background()
	favs, _ := newTestFavorites()

	on, err := favs.Toggle(ctx, soup, "plan")
	require.NoError(t, err)
	assert.True(t, on)

	names, err := favs.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tomato Soup"}, names)

	on, err = favs.Toggle(ctx, soup, "plan")
	require.NoError(t, err)
	assert.False(t, on)

	names, err = favs.Names(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestFavorites_MarkUsed(t *testing.T) {
	ctx := context.Background()
	favs, _ := newTestFavorites()

	fav, err := favs.Add(ctx, soup, "plan")
	require.NoError(t, err)
	require.NoError(t, favs.MarkUsed(ctx, fav.ID))

	found, err := favs.Find(ctx, "Tomato Soup")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NotNil(t, found.LastUsed)

	assert.ErrorIs(t, favs.MarkUsed(ctx, "missing"), store.ErrNotFound)
}

func TestFavorites_Subscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	favs, _ := newTestFavorites()

	events, err := favs.Subscribe(ctx)
	require.NoError(t, err)

	first := <-events
	require.NoError(t, first.Err)
	assert.Empty(t, first.Favorites)

	_, err = favs.Add(ctx, soup, "plan")
	require.NoError(t, err)

	for ev := range events {
		require.NoError(t, ev.Err)
		if len(ev.Favorites) == 1 {
			assert.Equal(t, "Tomato Soup", ev.Favorites[0].RecipeName)
			return
		}
	}
	t.Fatal("subscription closed before the new favorite arrived")
}
