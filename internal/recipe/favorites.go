package recipe

import (
	"context"
	"fmt"
	"time"

	"dinnerplan/internal/store"
)

// Favorite is a saved recipe. Names are unique per user: the lookup happens
// before every insert.
type Favorite struct {
	ID string `json:"-"`
	RecipeDetail
	LastUsed   *time.Time `json:"lastUsed,omitempty"`
	SavedAt    time.Time  `json:"savedAt"`
	MealSource string     `json:"mealSource"`
}

// Favorites manages one user's favorite recipes.
type Favorites struct {
	gw   store.Gateway
	path string
	now  func() time.Time
}

// NewFavorites creates the favorites service for paths.
func NewFavorites(gw store.Gateway, paths store.Paths) *Favorites {
	return &Favorites{
		gw:   gw,
		path: paths.Favorites(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// List returns the favorites, oldest first.
func (f *Favorites) List(ctx context.Context) ([]Favorite, error) {
	entries, err := f.gw.ListCollection(ctx, f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	return decodeFavorites(entries)
}

// Find returns the favorite named name, or nil.
func (f *Favorites) Find(ctx context.Context, name string) (*Favorite, error) {
	favs, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range favs {
		if favs[i].RecipeName == name {
			return &favs[i], nil
		}
	}
	return nil, nil
}

// Add saves detail unless a favorite with the same recipe name exists, in
// which case the existing one is returned.
func (f *Favorites) Add(ctx context.Context, detail RecipeDetail, mealSource string) (*Favorite, error) {
	existing, err := f.Find(ctx, detail.RecipeName)
	if err != nil || existing != nil {
		return existing, err
	}

	fav := Favorite{RecipeDetail: detail, MealSource: mealSource}
	doc, err := store.Encode(fav)
	if err != nil {
		return nil, err
	}
	delete(doc, store.SavedAtField)
	delete(doc, "lastUsed")

	id, err := f.gw.AddToCollection(ctx, f.path, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to save favorite: %w", err)
	}
	fav.ID = id
	fav.SavedAt = f.now()
	return &fav, nil
}

// Toggle adds detail as a favorite, or removes the favorite with the same
// recipe name. It reports whether the recipe is a favorite afterwards.
func (f *Favorites) Toggle(ctx context.Context, detail RecipeDetail, mealSource string) (bool, error) {
	existing, err := f.Find(ctx, detail.RecipeName)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, f.Remove(ctx, existing.ID)
	}
	if _, err := f.Add(ctx, detail, mealSource); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes a favorite by id.
func (f *Favorites) Remove(ctx context.Context, id string) error {
	if err := f.gw.DeleteDocument(ctx, store.DocPath(f.path, id)); err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	return nil
}

// MarkUsed stamps lastUsed on a favorite.
func (f *Favorites) MarkUsed(ctx context.Context, id string) error {
	err := f.gw.UpdateDocument(ctx, store.DocPath(f.path, id), store.Document{
		"lastUsed": f.now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to mark favorite used: %w", err)
	}
	return nil
}

// Names returns the favorite recipe names, used for plan injection.
func (f *Favorites) Names(ctx context.Context) ([]string, error) {
	favs, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(favs))
	for _, fav := range favs {
		names = append(names, fav.RecipeName)
	}
	return names, nil
}

// FavoritesEvent is one observed state of the favorites collection.
type FavoritesEvent struct {
	Favorites []Favorite
	Err       error
}

// Subscribe streams the favorites after every change until ctx is done.
func (f *Favorites) Subscribe(ctx context.Context) (<-chan FavoritesEvent, error) {
	events, err := f.gw.SubscribeCollection(ctx, f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to favorites: %w", err)
	}
	out := make(chan FavoritesEvent)
	go func() {
		defer close(out)
		for ev := range events {
			fe := FavoritesEvent{Err: ev.Err}
			if ev.Err == nil {
				fe.Favorites, fe.Err = decodeFavorites(ev.Entries)
			}
			select {
			case out <- fe:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func decodeFavorites(entries []store.Entry) ([]Favorite, error) {
	favs := make([]Favorite, 0, len(entries))
	for _, e := range entries {
		var fav Favorite
		if err := store.Decode(e.Doc, &fav); err != nil {
			return nil, err
		}
		fav.ID = e.ID
		favs = append(favs, fav)
	}
	return favs, nil
}
