package app

import (
	"slices"
	"sync"

	"dinnerplan/internal/planner"
)

// DefaultDinnerTime is the serving time used until the user picks one.
const DefaultDinnerTime = "19:00"

// Session is the in-memory view state of one user: meals selected for
// regeneration, the favorites picked for injection and the preferred
// serving time.
type Session struct {
	UserID    string
	Selection *planner.Selection

	mu           sync.Mutex
	useFavorites bool
	favorites    []string
	dinnerTime   string
}

// UseFavorites reports whether favorites are injected into generation.
func (s *Session) UseFavorites() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.useFavorites
}

// SetUseFavorites turns favorites injection on or off.
func (s *Session) SetUseFavorites(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.useFavorites = on
}

// FavoriteSelection returns the favorite names picked for injection, in the
// order they were picked.
func (s *Session) FavoriteSelection() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.favorites)
}

// ToggleFavorite adds name to the picked favorites, or removes it when it is
// already picked. It reports whether name is picked afterwards.
func (s *Session) ToggleFavorite(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.favorites, name); i >= 0 {
		s.favorites = slices.Delete(s.favorites, i, i+1)
		return false
	}
	s.favorites = append(s.favorites, name)
	return true
}

// DinnerTime is the last serving time used for a recipe.
func (s *Session) DinnerTime() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dinnerTime
}

// SetDinnerTime stores the serving time for later recipes.
func (s *Session) SetDinnerTime(hhmm string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dinnerTime = hhmm
}

// Sessions holds sessions by user id. Sessions live for the process lifetime.
type Sessions struct {
	mu   sync.Mutex
	byID map[string]*Session
}

// NewSessions creates an empty session table.
func NewSessions() *Sessions {
	return &Sessions{byID: make(map[string]*Session)}
}

// Get returns the session of userID, creating it on first use.
func (s *Sessions) Get(userID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[userID]
	if !ok {
		sess = &Session{
			UserID:     userID,
			Selection:  planner.NewSelection(),
			dinnerTime: DefaultDinnerTime,
		}
		s.byID[userID] = sess
	}
	return sess
}
