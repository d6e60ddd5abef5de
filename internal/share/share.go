// Package share publishes read-only copies of weekly plans behind signed tokens.
package share

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dinnerplan/internal/planner"
	"dinnerplan/internal/store"

	"github.com/golang-jwt/jwt/v5"
)

const audience = "shared-plan"

var (
	// ErrInvalidToken is returned for tokens that are malformed, expired or
	// not signed with the share secret.
	ErrInvalidToken = errors.New("invalid share token")
	// ErrNoSecret is returned when sharing is used without a secret.
	ErrNoSecret = errors.New("share secret not configured")
)

// SharedPlan is a published snapshot of a plan.
type SharedPlan struct {
	ID string `json:"-"`
	planner.WeeklyPlan
	SharedBy string    `json:"sharedBy"`
	SavedAt  time.Time `json:"savedAt"`
}

// Service shares plans of one application.
type Service struct {
	gw     store.Gateway
	path   string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// DefaultTTL is how long share tokens stay valid unless WithTTL says otherwise.
const DefaultTTL = 30 * 24 * time.Hour

// Option customizes a Service.
type Option func(*Service)

// WithTTL makes tokens expire after ttl. Zero means tokens never expire.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// NewService creates a share service signing tokens with secret.
func NewService(gw store.Gateway, appID, secret string, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	s := &Service{
		gw:     gw,
		path:   store.Paths{AppID: appID}.SharedPlans(),
		secret: []byte(secret),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Share stores a snapshot of plan and returns the token that opens it.
func (s *Service) Share(ctx context.Context, userID string, plan *planner.WeeklyPlan) (string, error) {
	if plan == nil {
		return "", planner.ErrNoPlan
	}
	doc, err := store.Encode(SharedPlan{WeeklyPlan: *plan, SharedBy: userID})
	if err != nil {
		return "", err
	}
	delete(doc, store.SavedAtField)

	id, err := s.gw.AddToCollection(ctx, s.path, doc)
	if err != nil {
		return "", fmt.Errorf("failed to share plan: %w", err)
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:       id,
		Subject:  userID,
		Audience: jwt.ClaimStrings{audience},
		IssuedAt: jwt.NewNumericDate(now),
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign share token: %w", err)
	}
	return token, nil
}

// Open verifies token and loads the plan it points to.
func (s *Service) Open(ctx context.Context, token string) (*SharedPlan, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing plan id", ErrInvalidToken)
	}

	doc, err := s.gw.GetDocument(ctx, store.DocPath(s.path, claims.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to open shared plan: %w", err)
	}
	shared := SharedPlan{ID: claims.ID}
	if err := store.Decode(doc, &shared); err != nil {
		return nil, err
	}
	return &shared, nil
}

// Revoke deletes a shared plan. Its tokens stop opening anything.
func (s *Service) Revoke(ctx context.Context, id string) error {
	if err := s.gw.DeleteDocument(ctx, store.DocPath(s.path, id)); err != nil {
		return fmt.Errorf("failed to revoke shared plan: %w", err)
	}
	return nil
}
