package planner

import "errors"

var (
	// ErrMalformedResponse is returned when the generated payload is empty,
	// unparsable, or does not have seven meals.
	ErrMalformedResponse = errors.New("malformed plan response")
	// ErrNoPlan is returned when an operation needs a current plan and none exists.
	ErrNoPlan = errors.New("no current plan")
	// ErrBusy is returned when a generation for the same user is already running.
	ErrBusy = errors.New("a plan generation is already in progress")
	// ErrEmptyQuery is returned by full generation without preferences.
	ErrEmptyQuery = errors.New("preference query is empty")
	// ErrNoSelection is returned by regeneration without valid meal indices.
	ErrNoSelection = errors.New("no meals selected for regeneration")
	// ErrTooManyFavorites is returned when more favorites must be included
	// than there are meals being generated.
	ErrTooManyFavorites = errors.New("more favorites than meals to generate")
	// ErrNoUser is returned when the caller has no user identity.
	ErrNoUser = errors.New("user identity not established")
)
