package recipe

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"dinnerplan/internal/llm"
	"dinnerplan/internal/planner"
)

var (
	// ErrNoMealSelected is returned when the meal index is not in the plan.
	ErrNoMealSelected = errors.New("no meal selected")
	// ErrNoFavorite is returned when no favorite has the requested name.
	ErrNoFavorite = errors.New("no such favorite")
	// ErrInvalidDinnerTime is returned when the serving time is not HH:MM.
	ErrInvalidDinnerTime = errors.New("invalid dinner time")
	// ErrMalformedResponse is the planner's sentinel, shared so callers test one error.
	ErrMalformedResponse = planner.ErrMalformedResponse
	// ErrNoRecipeName is the malformed response of a recipe without a name.
	ErrNoRecipeName = fmt.Errorf("%w: recipe has no name", ErrMalformedResponse)
)

// TimelineStep is one preparation step, timed relative to serving. A negative
// MinutesBefore is a step after serving.
type TimelineStep struct {
	MinutesBefore int    `json:"minutesBefore"`
	Action        string `json:"action"`
}

// UnmarshalJSON accepts any JSON number and rounds it to the nearest minute.
func (s *TimelineStep) UnmarshalJSON(b []byte) error {
	var raw struct {
		MinutesBefore float64 `json:"minutesBefore"`
		Action        string  `json:"action"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.MinutesBefore = int(math.Round(raw.MinutesBefore))
	s.Action = raw.Action
	return nil
}

// RecipeDetail is a full recipe for one planned dinner.
type RecipeDetail struct {
	RecipeName      string         `json:"recipeName"`
	PrepTimeMinutes int            `json:"prepTimeMinutes"`
	CookTimeMinutes int            `json:"cookTimeMinutes"`
	Ingredients     []string       `json:"ingredients"`
	Timeline        []TimelineStep `json:"timeline"`
	Instructions    []string       `json:"instructions"`
	// DinnerTime is the HH:MM serving time the timeline was generated for.
	DinnerTime string `json:"dinnerTime"`
}

// TotalMinutes is prep plus cook time.
func (d *RecipeDetail) TotalMinutes() int {
	return d.PrepTimeMinutes + d.CookTimeMinutes
}

// DetailSchema is the response schema for a single recipe.
func DetailSchema() *llm.Schema {
	return llm.Object(map[string]*llm.Schema{
		"recipeName":      llm.String("Name of the dish"),
		"prepTimeMinutes": llm.Integer("Active preparation time in minutes"),
		"cookTimeMinutes": llm.Integer("Cooking time in minutes"),
		"ingredients":     llm.ArrayOf(llm.String("Quantity, unit and ingredient, e.g. 2 lb chicken thighs")),
		"timeline": llm.ArrayOf(llm.Object(map[string]*llm.Schema{
			"minutesBefore": llm.Integer("Minutes before serving when this step starts"),
			"action":        llm.String("What to do"),
		})),
		"instructions": llm.ArrayOf(llm.String("One instruction step")),
	})
}

// ParseDetail decodes and validates a generated recipe.
func ParseDetail(text string) (*RecipeDetail, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(strings.TrimSuffix(text, "```"))
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	var detail RecipeDetail
	if err := json.Unmarshal([]byte(text), &detail); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(detail.RecipeName) == "" {
		return nil, ErrNoRecipeName
	}
	return &detail, nil
}
