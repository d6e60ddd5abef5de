package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"dinnerplan/internal/llm"
	"dinnerplan/internal/shopping"
)

// PlanDays is the number of entries in a weekly plan.
const PlanDays = 7

// DayLabels is the canonical day order of a plan.
var DayLabels = [PlanDays]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// MealEntry is one dinner in the weekly plan.
type MealEntry struct {
	Day         string `json:"day"`
	Meal        string `json:"meal"`
	Description string `json:"description"`
	Calories    *int   `json:"calories,omitempty"`
	Protein     *int   `json:"protein,omitempty"`
	Carbs       *int   `json:"carbs,omitempty"`
	Fats        *int   `json:"fats,omitempty"`
}

// WeeklyPlan is a week of dinners plus the consolidated shopping list.
// Entries are addressed by index for regeneration.
type WeeklyPlan struct {
	WeeklyPlan   []MealEntry     `json:"weeklyPlan"`
	ShoppingList []shopping.Item `json:"shoppingList"`
	InitialQuery string          `json:"initialQuery"`
}

// MealNames returns the meal names in plan order.
func (p *WeeklyPlan) MealNames() []string {
	names := make([]string, len(p.WeeklyPlan))
	for i, m := range p.WeeklyPlan {
		names[i] = m.Meal
	}
	return names
}

// Validate checks the shape the rest of the application relies on.
func (p *WeeklyPlan) Validate() error {
	if len(p.WeeklyPlan) != PlanDays {
		return fmt.Errorf("%w: expected %d meals, got %d", ErrMalformedResponse, PlanDays, len(p.WeeklyPlan))
	}
	if p.ShoppingList == nil {
		return fmt.Errorf("%w: missing shoppingList", ErrMalformedResponse)
	}
	for i, m := range p.WeeklyPlan {
		if strings.TrimSpace(m.Meal) == "" {
			return fmt.Errorf("%w: meal %d has no name", ErrMalformedResponse, i)
		}
	}
	return nil
}

// ParsePlan decodes and validates a generated plan.
func ParsePlan(text string) (*WeeklyPlan, error) {
	text = stripCodeFence(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}
	var plan WeeklyPlan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// stripCodeFence removes a markdown ```json fence some models add even in JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// PlanSchema is the response schema for full and partial generation.
func PlanSchema() *llm.Schema {
	return llm.Object(map[string]*llm.Schema{
		"weeklyPlan": llm.ArrayOf(llm.Object(map[string]*llm.Schema{
			"day":         llm.String("Day of the week"),
			"meal":        llm.String("Name of the dinner"),
			"description": llm.String("One or two sentence description"),
			"calories":    llm.Optional(llm.Integer("Calories per serving")),
			"protein":     llm.Optional(llm.Integer("Protein grams per serving")),
			"carbs":       llm.Optional(llm.Integer("Carbohydrate grams per serving")),
			"fats":        llm.Optional(llm.Integer("Fat grams per serving")),
		})),
		"shoppingList": llm.ArrayOf(llm.Object(map[string]*llm.Schema{
			"item":     llm.String("Ingredient name"),
			"quantity": llm.String("Quantity with unit"),
			"category": llm.String("Store section, e.g. Produce or Dairy"),
		})),
	})
}
