package planner

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed system_prompt.md
var systemPrompt string

//go:embed plan_prompt.md
var planPrompt string

//go:embed regenerate_prompt.md
var regeneratePrompt string

var (
	planTmpl       = template.Must(template.New("plan").Parse(planPrompt))
	regenerateTmpl = template.Must(template.New("regenerate").Funcs(template.FuncMap{
		"join": strings.Join,
	}).Parse(regeneratePrompt))
)

type planPromptData struct {
	Query     string
	Favorites []string
}

type regeneratePromptData struct {
	Query       string
	ReplaceDays []string
	Keep        []MealEntry
	Constraint  string
	Favorites   []string
}

func buildPlanPrompt(query string, favorites []string) (string, error) {
	return execute(planTmpl, planPromptData{Query: query, Favorites: favorites})
}

// buildRegeneratePrompt names the days at indices for replacement and pins
// every other day:meal pair of previous.
func buildRegeneratePrompt(previous *WeeklyPlan, indices []int, constraint string, favorites []string) (string, error) {
	selected := make(map[int]bool, len(indices))
	for _, i := range indices {
		selected[i] = true
	}

	data := regeneratePromptData{
		Query:      previous.InitialQuery,
		Constraint: strings.TrimSpace(constraint),
		Favorites:  favorites,
	}
	for i, m := range previous.WeeklyPlan {
		if selected[i] {
			data.ReplaceDays = append(data.ReplaceDays, dayLabel(previous, i))
		} else {
			data.Keep = append(data.Keep, MealEntry{Day: dayLabel(previous, i), Meal: m.Meal})
		}
	}
	return execute(regenerateTmpl, data)
}

// dayLabel prefers the stored label and falls back to the canonical one.
func dayLabel(plan *WeeklyPlan, i int) string {
	if d := strings.TrimSpace(plan.WeeklyPlan[i].Day); d != "" {
		return d
	}
	if i < len(DayLabels) {
		return DayLabels[i]
	}
	return fmt.Sprintf("Day %d", i+1)
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
