package telegram

import (
	"fmt"
	"slices"
	"strings"

	"dinnerplan/internal/app"
	"dinnerplan/internal/archive"
	"dinnerplan/internal/metrics"
	"dinnerplan/internal/planner"
	"dinnerplan/internal/recipe"
	"dinnerplan/internal/shopping"
	"dinnerplan/internal/units"
)

func formatPlanMarkdownParts(plan *planner.WeeklyPlan, selected []int) (string, string) {
	isSelected := make(map[int]bool, len(selected))
	for _, i := range selected {
		isSelected[i] = true
	}

	var pb strings.Builder
	pb.WriteString("📅 *Weekly Meal Plan*\n")
	if plan.InitialQuery != "" {
		pb.WriteString(fmt.Sprintf("_%s_\n", plan.InitialQuery))
	}
	pb.WriteString("\n")

	totalCalories := 0
	for i, m := range plan.WeeklyPlan {
		marker := ""
		if isSelected[i] {
			marker = "🔁 "
		}
		pb.WriteString(fmt.Sprintf("%s%d. *%s*: %s", marker, i+1, m.Day, m.Meal))
		if m.Calories != nil {
			pb.WriteString(fmt.Sprintf(" (%d kcal)", *m.Calories))
			totalCalories += *m.Calories
		}
		pb.WriteString("\n")
		if m.Description != "" {
			pb.WriteString(fmt.Sprintf("_%s_\n", m.Description))
		}
	}
	if totalCalories > 0 {
		pb.WriteString(fmt.Sprintf("\n🔥 *Total:* %d kcal\n", totalCalories))
	}

	return pb.String(), formatShoppingList(plan.ShoppingList)
}

func formatShoppingList(list []shopping.Item) string {
	var sb strings.Builder
	sb.WriteString("🛒 *Shopping List*\n")
	if len(list) == 0 {
		sb.WriteString("\n_Empty_\n")
		return sb.String()
	}

	// Numbers follow list order so /check and /remove can address items.
	index := make(map[shopping.Key]int, len(list))
	for i, item := range list {
		if _, ok := index[item.Key()]; !ok {
			index[item.Key()] = i
		}
	}
	for _, g := range shopping.GroupByCategory(list) {
		category := g.Category
		if category == "" {
			category = "Other"
		}
		sb.WriteString(fmt.Sprintf("\n*%s*\n", category))
		for _, item := range g.Items {
			box := "⬜"
			if item.IsChecked {
				box = "✅"
			}
			sb.WriteString(fmt.Sprintf("%s %d. %s", box, index[item.Key()]+1, item.Item))
			if item.Quantity != "" {
				sb.WriteString(fmt.Sprintf(" (%s)", item.Quantity))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func formatCooking(c *app.Cooking) string {
	d := c.Detail
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👩‍🍳 *%s*\n", d.RecipeName))
	sb.WriteString(fmt.Sprintf("⏱ Prep %d min · Cook %d min · Total %d min\n", d.PrepTimeMinutes, d.CookTimeMinutes, d.TotalMinutes()))

	sb.WriteString("\n*Ingredients*\n")
	conversions := recipe.ConvertIngredients(d, units.Metric)
	for i, ing := range d.Ingredients {
		conv := conversions[i]
		sb.WriteString("• " + ing)
		if conv.Converted != conv.Original && conv.Converted != units.NotAvailable {
			sb.WriteString(fmt.Sprintf(" _(%s)_", conv.Converted))
		}
		sb.WriteString("\n")
	}

	if len(c.Schedule) > 0 {
		sb.WriteString("\n*Timeline*\n")
		for _, s := range c.Schedule {
			sb.WriteString(fmt.Sprintf("`%8s` %s\n", s.ClockTime, s.Action))
		}
	}

	sb.WriteString("\n*Instructions*\n")
	for i, step := range d.Instructions {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, step))
	}
	return sb.String()
}

func formatFavorites(favs []recipe.Favorite, injecting bool, picked []string) string {
	var sb strings.Builder
	sb.WriteString("⭐ *Favorites*\n\n")
	if len(favs) == 0 {
		sb.WriteString("_No favorites yet_\n")
	}
	for _, f := range favs {
		marker := "• "
		if slices.Contains(picked, f.RecipeName) {
			marker = "📌 "
		}
		sb.WriteString(marker + f.RecipeName)
		if f.LastUsed != nil {
			sb.WriteString(fmt.Sprintf(" _(last cooked %s)_", f.LastUsed.Format("Jan 2")))
		}
		sb.WriteString("\n")
	}
	state := "off"
	if injecting {
		state = "on"
	}
	sb.WriteString(fmt.Sprintf("\nInclude 📌 picks in new plans: *%s* (/usefav on|off, /usefav <name> to pick)\n", state))
	return sb.String()
}

func formatArchive(plans []archive.Plan) string {
	var sb strings.Builder
	sb.WriteString("🗄 *Archived Plans*\n\n")
	if len(plans) == 0 {
		sb.WriteString("_Nothing archived yet_\n")
	}
	for i, p := range plans {
		sb.WriteString(fmt.Sprintf("%d. %s: %s\n", i+1, p.SavedAt.Format("2006-01-02"), strings.Join(p.MealNames(), ", ")))
	}
	return sb.String()
}

func formatReport(usage []metrics.DailyUsage, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent LLM Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		sb.WriteString(fmt.Sprintf("• *%s*: %d tokens (%d execs)\n", d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution))
	}

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))
	sb.WriteString(fmt.Sprintf("• Disk Data: %s\n", health.DataDiskSize))
	return sb.String()
}

const helpText = `🍽 *Dinner Planner*

Send your preferences to plan a week, or a recipe link to save it.

/plan <preferences> - new weekly plan
/show - current plan
/select <n...> - mark days to replace
/regen [constraint] - replace marked days
/swap <a> <b> - swap two days
/cook <n> [HH:MM] - recipe and timeline
/fav - favorite the current recipe
/favorites - list favorites
/usefav on|off - include picked favorites in plans
/usefav <name> - pick or unpick a favorite
/list - shopping list
/check <n> - tick an item
/add <item> | <qty> | <category>
/remove <n> - delete an item
/archive - archive the plan
/archives - archived plans
/restore <n> - restore an archived plan
/share - share link token
/open <token> - view a shared plan`
