package main

import (
	"fmt"

	"dinnerplan/internal/app"
	"dinnerplan/internal/planner"
	"dinnerplan/internal/recipe"
	"dinnerplan/internal/shopping"
	"dinnerplan/internal/units"
)

func printPlan(plan *planner.WeeklyPlan) {
	if plan.InitialQuery != "" {
		fmt.Printf("Plan for: %s\n\n", plan.InitialQuery)
	}
	for i, m := range plan.WeeklyPlan {
		fmt.Printf("%d. %-9s %s", i+1, m.Day, m.Meal)
		if m.Calories != nil {
			fmt.Printf(" (%d kcal)", *m.Calories)
		}
		fmt.Println()
	}
	fmt.Println()
	printShoppingList(plan.ShoppingList)
}

func printShoppingList(list []shopping.Item) {
	fmt.Println("Shopping list:")
	if len(list) == 0 {
		fmt.Println("  (empty)")
		return
	}
	pos := make(map[shopping.Key]int, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		pos[list[i].Key()] = i + 1
	}
	for _, g := range shopping.GroupByCategory(list) {
		fmt.Printf("  %s\n", g.Category)
		for _, item := range g.Items {
			box := "[ ]"
			if item.IsChecked {
				box = "[x]"
			}
			fmt.Printf("    %s %2d. %s %s\n", box, pos[item.Key()], item.Item, item.Quantity)
		}
	}
}

func printCooking(c *app.Cooking) {
	d := c.Detail
	fmt.Printf("%s\nPrep %d min, cook %d min, dinner at %s\n\n", d.RecipeName, d.PrepTimeMinutes, d.CookTimeMinutes, d.DinnerTime)

	fmt.Println("Ingredients:")
	for i, conv := range recipe.ConvertIngredients(d, units.Metric) {
		line := d.Ingredients[i]
		if conv.Converted != conv.Original && conv.Converted != units.NotAvailable {
			line += " (" + conv.Converted + ")"
		}
		fmt.Printf("  - %s\n", line)
	}

	fmt.Println("\nTimeline:")
	for _, s := range c.Schedule {
		fmt.Printf("  %8s  %s\n", s.ClockTime, s.Action)
	}

	fmt.Println("\nInstructions:")
	for i, step := range d.Instructions {
		fmt.Printf("  %d. %s\n", i+1, step)
	}
}
