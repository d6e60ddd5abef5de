package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"

	"dinnerplan/internal/app"
	"dinnerplan/internal/config"
	"dinnerplan/internal/logging"
	"dinnerplan/internal/shopping"

	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	application, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize app", zap.Error(err))
	}
	defer application.Close()

	if err := run(ctx, application, cfg.UserID, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("command failed", zap.String("command", os.Args[1]), zap.Error(err))
		application.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, uid, cmd string, args []string) error {
	switch cmd {
	case "plan":
		fs := flag.NewFlagSet("plan", flag.ExitOnError)
		favs := fs.String("fav", "", "Comma separated favorites to include (e.g. Tacos,Pho)")
		fs.Parse(args)
		if err := pickFavorites(ctx, a, uid, *favs); err != nil {
			return err
		}
		plan, err := a.GeneratePlan(ctx, uid, strings.Join(fs.Args(), " "))
		if err != nil {
			return err
		}
		printPlan(plan)
	case "show":
		plan, err := a.CurrentPlan(ctx, uid)
		if err != nil {
			return err
		}
		printPlan(plan)
	case "regen":
		fs := flag.NewFlagSet("regen", flag.ExitOnError)
		days := fs.String("days", "", "Comma separated day numbers to replace (e.g. 2,5)")
		favs := fs.String("fav", "", "Comma separated favorites to include (e.g. Tacos,Pho)")
		fs.Parse(args)
		indices, err := parseDays(*days)
		if err != nil {
			return err
		}
		a.Session(uid).Selection.Set(indices...)
		if err := pickFavorites(ctx, a, uid, *favs); err != nil {
			return err
		}
		plan, err := a.Regenerate(ctx, uid, strings.Join(fs.Args(), " "))
		if err != nil {
			return err
		}
		printPlan(plan)
	case "cook":
		fs := flag.NewFlagSet("cook", flag.ExitOnError)
		day := fs.Int("day", 1, "Day number from the plan")
		at := fs.String("at", "", "Dinner time as HH:MM")
		fs.Parse(args)
		cooking, err := a.Cook(ctx, uid, *day-1, *at)
		if err != nil {
			return err
		}
		printCooking(cooking)
	case "list":
		plan, err := a.CurrentPlan(ctx, uid)
		if err != nil {
			return err
		}
		printShoppingList(plan.ShoppingList)
	case "check":
		n, err := itemNumber(args)
		if err != nil {
			return err
		}
		list, err := a.ToggleShoppingItem(ctx, uid, n-1)
		if err != nil {
			return err
		}
		printShoppingList(list)
	case "add":
		fs := flag.NewFlagSet("add", flag.ExitOnError)
		qty := fs.String("qty", "", "Quantity")
		category := fs.String("category", "", "Aisle or category")
		fs.Parse(args)
		list, err := a.AddShoppingItem(ctx, uid, shopping.Item{
			Item:     strings.Join(fs.Args(), " "),
			Quantity: *qty,
			Category: *category,
		})
		if err != nil {
			return err
		}
		printShoppingList(list)
	case "archive":
		archived, err := a.ArchiveCurrent(ctx, uid)
		if err != nil {
			return err
		}
		fmt.Printf("Archived plan %s.\n", archived.ID)
	case "archives":
		plans, err := a.Archive(uid).List(ctx)
		if err != nil {
			return err
		}
		for i, p := range plans {
			fmt.Printf("%d. %s  %s  %s\n", i+1, p.ID, p.SavedAt.Format("2006-01-02"), strings.Join(p.MealNames(), ", "))
		}
	case "restore":
		if len(args) != 1 {
			return fmt.Errorf("usage: restore <archive-id>")
		}
		plan, err := a.Archive(uid).Restore(ctx, args[0])
		if err != nil {
			return err
		}
		printPlan(plan)
	case "favorites":
		favs, err := a.Favorites(uid).List(ctx)
		if err != nil {
			return err
		}
		for _, f := range favs {
			fmt.Printf("- %s (%s)\n", f.RecipeName, f.MealSource)
		}
	case "clip":
		if len(args) != 1 {
			return fmt.Errorf("usage: clip <url>")
		}
		fav, err := a.Clip(ctx, uid, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Saved %q to favorites.\n", fav.RecipeName)
	case "share":
		token, err := a.ShareCurrent(ctx, uid)
		if err != nil {
			return err
		}
		fmt.Println(token)
	case "open":
		if len(args) != 1 {
			return fmt.Errorf("usage: open <token>")
		}
		sp, err := a.OpenShared(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Shared by %s on %s\n\n", sp.SharedBy, sp.SavedAt.Format("2006-01-02"))
		printPlan(&sp.WeeklyPlan)
	case "metrics":
		fs := flag.NewFlagSet("metrics", flag.ExitOnError)
		days := fs.Int("days", 7, "Number of days to report")
		fs.Parse(args)
		usage, err := a.Usage(*days)
		if err != nil {
			return err
		}
		for _, d := range usage {
			fmt.Printf("%s  prompt=%d completion=%d executions=%d\n", d.Date, d.TotalPrompt, d.TotalCompletion, d.TotalExecution)
		}
	case "metrics-cleanup":
		fs := flag.NewFlagSet("metrics-cleanup", flag.ExitOnError)
		days := fs.Int("days", 30, "Keep records for the last N days")
		fs.Parse(args)
		affected, err := a.CleanupUsage(*days)
		if err != nil {
			return err
		}
		fmt.Printf("Successfully removed %d old metric records.\n", affected)
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	return nil
}

// parseDays turns "2,5" into the zero-based meal indices [1 4]. Repeated
// days count once.
func parseDays(s string) ([]int, error) {
	var indices []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid day number %q: %w", part, err)
		}
		if n < 1 {
			return nil, fmt.Errorf("invalid day number %d", n)
		}
		if !slices.Contains(indices, n-1) {
			indices = append(indices, n-1)
		}
	}
	return indices, nil
}

// splitNames splits a comma separated list, dropping blanks and
// case-insensitive repeats.
func splitNames(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if slices.ContainsFunc(names, func(n string) bool { return strings.EqualFold(n, part) }) {
			continue
		}
		names = append(names, part)
	}
	return names
}

// pickFavorites marks the named favorites for inclusion in the next
// generation and turns injection on.
func pickFavorites(ctx context.Context, a *app.App, uid, list string) error {
	names := splitNames(list)
	if len(names) == 0 {
		return nil
	}
	a.Session(uid).SetUseFavorites(true)
	for _, name := range names {
		if _, err := a.ToggleFavoriteSelection(ctx, uid, name); err != nil {
			return err
		}
	}
	return nil
}

func itemNumber(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected one item number")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid item number %q: %w", args[0], err)
	}
	return n, nil
}

func printUsage() {
	fmt.Println("Usage: dinnerplan <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  plan [-fav A,B] <preferences>   Generate a new weekly plan")
	fmt.Println("  show                            Print the current plan")
	fmt.Println("  regen -days 2,5 [-fav A] [text] Replace the given days")
	fmt.Println("  cook -day N [-at HH:MM]         Recipe and timeline for a day")
	fmt.Println("  list                            Print the shopping list")
	fmt.Println("  check N                         Tick or untick item N")
	fmt.Println("  add [-qty Q] [-category C] name Add a shopping item")
	fmt.Println("  archive                         Archive the current plan")
	fmt.Println("  archives                        List archived plans")
	fmt.Println("  restore <id>                    Make an archived plan current")
	fmt.Println("  favorites                       List favorite recipes")
	fmt.Println("  clip <url>                      Save a recipe from a web page")
	fmt.Println("  share                           Print a share token for the plan")
	fmt.Println("  open <token>                    Print a shared plan")
	fmt.Println("  metrics [-days N]               Daily token usage")
	fmt.Println("  metrics-cleanup [-days N]       Remove old metric records")
}
