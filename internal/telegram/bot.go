// Package telegram is the chat surface of the planner.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"dinnerplan/internal/app"
	"dinnerplan/internal/archive"
	"dinnerplan/internal/clipper"
	"dinnerplan/internal/config"
	"dinnerplan/internal/metrics"
	"dinnerplan/internal/planner"
	"dinnerplan/internal/recipe"
	"dinnerplan/internal/share"
	"dinnerplan/internal/shopping"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// API is the part of the Telegram client the bot uses. *tgbotapi.BotAPI
// satisfies it.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Options configures a Bot.
type Options struct {
	AllowedUserIDs []int64
	AdminID        int64
	// DataDir is measured for the health report.
	DataDir string
	Logger  *zap.Logger
}

// Bot routes Telegram updates to the application.
type Bot struct {
	api     API
	app     *app.App
	allowed map[int64]bool
	adminID int64
	dataDir string
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	// mu orders wg.Add against Shutdown; closing is set once Shutdown starts.
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// Connect authorizes against the Bot API and registers the webhook.
func Connect(cfg *config.Config, logger *zap.Logger) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	logger.Info("authorized on telegram", zap.String("account", api.Self.UserName))

	wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.TelegramWebhookURL, err)
	}
	resp, err := api.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	logger.Info("webhook set", zap.String("description", resp.Description))
	return api, nil
}

// NewBot creates a bot answering through api.
func NewBot(api API, a *app.App, opts Options) *Bot {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[int64]bool, len(opts.AllowedUserIDs))
	for _, id := range opts.AllowedUserIDs {
		allowed[id] = true
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		api:     api,
		app:     a,
		allowed: allowed,
		adminID: opts.AdminID,
		dataDir: opts.DataDir,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// HandleWebhook acknowledges an update and processes it in the background.
func (b *Bot) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		b.logger.Warn("error parsing update", zap.Error(err))
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()
	w.WriteHeader(http.StatusOK)

	go func() {
		defer b.wg.Done()
		b.HandleUpdate(b.ctx, update)
	}()
}

// Shutdown refuses new updates, cancels in-flight ones and waits for them,
// or for ctx.
func (b *Bot) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closing = true
	b.mu.Unlock()
	b.cancel()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleUpdate processes one update synchronously.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		if q.From == nil || q.Message == nil || !b.authorized(q.From) {
			return
		}
		b.handleCallbackQuery(ctx, q)
	case update.Message != nil:
		msg := update.Message
		if msg.From == nil || msg.Chat == nil || !b.authorized(msg.From) {
			return
		}
		b.processMessage(ctx, msg)
	}
}

func (b *Bot) authorized(u *tgbotapi.User) bool {
	if b.allowed[u.ID] {
		return true
	}
	b.logger.Warn("unauthorized access attempt", zap.Int64("telegram_user_id", u.ID), zap.String("username", u.UserName))
	return false
}

type reply struct {
	text     string
	keyboard *tgbotapi.InlineKeyboardMarkup
}

func text(format string, args ...any) []reply {
	return []reply{{text: fmt.Sprintf(format, args...)}}
}

func userID(u *tgbotapi.User) string {
	return strconv.FormatInt(u.ID, 10)
}

func (b *Bot) processMessage(ctx context.Context, msg *tgbotapi.Message) {
	uid := userID(msg.From)
	chatID := msg.Chat.ID

	if !msg.IsCommand() {
		t := strings.TrimSpace(msg.Text)
		switch {
		case t == "":
			return
		case strings.HasPrefix(t, "http://") || strings.HasPrefix(t, "https://"):
			b.withStatus(chatID, "✂️ *Clipping recipe...*", func() []reply { return b.clip(ctx, uid, t) })
		default:
			b.withStatus(chatID, "🧑‍🍳 *Thinking...*\n(Generating your plan)", func() []reply { return b.plan(ctx, uid, t) })
		}
		return
	}

	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start", "help":
		b.send(chatID, text("%s", helpText))
	case "plan":
		if args == "" {
			b.send(chatID, text("Tell me what you would like, e.g. `/plan quick vegetarian dinners`"))
			return
		}
		b.withStatus(chatID, "🧑‍🍳 *Thinking...*\n(Generating your plan)", func() []reply { return b.plan(ctx, uid, args) })
	case "show":
		b.send(chatID, b.show(ctx, uid))
	case "select":
		b.send(chatID, b.selectDays(ctx, uid, args))
	case "regen":
		b.withStatus(chatID, "🔁 *Replacing selected dinners...*", func() []reply { return b.regenerate(ctx, uid, args) })
	case "swap":
		b.send(chatID, b.swap(ctx, uid, args))
	case "cook":
		b.withStatus(chatID, "🍳 *Writing the recipe...*", func() []reply { return b.cook(ctx, uid, args) })
	case "fav":
		b.send(chatID, b.toggleFavorite(ctx, uid))
	case "favorites":
		b.send(chatID, b.favorites(ctx, uid))
	case "usefav":
		b.send(chatID, b.useFavorites(ctx, uid, args))
	case "list":
		b.send(chatID, b.shoppingList(ctx, uid))
	case "check", "remove", "add":
		b.send(chatID, b.editList(ctx, uid, msg.Command(), args))
	case "archive":
		b.send(chatID, b.archive(ctx, uid))
	case "archives":
		b.send(chatID, b.archives(ctx, uid))
	case "restore":
		b.send(chatID, b.restore(ctx, uid, args))
	case "share":
		b.send(chatID, b.share(ctx, uid))
	case "open":
		b.send(chatID, b.open(ctx, args))
	case "metrics":
		if msg.From.ID != b.adminID {
			b.send(chatID, text("⛔ *Access Denied*: Admin only."))
			return
		}
		b.send(chatID, b.report())
	default:
		b.send(chatID, text("Unknown command. Try /help"))
	}
}

func (b *Bot) handleCallbackQuery(ctx context.Context, q *tgbotapi.CallbackQuery) {
	// Answer callback to remove spinner
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		b.logger.Warn("failed to answer callback", zap.Error(err))
	}

	action, arg, _ := strings.Cut(q.Data, "|")
	index, err := strconv.Atoi(arg)
	if err != nil {
		return
	}
	uid := userID(q.From)
	chatID := q.Message.Chat.ID

	switch action {
	case "sel":
		b.app.ToggleMealSelection(uid, index)
		replies := b.show(ctx, uid)
		b.edit(chatID, q.Message.MessageID, replies[0])
	case "cook":
		b.withStatus(chatID, "🍳 *Writing the recipe...*", func() []reply {
			return b.cook(ctx, uid, strconv.Itoa(index+1))
		})
	}
}

// withStatus shows status while work runs, then replaces it with the first
// reply and sends the rest as new messages.
func (b *Bot) withStatus(chatID int64, status string, work func() []reply) {
	msg := tgbotapi.NewMessage(chatID, status)
	msg.ParseMode = tgbotapi.ModeMarkdown
	sent, err := b.api.Send(msg)
	if err != nil {
		b.logger.Warn("failed to send initial reply", zap.Error(err))
		return
	}
	replies := work()
	if len(replies) == 0 {
		return
	}
	b.edit(chatID, sent.MessageID, replies[0])
	b.send(chatID, replies[1:])
}

func (b *Bot) send(chatID int64, replies []reply) {
	for _, r := range replies {
		msg := tgbotapi.NewMessage(chatID, r.text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if r.keyboard != nil {
			msg.ReplyMarkup = *r.keyboard
		}
		if _, err := b.api.Send(msg); err != nil {
			b.logger.Warn("failed to send message", zap.Error(err))
		}
	}
}

func (b *Bot) edit(chatID int64, messageID int, r reply) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, r.text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	edit.ReplyMarkup = r.keyboard
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Warn("failed to edit message", zap.Error(err))
	}
}

func (b *Bot) planReplies(plan *planner.WeeklyPlan, selected []int) []reply {
	planText, shoppingText := formatPlanMarkdownParts(plan, selected)
	return []reply{
		{text: planText, keyboard: planKeyboard(plan)},
		{text: shoppingText},
	}
}

func planKeyboard(plan *planner.WeeklyPlan) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(plan.WeeklyPlan))
	for i, m := range plan.WeeklyPlan {
		day := m.Day
		if len(day) > 3 {
			day = day[:3]
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🍳 "+day, fmt.Sprintf("cook|%d", i)),
			tgbotapi.NewInlineKeyboardButtonData("🔁 "+day, fmt.Sprintf("sel|%d", i)),
		))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func (b *Bot) plan(ctx context.Context, uid, query string) []reply {
	plan, err := b.app.GeneratePlan(ctx, uid, query)
	if err != nil {
		return b.failure("generating plan", err)
	}
	return b.planReplies(plan, nil)
}

func (b *Bot) show(ctx context.Context, uid string) []reply {
	plan, err := b.app.CurrentPlan(ctx, uid)
	if err != nil {
		return b.failure("loading plan", err)
	}
	return b.planReplies(plan, b.app.Session(uid).Selection.Indices())[:1]
}

func (b *Bot) selectDays(ctx context.Context, uid, args string) []reply {
	days, err := parseNumbers(args)
	if err != nil || len(days) == 0 {
		return text("Give day numbers from the plan, e.g. `/select 2 5`")
	}
	slices.Sort(days)
	for _, d := range slices.Compact(days) {
		b.app.ToggleMealSelection(uid, d-1)
	}
	return b.show(ctx, uid)
}

func (b *Bot) regenerate(ctx context.Context, uid, constraint string) []reply {
	plan, err := b.app.Regenerate(ctx, uid, constraint)
	if err != nil {
		return b.failure("regenerating plan", err)
	}
	return b.planReplies(plan, nil)
}

func (b *Bot) swap(ctx context.Context, uid, args string) []reply {
	nums, err := parseNumbers(args)
	if err != nil || len(nums) != 2 {
		return text("Give two day numbers, e.g. `/swap 1 4`")
	}
	plan, err := b.app.SwapMeals(ctx, uid, nums[0]-1, nums[1]-1)
	if err != nil {
		return b.failure("swapping meals", err)
	}
	return b.planReplies(plan, nil)[:1]
}

func (b *Bot) cook(ctx context.Context, uid, args string) []reply {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return text("Pick a day number from the plan, e.g. `/cook 2 19:30`")
	}
	day, err := strconv.Atoi(fields[0])
	if err != nil {
		return text("Pick a day number from the plan, e.g. `/cook 2 19:30`")
	}
	dinnerTime := ""
	if len(fields) > 1 {
		dinnerTime = fields[1]
	}
	cooking, err := b.app.Cook(ctx, uid, day-1, dinnerTime)
	if err != nil {
		return b.failure("writing recipe", err)
	}
	return text("%s\n⭐ /fav to save it", formatCooking(cooking))
}

func (b *Bot) toggleFavorite(ctx context.Context, uid string) []reply {
	on, err := b.app.ToggleFavorite(ctx, uid)
	if err != nil {
		return b.failure("updating favorites", err)
	}
	if on {
		return text("⭐ Saved to favorites.")
	}
	return text("Removed from favorites.")
}

func (b *Bot) favorites(ctx context.Context, uid string) []reply {
	favs, err := b.app.Favorites(uid).List(ctx)
	if err != nil {
		return b.failure("loading favorites", err)
	}
	sess := b.app.Session(uid)
	return text("%s", formatFavorites(favs, sess.UseFavorites(), sess.FavoriteSelection()))
}

func (b *Bot) useFavorites(ctx context.Context, uid, args string) []reply {
	switch strings.ToLower(args) {
	case "":
		return text("Use `/usefav on`, `/usefav off` or `/usefav <favorite name>`")
	case "on":
		b.app.Session(uid).SetUseFavorites(true)
		if len(b.app.Session(uid).FavoriteSelection()) == 0 {
			return text("⭐ Favorites injection is on. Pick meals with `/usefav <favorite name>`.")
		}
		return text("⭐ New plans will include your picked favorites.")
	case "off":
		b.app.Session(uid).SetUseFavorites(false)
		return text("New plans will not include favorites.")
	}
	picked, err := b.app.ToggleFavoriteSelection(ctx, uid, args)
	if err != nil {
		return b.failure("picking favorite", err)
	}
	if len(picked) == 0 {
		return text("No favorites picked.")
	}
	return text("📌 Picked for new plans: %s", strings.Join(picked, ", "))
}

func (b *Bot) shoppingList(ctx context.Context, uid string) []reply {
	plan, err := b.app.CurrentPlan(ctx, uid)
	if err != nil {
		return b.failure("loading shopping list", err)
	}
	return text("%s", formatShoppingList(plan.ShoppingList))
}

func (b *Bot) editList(ctx context.Context, uid, cmd, args string) []reply {
	var (
		list []shopping.Item
		err  error
	)
	switch cmd {
	case "add":
		parts := strings.Split(args, "|")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if parts[0] == "" {
			return text("Use `/add item | quantity | category`")
		}
		item := shopping.Item{Item: parts[0]}
		if len(parts) > 1 {
			item.Quantity = parts[1]
		}
		if len(parts) > 2 {
			item.Category = parts[2]
		}
		list, err = b.app.AddShoppingItem(ctx, uid, item)
	default:
		n, convErr := strconv.Atoi(args)
		if convErr != nil {
			return text("Give an item number from /list, e.g. `/%s 3`", cmd)
		}
		if cmd == "check" {
			list, err = b.app.ToggleShoppingItem(ctx, uid, n-1)
		} else {
			list, err = b.app.RemoveShoppingItem(ctx, uid, n-1)
		}
	}
	if err != nil {
		return b.failure("updating shopping list", err)
	}
	return text("%s", formatShoppingList(list))
}

func (b *Bot) archive(ctx context.Context, uid string) []reply {
	if _, err := b.app.ArchiveCurrent(ctx, uid); err != nil {
		return b.failure("archiving plan", err)
	}
	return text("🗄 Plan archived.")
}

func (b *Bot) archives(ctx context.Context, uid string) []reply {
	plans, err := b.app.Archive(uid).List(ctx)
	if err != nil {
		return b.failure("loading archive", err)
	}
	return text("%s", formatArchive(plans))
}

func (b *Bot) restore(ctx context.Context, uid, args string) []reply {
	n, err := strconv.Atoi(args)
	if err != nil {
		return text("Give a number from /archives, e.g. `/restore 2`")
	}
	svc := b.app.Archive(uid)
	plans, err := svc.List(ctx)
	if err != nil {
		return b.failure("loading archive", err)
	}
	if n < 1 || n > len(plans) {
		return text("There is no archived plan %d.", n)
	}
	plan, err := svc.Restore(ctx, plans[n-1].ID)
	if err != nil {
		return b.failure("restoring plan", err)
	}
	return b.planReplies(plan, nil)
}

func (b *Bot) share(ctx context.Context, uid string) []reply {
	token, err := b.app.ShareCurrent(ctx, uid)
	if err != nil {
		return b.failure("sharing plan", err)
	}
	return text("🔗 Share this token:\n`%s`\nOpen it with /open", token)
}

func (b *Bot) open(ctx context.Context, token string) []reply {
	if token == "" {
		return text("Use `/open <token>`")
	}
	sp, err := b.app.OpenShared(ctx, token)
	if err != nil {
		return b.failure("opening shared plan", err)
	}
	planText, shoppingText := formatPlanMarkdownParts(&sp.WeeklyPlan, nil)
	return []reply{{text: planText}, {text: shoppingText}}
}

func (b *Bot) clip(ctx context.Context, uid, url string) []reply {
	fav, err := b.app.Clip(ctx, uid, url)
	if err != nil {
		return b.failure("clipping recipe", err)
	}
	return text("✅ *Recipe Saved!*\n\n*Title:* %s\n*Source:* %s", fav.RecipeName, fav.MealSource)
}

func (b *Bot) report() []reply {
	usage, err := b.app.Usage(7)
	if err != nil {
		return text("❌ Error fetching metrics.")
	}
	return text("%s", formatReport(usage, metrics.GetSysHealth(b.dataDir)))
}

// failure turns err into a user-visible notice. Known errors get a hint;
// anything else is shown verbatim.
func (b *Bot) failure(action string, err error) []reply {
	switch {
	case errors.Is(err, planner.ErrBusy):
		return text("⏳ Still working on your last request. Please wait.")
	case errors.Is(err, planner.ErrNoPlan):
		return text("No plan yet. Send your preferences to create one.")
	case errors.Is(err, planner.ErrNoSelection):
		return text("Select days to replace first, e.g. `/select 2 5`")
	case errors.Is(err, planner.ErrEmptyQuery):
		return text("Tell me what you would like, e.g. `/plan quick vegetarian dinners`")
	case errors.Is(err, recipe.ErrNoMealSelected):
		return text("Pick a day number from the plan, e.g. `/cook 2`")
	case errors.Is(err, recipe.ErrNoFavorite):
		return text("No favorite by that name. See /favorites")
	case errors.Is(err, planner.ErrTooManyFavorites):
		return text("More favorites are picked than days to plan. Unpick some with `/usefav <name>`.")
	case errors.Is(err, recipe.ErrInvalidDinnerTime):
		return text("Use a 24-hour time like `19:30`")
	case errors.Is(err, archive.ErrDuplicate):
		return text("This plan is already archived.")
	case errors.Is(err, app.ErrSharingDisabled):
		return text("Sharing is not enabled on this bot.")
	case errors.Is(err, share.ErrInvalidToken):
		return text("That share token is not valid.")
	case errors.Is(err, clipper.ErrNoRecipe):
		return text("I could not find a recipe on that page.")
	case errors.Is(err, shopping.ErrIndex):
		return text("There is no such item on the list.")
	case errors.Is(err, planner.ErrMalformedResponse):
		b.logger.Warn("unusable generation", zap.String("action", action), zap.Error(err))
		return text("The planner returned an unusable answer. Please try again.")
	}
	b.logger.Error("request failed", zap.String("action", action), zap.Error(err))
	safeErr := strings.ReplaceAll(err.Error(), "`", "'")
	return text("❌ *Error %s:*\n```\n%v\n```", action, safeErr)
}

func parseNumbers(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	nums := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		nums = append(nums, n)
	}
	return nums, nil
}
