package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"contesthub/internal/domain"
	"contesthub/internal/reminder"
	"contesthub/internal/storage"
)

const (
	contestListLimit = 10
	timeLayout       = "Mon, 02 Jan 2006 15:04 MST"
)

// ContestLister is the read side of the contest store.
type ContestLister interface {
	ListContests(ctx context.Context, filter storage.ContestFilter) (storage.ContestPage, error)
}

// Bookmarker manages bookmarks and their reminders.
type Bookmarker interface {
	Bookmark(ctx context.Context, r reminder.Recipient, contestName string, custom *time.Time) (domain.Bookmark, error)
	Unbookmark(ctx context.Context, userID int64, contestName string) (bool, error)
	Bookmarks(ctx context.Context, userID int64) ([]domain.Bookmark, error)
}

// Handler holds dependencies for the Telegram bot handlers.
type Handler struct {
	bot       *tgbot.Bot
	contests  ContestLister
	bookmarks Bookmarker
	now       func() time.Time
	log       logrus.FieldLogger
}

// NewHandler creates the bot and routes every text message through a
// single command dispatcher.
func NewHandler(token string, contests ContestLister, bookmarks Bookmarker, logger logrus.FieldLogger) (*Handler, error) {
	log := logger.WithField("component", "bot_handler")

	h := &Handler{
		contests:  contests,
		bookmarks: bookmarks,
		now:       time.Now,
		log:       log,
	}

	b, err := tgbot.New(token, tgbot.WithDefaultHandler(h.defaultHandler))
	if err != nil {
		log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	h.bot = b

	log.Info("Telegram bot handler initialized")
	return h, nil
}

// Bot exposes the client so reminders can be delivered through it.
func (h *Handler) Bot() *tgbot.Bot {
	return h.bot
}

// Start begins polling for updates from Telegram.
// This function blocks until the context is cancelled.
func (h *Handler) Start(ctx context.Context) {
	h.log.Info("Starting Telegram bot polling...")
	h.bot.Start(ctx)
	h.log.Info("Telegram bot polling stopped.")
}

func (h *Handler) defaultHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	msg := update.Message
	log := h.log.WithFields(logrus.Fields{
		"user_id": msg.From.ID,
		"chat_id": msg.Chat.ID,
	})

	reply := h.respond(ctx, msg.From.ID, msg.Chat.ID, msg.Text)
	if reply == "" {
		return
	}
	_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    msg.Chat.ID,
		Text:      reply,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		log.WithError(err).Error("Failed to send reply")
	}
}

// respond executes the command in text and returns the HTML reply.
func (h *Handler) respond(ctx context.Context, userID, chatID int64, text string) string {
	cmd, args := parseCommand(text)
	log := h.log.WithFields(logrus.Fields{"user_id": userID, "command": cmd})
	if cmd != "" {
		log.Info("Received command")
	}

	switch cmd {
	case "/start", "/help":
		return welcomeMessage
	case "/contests":
		return h.listContests(ctx, log, args)
	case "/bookmark":
		return h.bookmark(ctx, log, userID, chatID, args)
	case "/unbookmark":
		return h.unbookmark(ctx, log, userID, args)
	case "/bookmarks":
		return h.listBookmarks(ctx, log, userID)
	case "":
		log.WithField("text", text).Debug("Received unhandled message (default handler)")
		return ""
	default:
		return "Unknown command.\n\n" + welcomeMessage
	}
}

const welcomeMessage = "Welcome to ContestHub! I track upcoming programming contests and remind you before they start.\n\n" +
	"/contests [platform] - upcoming contests\n" +
	"/bookmark &lt;contest name&gt; [| 2026-10-25T14:00:00Z] - get a reminder\n" +
	"/unbookmark &lt;contest name&gt; - drop a bookmark\n" +
	"/bookmarks - your bookmarks"

func (h *Handler) listContests(ctx context.Context, log logrus.FieldLogger, args string) string {
	filter := storage.ContestFilter{StartAfter: h.now(), Limit: contestListLimit}
	if args != "" {
		p, ok := domain.ParsePlatform(args)
		if !ok {
			return fmt.Sprintf("Unknown platform %q.", html.EscapeString(args))
		}
		filter.Platform = p
	}

	page, err := h.contests.ListContests(ctx, filter)
	if err != nil {
		log.WithError(err).Error("Failed to list contests")
		return "Sorry, I could not load contests right now."
	}
	if len(page.Contests) == 0 {
		return "No upcoming contests."
	}

	var sb strings.Builder
	sb.WriteString("<b>Upcoming contests</b>\n")
	for _, c := range page.Contests {
		fmt.Fprintf(&sb, "\n<a href=\"%s\">%s</a> (%s)\n%s, %s\n",
			html.EscapeString(c.URL), html.EscapeString(c.Name), c.Platform,
			c.StartTime.UTC().Format(timeLayout), c.Duration)
	}
	return sb.String()
}

func (h *Handler) bookmark(ctx context.Context, log logrus.FieldLogger, userID, chatID int64, args string) string {
	name, custom, err := parseBookmarkArgs(args)
	if err != nil {
		return html.EscapeString(err.Error())
	}

	r := reminder.Recipient{UserID: userID, Address: strconv.FormatInt(chatID, 10)}
	b, err := h.bookmarks.Bookmark(ctx, r, name, custom)
	switch {
	case errors.Is(err, reminder.ErrAlreadyBookmarked):
		return fmt.Sprintf("You already bookmarked <b>%s</b>.", html.EscapeString(name))
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Sprintf("No contest named <b>%s</b>. Use /contests to see exact names.", html.EscapeString(name))
	case err != nil:
		log.WithError(err).Error("Failed to bookmark contest")
		return "Sorry, I could not save that bookmark."
	}

	if b.JobID == "" {
		return fmt.Sprintf("Bookmarked <b>%s</b>. The reminder time has already passed, so no reminder will be sent.", html.EscapeString(name))
	}
	return fmt.Sprintf("Bookmarked <b>%s</b>. I will remind you at %s.", html.EscapeString(name), b.ReminderAt.UTC().Format(timeLayout))
}

func (h *Handler) unbookmark(ctx context.Context, log logrus.FieldLogger, userID int64, args string) string {
	name := strings.TrimSpace(args)
	if name == "" {
		return "Usage: /unbookmark &lt;contest name&gt;"
	}
	_, err := h.bookmarks.Unbookmark(ctx, userID, name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Sprintf("<b>%s</b> is not bookmarked.", html.EscapeString(name))
	case err != nil:
		log.WithError(err).Error("Failed to remove bookmark")
		return "Sorry, I could not remove that bookmark."
	}
	return fmt.Sprintf("Removed <b>%s</b> from your bookmarks.", html.EscapeString(name))
}

func (h *Handler) listBookmarks(ctx context.Context, log logrus.FieldLogger, userID int64) string {
	bookmarks, err := h.bookmarks.Bookmarks(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Failed to list bookmarks")
		return "Sorry, I could not load your bookmarks."
	}
	if len(bookmarks) == 0 {
		return "You have no bookmarks yet."
	}

	var sb strings.Builder
	sb.WriteString("<b>Your bookmarks</b>\n")
	for _, b := range bookmarks {
		fmt.Fprintf(&sb, "\n<b>%s</b>\nreminder: %s\n", html.EscapeString(b.ContestName), b.ReminderAt.UTC().Format(timeLayout))
	}
	return sb.String()
}

// parseCommand splits "/cmd@BotName args" into "/cmd" and "args". Text that
// is not a command yields an empty cmd.
func parseCommand(text string) (cmd, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	cmd, args, _ = strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), strings.TrimSpace(args)
}

// parseBookmarkArgs reads "<contest name> [| <RFC3339 time>]".
func parseBookmarkArgs(args string) (string, *time.Time, error) {
	name, at, hasTime := strings.Cut(args, "|")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, errors.New("Usage: /bookmark <contest name> [| 2026-10-25T14:00:00Z]")
	}
	if !hasTime {
		return name, nil, nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(at))
	if err != nil {
		return "", nil, fmt.Errorf("Invalid reminder time %q, use RFC3339 like 2026-10-25T14:00:00Z", strings.TrimSpace(at))
	}
	return name, &t, nil
}
