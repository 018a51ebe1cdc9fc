package bot

import (
	"context"
	"fmt"
	"iter"
	"regexp"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"recall/internal/config"
	"recall/internal/domain"
)

// Importer is the slice of importer.Service the bot drives.
type Importer interface {
	ImportOne(ctx context.Context, rawURL, ownerID string) (domain.SavedItem, error)
	BulkImport(ctx context.Context, urls []string, ownerID string) (iter.Seq[domain.Progress], error)
	ListItems(ctx context.Context, ownerID string) ([]domain.SavedItem, error)
}

// messenger is the part of the Telegram client the handlers use.
type messenger interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *tgbot.EditMessageTextParams) (*models.Message, error)
}

const listLimit = 10

// Handler holds dependencies for the Telegram bot handlers.
type Handler struct {
	bot   *tgbot.Bot
	items Importer
	log   logrus.FieldLogger
}

// NewHandler creates a new bot handler instance.
func NewHandler(cfg config.Config, items Importer, logger logrus.FieldLogger) (*Handler, error) {
	log := logger.WithField("component", "bot_handler")

	h := &Handler{
		items: items,
		log:   log,
	}

	// Plain messages fall through to the default handler, which picks URLs out of the text.
	b, err := tgbot.New(cfg.TelegramBotToken, tgbot.WithDefaultHandler(h.defaultHandler))
	if err != nil {
		log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	h.bot = b
	h.registerHandlers()

	log.Info("Telegram bot handler initialized")
	return h, nil
}

func (h *Handler) registerHandlers() {
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, h.startHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/list", tgbot.MatchTypeExact, h.listHandler)
	h.log.Info("Registered /start and /list command handlers")
}

// Start begins polling for updates from Telegram.
// This function blocks until the context is cancelled.
func (h *Handler) Start(ctx context.Context) {
	h.log.Info("Starting Telegram bot polling...")
	h.bot.Start(ctx)
	h.log.Info("Telegram bot polling stopped.")
}

// ownerID namespaces Telegram users so they never collide with web accounts.
func ownerID(userID int64) string {
	return fmt.Sprintf("telegram:%d", userID)
}

func (h *Handler) startHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	h.start(ctx, b, update.Message.Chat.ID, update.Message.From.ID)
}

func (h *Handler) listHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	h.list(ctx, b, update.Message.Chat.ID, update.Message.From.ID)
}

func (h *Handler) defaultHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	h.handleText(ctx, b, update.Message.Chat.ID, update.Message.From.ID, update.Message.Text)
}

func (h *Handler) start(ctx context.Context, m messenger, chatID, userID int64) {
	log := h.log.WithFields(logrus.Fields{"user_id": userID, "command": "/start"})
	log.Info("Received /start command")

	welcome := "Welcome to Recall! Send me a link and I'll save the article for you. " +
		"Send several links in one message to import them all. Use /list to see what you've saved."
	h.send(ctx, m, chatID, welcome)
}

func (h *Handler) list(ctx context.Context, m messenger, chatID, userID int64) {
	items, err := h.items.ListItems(ctx, ownerID(userID))
	if err != nil {
		h.log.WithError(err).WithField("user_id", userID).Error("Failed to list items")
		h.send(ctx, m, chatID, "Sorry, I couldn't load your saved items right now.")
		return
	}
	h.send(ctx, m, chatID, formatList(items))
}

// handleText imports every URL found in text.
func (h *Handler) handleText(ctx context.Context, m messenger, chatID, userID int64, text string) {
	log := h.log.WithField("user_id", userID)
	urls := extractURLs(text)

	switch len(urls) {
	case 0:
		log.Debug("Message without URLs ignored")
		h.send(ctx, m, chatID, "Send me a link to save, or use /list to see your items.")
	case 1:
		item, err := h.items.ImportOne(ctx, urls[0], ownerID(userID))
		if err != nil {
			log.WithError(err).WithField("url", urls[0]).Error("Import failed")
			h.send(ctx, m, chatID, "Sorry, I couldn't save that link.")
			return
		}
		if item.Status != domain.StatusCompleted {
			h.send(ctx, m, chatID, fmt.Sprintf("Saved %s, but I couldn't fetch its content.", item.URL))
			return
		}
		h.send(ctx, m, chatID, fmt.Sprintf("Saved: %s", displayTitle(item)))
	default:
		h.bulk(ctx, m, chatID, userID, urls)
	}
}

func (h *Handler) bulk(ctx context.Context, m messenger, chatID, userID int64, urls []string) {
	log := h.log.WithFields(logrus.Fields{"user_id": userID, "total": len(urls)})

	seq, err := h.items.BulkImport(ctx, urls, ownerID(userID))
	if err != nil {
		log.WithError(err).Warn("Bulk import rejected")
		h.send(ctx, m, chatID, "Sorry, I couldn't start that import.")
		return
	}

	status, err := m.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   fmt.Sprintf("Importing %d URLs...", len(urls)),
	})
	if err != nil {
		log.WithError(err).Error("Failed to send progress message")
		return
	}

	var tally domain.Tally
	for p := range seq {
		tally.Add(p)
		h.edit(ctx, m, chatID, status.ID, fmt.Sprintf("Importing %d/%d (%d%%)", tally.Completed, tally.Total, tally.Percent()))
	}
	h.edit(ctx, m, chatID, status.ID, tally.Message())
	log.WithFields(logrus.Fields{"succeeded": tally.Succeeded, "failed": tally.Failed}).Info("Bulk import from chat finished")
}

func (h *Handler) send(ctx context.Context, m messenger, chatID int64, text string) {
	if _, err := m.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		h.log.WithError(err).WithField("chat_id", chatID).Error("Failed to send message")
	}
}

func (h *Handler) edit(ctx context.Context, m messenger, chatID int64, messageID int, text string) {
	_, err := m.EditMessageText(ctx, &tgbot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	})
	if err != nil {
		h.log.WithError(err).WithField("chat_id", chatID).Warn("Failed to update progress message")
	}
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// extractURLs returns the distinct valid http(s) URLs in text, in order.
func extractURLs(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, raw := range urlPattern.FindAllString(text, -1) {
		u := strings.TrimRight(raw, ".,;:!?)]}'")
		if seen[u] || domain.ValidateURL(u) != nil {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func displayTitle(item domain.SavedItem) string {
	if t := domain.Deref(item.Title); t != "" {
		return t
	}
	return item.URL
}

func formatList(items []domain.SavedItem) string {
	if len(items) == 0 {
		return "You haven't saved anything yet. Send me a link to get started."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Your latest items (%d total):\n", len(items))
	for i, item := range items {
		if i == listLimit {
			break
		}
		fmt.Fprintf(&sb, "\n%d. %s", i+1, displayTitle(item))
		if item.Status != domain.StatusCompleted {
			fmt.Fprintf(&sb, " [%s]", strings.ToLower(string(item.Status)))
		}
		fmt.Fprintf(&sb, "\n%s", item.URL)
	}
	return sb.String()
}
