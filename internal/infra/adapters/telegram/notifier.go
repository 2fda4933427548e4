package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"aswaq-payments/internal/domain/model"
	"aswaq-payments/internal/domain/ports/adapter"
	"aswaq-payments/internal/infra/metrics"
)

var _ adapter.Notifier = (*Notifier)(nil)

// sender is the subset of *tgbotapi.BotAPI used here.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts operator notices to a single Telegram chat.
type Notifier struct {
	bot    sender
	chatID int64
	log    *zerolog.Logger
}

func NewNotifier(token string, chatID int64, logger *zerolog.Logger) (*Notifier, error) {
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newNotifier(bot, chatID, logger), nil
}

func newNotifier(bot sender, chatID int64, logger *zerolog.Logger) *Notifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Notifier{bot: bot, chatID: chatID, log: logger}
}

func (n *Notifier) EntitlementGranted(ctx context.Context, e *model.Entitlement, pkg *model.PurchasablePackage) error {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Package purchased</b>\n")
	name := pkg.Name.En
	if name == "" {
		name = pkg.ID
	}
	fmt.Fprintf(&b, "Package: %s\n", html.EscapeString(name))
	fmt.Fprintf(&b, "Amount: %s %s\n", model.FromMinorUnits(e.AmountMinor, e.Currency).String(), html.EscapeString(e.Currency))
	fmt.Fprintf(&b, "Provider: %s (txn <code>%s</code>)\n", html.EscapeString(e.Provider), html.EscapeString(e.TransactionID))
	fmt.Fprintf(&b, "Expires: %s", e.ExpiresAt.UTC().Format("2006-01-02"))
	return n.send(ctx, "granted", b.String())
}

func (n *Notifier) SuspiciousWebhook(ctx context.Context, provider, remoteAddr string) error {
	text := fmt.Sprintf("<b>Rejected webhook</b>\nProvider: %s\nFrom: <code>%s</code>",
		html.EscapeString(provider), html.EscapeString(remoteAddr))
	return n.send(ctx, "suspicious", text)
}

func (n *Notifier) send(ctx context.Context, kind, text string) error {
	if err := ctx.Err(); err != nil {
		metrics.IncNotification(kind, "failed")
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		metrics.IncNotification(kind, "failed")
		n.log.Warn().Err(err).Str("kind", kind).Msg("telegram notification failed")
		return fmt.Errorf("telegram send: %w", err)
	}
	metrics.IncNotification(kind, "sent")
	return nil
}

// NoopNotifier logs notices instead of sending them.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &NoopNotifier{log: logger}
}

func (n *NoopNotifier) EntitlementGranted(ctx context.Context, e *model.Entitlement, pkg *model.PurchasablePackage) error {
	n.log.Info().Str("entitlement_id", e.ID).Str("package_id", pkg.ID).Str("provider", e.Provider).Msg("[noop-notifier] entitlement granted")
	metrics.IncNotification("granted", "sent")
	return nil
}

func (n *NoopNotifier) SuspiciousWebhook(ctx context.Context, provider, remoteAddr string) error {
	n.log.Info().Str("provider", provider).Str("remote_addr", remoteAddr).Msg("[noop-notifier] suspicious webhook")
	metrics.IncNotification("suspicious", "sent")
	return nil
}
