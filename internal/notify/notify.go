// Package notify delivers reminder messages to users.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
)

// Message is a rendered notification.
type Message struct {
	// To is the recipient address; for Telegram it is the chat id.
	To      string
	Subject string
	Text    string
	HTML    string
}

// Dispatcher delivers messages. A returned error means the message was not
// delivered and may be retried.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// MessageSender is the part of *tgbot.Bot used for delivery.
type MessageSender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
}

// TelegramDispatcher sends messages as HTML formatted Telegram messages.
type TelegramDispatcher struct {
	sender MessageSender
	log    logrus.FieldLogger
}

func NewTelegramDispatcher(sender MessageSender, logger logrus.FieldLogger) *TelegramDispatcher {
	return &TelegramDispatcher{
		sender: sender,
		log:    logger.WithField("component", "telegram_dispatcher"),
	}
}

func (d *TelegramDispatcher) Send(ctx context.Context, msg Message) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.To), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", msg.To, err)
	}

	params := &tgbot.SendMessageParams{ChatID: chatID}
	if msg.HTML != "" {
		params.Text = msg.HTML
		params.ParseMode = models.ParseModeHTML
	} else {
		params.Text = msg.Text
	}
	if params.Text == "" {
		return errors.New("empty message body")
	}

	if _, err := d.sender.SendMessage(ctx, params); err != nil {
		d.log.WithError(err).WithField("chat_id", chatID).Error("Failed to send telegram message")
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	d.log.WithField("chat_id", chatID).Debug("Telegram message sent")
	return nil
}

// LogDispatcher writes messages to the log instead of delivering them.
type LogDispatcher struct {
	log logrus.FieldLogger
}

func NewLogDispatcher(logger logrus.FieldLogger) *LogDispatcher {
	return &LogDispatcher{log: logger.WithField("component", "log_dispatcher")}
}

func (d *LogDispatcher) Send(ctx context.Context, msg Message) error {
	d.log.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info(msg.Text)
	return nil
}
