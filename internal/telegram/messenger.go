// Package telegram adapts the Telegram Bot API to the pipeline's Messenger
// and routes inbound updates.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/amishk599/jobrelay/internal/model"
)

// MaxMessageRunes is the Bot API limit on message text length.
const MaxMessageRunes = 4096

// API is the subset of *bot.Bot used by the messenger.
type API interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// Messenger implements model.Messenger and model.Acknowledger. Recipients are
// numeric chat ids or @usernames.
type Messenger struct {
	api    API
	logger *slog.Logger
}

func NewMessenger(api API, logger *slog.Logger) *Messenger {
	return &Messenger{api: api, logger: logger}
}

func (m *Messenger) SendText(ctx context.Context, recipient, text string) error {
	_, err := m.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:             chatID(recipient),
		Text:               text,
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: bot.True()},
	})
	if err != nil {
		return fmt.Errorf("telegram send to %s: %w", recipient, classifyError(err))
	}
	return nil
}

func (m *Messenger) SendFile(ctx context.Context, recipient, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return &model.SendError{Kind: model.KindPermanent, Err: fmt.Errorf("opening %s: %w", path, err)}
	}
	defer f.Close()

	_, err = m.api.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   chatID(recipient),
		Document: &models.InputFileUpload{Filename: filepath.Base(path), Data: f},
		Caption:  caption,
	})
	if err != nil {
		return fmt.Errorf("telegram document to %s: %w", recipient, classifyError(err))
	}
	return nil
}

// SendInteractive returns the message id encoded as "<chat_id>:<message_id>",
// which is unique across chats.
func (m *Messenger) SendInteractive(ctx context.Context, recipient, text string, actions [][]model.Action) (string, error) {
	msg, err := m.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:             chatID(recipient),
		Text:               text,
		ReplyMarkup:        keyboard(actions),
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: bot.True()},
	})
	if err != nil {
		return "", fmt.Errorf("telegram notification to %s: %w", recipient, classifyError(err))
	}
	return EncodeMessageID(msg.Chat.ID, msg.ID), nil
}

func (m *Messenger) EditMessage(ctx context.Context, recipient, messageID, text string, actions [][]model.Action) error {
	chat, id, err := DecodeMessageID(messageID)
	if err != nil {
		return err
	}
	_, err = m.api.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      chat,
		MessageID:   id,
		Text:        text,
		ReplyMarkup: keyboard(actions),
	})
	if err != nil {
		if isNotModified(err) {
			return nil
		}
		return fmt.Errorf("telegram edit %s: %w", messageID, classifyError(err))
	}
	return nil
}

func (m *Messenger) Acknowledge(ctx context.Context, callbackID, text string, alert bool) error {
	_, err := m.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		return fmt.Errorf("telegram answer callback: %w", classifyError(err))
	}
	return nil
}

func keyboard(actions [][]model.Action) models.ReplyMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(actions))
	for _, row := range actions {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, a := range row {
			buttons = append(buttons, models.InlineKeyboardButton{
				Text:         a.Label,
				CallbackData: EncodeCallback(a.Kind, a.Fingerprint),
			})
		}
		rows = append(rows, buttons)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// chatID turns a recipient into what the Bot API accepts: an int64 chat id or
// an "@username" string.
func chatID(recipient string) any {
	recipient = strings.TrimSpace(recipient)
	if id, err := strconv.ParseInt(recipient, 10, 64); err == nil {
		return id
	}
	if !strings.HasPrefix(recipient, "@") {
		return "@" + recipient
	}
	return recipient
}

// EncodeMessageID joins a chat id and message id.
func EncodeMessageID(chat int64, id int) string {
	return fmt.Sprintf("%d:%d", chat, id)
}

// DecodeMessageID splits an id produced by EncodeMessageID.
func DecodeMessageID(s string) (int64, int, error) {
	chatPart, idPart, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed message id %q", s)
	}
	chat, err := strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed chat id in %q: %w", s, err)
	}
	id, err := strconv.Atoi(idPart)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed message id in %q: %w", s, err)
	}
	return chat, id, nil
}

// EncodeCallback renders button data as "<kind>:<fingerprint>". Fingerprints
// are 32 characters, well inside the 64-byte callback limit.
func EncodeCallback(kind model.ActionKind, fingerprint string) string {
	return string(kind) + ":" + fingerprint
}

// ParseCallback reverses EncodeCallback.
func ParseCallback(data string) (model.ActionKind, string, error) {
	kind, fp, ok := strings.Cut(data, ":")
	if !ok || fp == "" {
		return "", "", fmt.Errorf("malformed callback data %q", data)
	}
	switch k := model.ActionKind(kind); k {
	case model.ActionConfirm, model.ActionSkip, model.ActionFullText:
		return k, fp, nil
	default:
		return "", "", fmt.Errorf("unknown callback action %q", kind)
	}
}
