package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/amishk599/jobrelay/internal/model"
)

// Sink accepts inbound chat messages for classification and dispatch.
type Sink interface {
	TrySubmit(text string, meta model.SourceMeta) bool
}

// ActionHandler applies operator button presses.
type ActionHandler interface {
	HandleOperatorAction(ctx context.Context, a model.OperatorAction) error
}

// Handler routes Bot API updates: channel and group posts go to the Sink,
// operator commands go to Commands, and button presses go to the ActionHandler.
type Handler struct {
	operators map[int64]bool
	channels  map[string]bool // empty means every non-private chat
	messenger model.Messenger
	sink      Sink
	actions   ActionHandler
	commands  *Commands
	logger    *slog.Logger
}

// NewHandler returns a handler for the given operator chat ids and monitored
// channels (usernames without "@", or numeric chat ids).
func NewHandler(operators []string, channels []string, logger *slog.Logger) *Handler {
	ops := make(map[int64]bool, len(operators))
	for _, op := range operators {
		if id, err := strconv.ParseInt(strings.TrimSpace(op), 10, 64); err == nil {
			ops[id] = true
		}
	}
	chs := make(map[string]bool, len(channels))
	for _, ch := range channels {
		ch = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ch), "@"))
		if ch != "" {
			chs[ch] = true
		}
	}
	return &Handler{
		operators: ops,
		channels:  chs,
		logger:    logger,
	}
}

// Attach wires the collaborators that depend on the bot itself. It must be
// called before the bot starts polling.
func (h *Handler) Attach(messenger model.Messenger, sink Sink, actions ActionHandler, commands *Commands) {
	h.messenger = messenger
	h.sink = sink
	h.actions = actions
	h.commands = commands
}

// NewBot creates a long-polling bot that routes every update through h.
func NewBot(token string, h *Handler, opts ...bot.Option) (*bot.Bot, error) {
	opts = append([]bot.Option{
		bot.WithDefaultHandler(h.onUpdate),
		bot.WithCallbackQueryDataHandler("", bot.MatchTypePrefix, h.onCallback),
	}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	return b, nil
}

func (h *Handler) onUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	h.HandleUpdate(ctx, update)
}

func (h *Handler) onCallback(ctx context.Context, _ *bot.Bot, update *models.Update) {
	h.HandleUpdate(ctx, update)
}

// HandleUpdate dispatches one update. It never panics.
func (h *Handler) HandleUpdate(ctx context.Context, update *models.Update) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("telegram update handler panicked", "update_id", update.ID, "panic", r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.ChannelPost != nil:
		h.handlePost(update.ChannelPost)
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *models.Message) {
	if msg.Chat.Type == models.ChatTypePrivate {
		if strings.HasPrefix(msg.Text, "/") && h.commands != nil {
			h.commands.Handle(ctx, msg.Chat.ID, h.operators[msg.Chat.ID], msg.Text)
		}
		return
	}
	h.handlePost(msg)
}

func (h *Handler) handlePost(msg *models.Message) {
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	channel := channelName(msg.Chat)
	if len(h.channels) > 0 && !h.channels[strings.ToLower(channel)] && !h.channels[strconv.FormatInt(msg.Chat.ID, 10)] {
		return
	}

	meta := model.SourceMeta{Channel: channel, MessageID: strconv.Itoa(msg.ID)}
	if !h.sink.TrySubmit(text, meta) {
		h.logger.Warn("ingest queue full, dropping message", "channel", channel, "message_id", msg.ID)
	}
}

func (h *Handler) handleCallback(ctx context.Context, q *models.CallbackQuery) {
	if !h.operators[q.From.ID] {
		h.answer(ctx, q.ID, "Not authorized.")
		return
	}

	kind, fp, err := ParseCallback(q.Data)
	if err != nil {
		h.logger.Warn("ignoring callback", "data", q.Data, "error", err)
		h.answer(ctx, q.ID, "Unknown action.")
		return
	}

	msg := q.Message.Message
	if msg == nil {
		// Too old for the Bot API to return its content; nothing to resolve against.
		h.answer(ctx, q.ID, "This notification is too old.")
		return
	}

	action := model.OperatorAction{
		Kind:         kind,
		Fingerprint:  fp,
		Operator:     strconv.FormatInt(msg.Chat.ID, 10),
		MessageID:    EncodeMessageID(msg.Chat.ID, msg.ID),
		OriginalText: msg.Text,
		CallbackID:   q.ID,
	}
	if err := h.actions.HandleOperatorAction(ctx, action); err != nil {
		h.logger.Error("operator action failed", "action", kind, "fingerprint", fp, "error", err)
	}
}

func (h *Handler) answer(ctx context.Context, callbackID, text string) {
	ack, ok := h.messenger.(model.Acknowledger)
	if !ok {
		return
	}
	if err := ack.Acknowledge(ctx, callbackID, text, true); err != nil {
		h.logger.Debug("answering callback failed", "error", err)
	}
}

func channelName(chat models.Chat) string {
	if chat.Username != "" {
		return chat.Username
	}
	if chat.Title != "" {
		return chat.Title
	}
	return strconv.FormatInt(chat.ID, 10)
}
