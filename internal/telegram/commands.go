package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/amishk599/jobrelay/internal/dispatch"
	"github.com/amishk599/jobrelay/internal/model"
	"github.com/amishk599/jobrelay/internal/store"
)

// Reporter is the read and retention side of the store used by operator
// commands.
type Reporter interface {
	ListRecent(ctx context.Context, limit int) ([]model.Opportunity, error)
	PendingCount(ctx context.Context) (int, error)
	Stats(ctx context.Context) (store.Stats, error)
	Cleanup(ctx context.Context, r store.Retention) (store.CleanupResult, error)
}

const helpText = `Job relay bot

/jobs - last 10 scanned messages
/notifications - pending confirmations
/stats - totals and recent sends
/cleanup - purge old records
/myid - your chat id`

// Commands answers operator slash commands.
type Commands struct {
	reporter  Reporter
	messenger model.Messenger
	retention store.Retention
	logger    *slog.Logger
}

func NewCommands(reporter Reporter, messenger model.Messenger, retention store.Retention, logger *slog.Logger) *Commands {
	return &Commands{
		reporter:  reporter,
		messenger: messenger,
		retention: retention,
		logger:    logger,
	}
}

// Handle runs the command in text for chat. Only /start and /myid answer
// chats that are not configured operators.
func (c *Commands) Handle(ctx context.Context, chat int64, operator bool, text string) {
	to := strconv.FormatInt(chat, 10)
	cmd := commandName(text)

	if cmd == "myid" {
		c.reply(ctx, to, fmt.Sprintf("Your chat id: %d", chat))
		return
	}
	if !operator {
		if cmd == "start" {
			c.reply(ctx, to, fmt.Sprintf("This bot only serves its operators. Your chat id is %d.", chat))
		}
		return
	}

	var (
		reply string
		err   error
	)
	switch cmd {
	case "start", "help":
		reply = helpText
	case "jobs":
		reply, err = c.jobs(ctx)
	case "notifications":
		reply, err = c.pending(ctx)
	case "stats":
		reply, err = c.stats(ctx)
	case "cleanup":
		reply, err = c.cleanup(ctx)
	default:
		reply = "Unknown command. Send /start for the list."
	}
	if err != nil {
		c.logger.Error("operator command failed", "command", cmd, "error", err)
		reply = "⚠️ Command failed, see logs."
	}
	c.reply(ctx, to, reply)
}

func (c *Commands) jobs(ctx context.Context) (string, error) {
	opps, err := c.reporter.ListRecent(ctx, 10)
	if err != nil {
		return "", err
	}
	if len(opps) == 0 {
		return "No messages scanned yet.", nil
	}
	var b strings.Builder
	b.WriteString("Last scanned messages:\n")
	for i, o := range opps {
		fmt.Fprintf(&b, "\n%d. [%.2f] %s (%s)\n%s\n",
			i+1, o.Score, o.CreatedAt.Format("2006-01-02 15:04"), o.SourceChannel, dispatch.Excerpt(o.Text, 200))
	}
	return b.String(), nil
}

func (c *Commands) pending(ctx context.Context) (string, error) {
	n, err := c.reporter.PendingCount(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Pending confirmations: %d", n), nil
}

func (c *Commands) stats(ctx context.Context) (string, error) {
	st, err := c.reporter.Stats(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Messages scanned: %d\n", st.Opportunities)
	fmt.Fprintf(&b, "Outreach sends: %d (%d contacts)\n", st.Deliveries, st.DistinctContacts)
	fmt.Fprintf(&b, "Notifications: %d pending, %d confirmed, %d skipped\n",
		st.Notifications[model.StatusPending], st.Notifications[model.StatusConfirmed], st.Notifications[model.StatusSkipped])
	if len(st.LastDeliveries) > 0 {
		b.WriteString("\nLast sends:\n")
		for _, d := range st.LastDeliveries {
			fmt.Fprintf(&b, "  %s  %s\n", d.SentAt.Format("2006-01-02 15:04"), d.NormalizedContact)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (c *Commands) cleanup(ctx context.Context) (string, error) {
	res, err := c.reporter.Cleanup(ctx, c.retention)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed %d notifications, %d sends, %d messages.",
		res.Notifications, res.Deliveries, res.Opportunities), nil
}

func (c *Commands) reply(ctx context.Context, to, text string) {
	for _, chunk := range dispatch.Chunk(text, MaxMessageRunes) {
		if err := c.messenger.SendText(ctx, to, chunk); err != nil {
			c.logger.Warn("command reply failed", "chat", to, "error", err)
			return
		}
	}
}

// commandName extracts "jobs" from "/jobs@my_bot extra".
func commandName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name := strings.TrimPrefix(fields[0], "/")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name)
}
