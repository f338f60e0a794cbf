package telegram

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/go-telegram/bot"

	"github.com/amishk599/jobrelay/internal/model"
)

// permanentMarkers are Bot API error descriptions that mean the recipient
// cannot be reached no matter how often we retry.
var permanentMarkers = []string{
	"chat not found",
	"user not found",
	"peer_id_invalid",
	"user_privacy_restricted",
	"chat_write_forbidden",
	"not enough rights",
	"have no rights",
	"bot was blocked",
	"user is deactivated",
	"bot can't initiate conversation",
}

// classifyError wraps a Bot API error in a model.SendError.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return &model.SendError{
			Kind:       model.KindRateLimited,
			RetryAfter: time.Duration(tooMany.RetryAfter) * time.Second,
			Err:        err,
		}
	}

	if errors.Is(err, bot.ErrorForbidden) {
		return &model.SendError{Kind: model.KindPermanent, Err: err}
	}

	if errors.Is(err, bot.ErrorBadRequest) {
		desc := strings.ToLower(err.Error())
		for _, marker := range permanentMarkers {
			if strings.Contains(desc, marker) {
				return &model.SendError{Kind: model.KindPermanent, Err: err}
			}
		}
		return &model.SendError{Kind: model.KindUnknown, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &model.SendError{Kind: model.KindTransient, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &model.SendError{Kind: model.KindTransient, Err: err}
	}

	return &model.SendError{Kind: model.KindUnknown, Err: err}
}

func isNotModified(err error) bool {
	return errors.Is(err, bot.ErrorBadRequest) && strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}
