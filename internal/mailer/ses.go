package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/amishk599/jobrelay/internal/model"
)

// sesAPI is the subset of the SES client used here.
type sesAPI interface {
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
}

// SESTransport sends raw MIME messages through Amazon SES.
type SESTransport struct {
	client sesAPI
}

// NewSESTransport loads the default AWS credential chain for region.
func NewSESTransport(ctx context.Context, region string) (*SESTransport, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return &SESTransport{client: ses.NewFromConfig(cfg)}, nil
}

func (t *SESTransport) SendRaw(ctx context.Context, from string, to []string, raw []byte) error {
	_, err := t.client.SendRawEmail(ctx, &ses.SendRawEmailInput{
		Source:       aws.String(from),
		Destinations: to,
		RawMessage:   &types.RawMessage{Data: raw},
	})
	if err != nil {
		return classifySESError(err)
	}
	return nil
}

func classifySESError(err error) error {
	var (
		rejected   *types.MessageRejected
		unverified *types.MailFromDomainNotVerifiedException
		paused     *types.AccountSendingPausedException
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &model.SendError{Kind: model.KindTransient, Err: err}
	case errors.As(err, &rejected), errors.As(err, &unverified), errors.As(err, &paused):
		return &model.SendError{Kind: model.KindPermanent, Err: err}
	default:
		// The SDK already retries throttling and 5xx internally.
		return &model.SendError{Kind: model.KindTransient, Err: err}
	}
}
