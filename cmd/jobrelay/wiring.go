package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amishk599/jobrelay/internal/classify"
	"github.com/amishk599/jobrelay/internal/config"
	"github.com/amishk599/jobrelay/internal/extract"
	"github.com/amishk599/jobrelay/internal/fetch"
	"github.com/amishk599/jobrelay/internal/filter"
	"github.com/amishk599/jobrelay/internal/lock"
	"github.com/amishk599/jobrelay/internal/mailer"
	"github.com/amishk599/jobrelay/internal/model"
	"github.com/amishk599/jobrelay/internal/outreach"
	"github.com/amishk599/jobrelay/internal/ratelimit"
	"github.com/amishk599/jobrelay/internal/retry"
	"github.com/amishk599/jobrelay/internal/store"
)

func retentionFrom(cfg *config.Config) store.Retention {
	return store.Retention{
		Notifications: cfg.Retention.Notifications,
		Deliveries:    cfg.Retention.Deliveries,
		Opportunities: cfg.Retention.Opportunities,
	}
}

// setupClassifier returns the keyword classifier, or the LLM classifier
// wrapped with retries when classifier.type is "openai".
func setupClassifier(cfg *config.Config, logger *slog.Logger) (model.Classifier, error) {
	if cfg.Classifier.Type != "openai" {
		return classify.NewKeywordClassifier(cfg.Classifier.Keywords), nil
	}

	httpClient := &http.Client{Timeout: cfg.Classifier.OpenAI.Timeout}
	provider := classify.NewOpenAIProvider(cfg.Classifier.OpenAI.BaseURL, cfg.Classifier.OpenAI.APIKey, cfg.Classifier.OpenAI.Model, httpClient)
	llm, err := classify.NewLLMClassifier(provider, classify.JobOfferTemplate, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("llm classifier enabled", "model", cfg.Classifier.OpenAI.Model)
	return retry.NewClassifier(llm, retry.New(2, 2*time.Second, 30*time.Second, logger)), nil
}

func setupExtractor(cfg *config.Config, logger *slog.Logger) *extract.Extractor {
	var fetcher model.PageFetcher
	if cfg.Fetch.Enabled {
		fetcher = fetch.NewHTTPFetcher(&http.Client{}, cfg.Fetch.Timeout)
	}
	return extract.NewExtractor(fetcher, cfg.Fetch.MaxLinks, logger)
}

func setupFilter(cfg *config.Config, logger *slog.Logger) *filter.ContactFilter {
	return filter.NewContactFilter(cfg.Filters.BlockedHandles, cfg.Filters.BlockedEmailDomains, logger)
}

// setupLocker returns the keyed lock backend and a function releasing its resources.
func setupLocker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (lock.Locker, func(), error) {
	if cfg.Lock.Backend != "redis" {
		return lock.NewKeyedMutex(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Lock.Redis.Addr,
		Password: cfg.Lock.Redis.Password,
		DB:       cfg.Lock.Redis.DB,
	})
	locker := lock.NewRedisLocker(client, "jobrelay:lock:", cfg.Lock.TTL)
	if err := locker.Ping(ctx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Lock.Redis.Addr, err)
	}
	logger.Info("using redis locks", "addr", cfg.Lock.Redis.Addr)
	return locker, func() { client.Close() }, nil
}

// setupEmail returns nil when email outreach is disabled.
func setupEmail(ctx context.Context, cfg *config.Config, logger *slog.Logger) (outreach.EmailSender, error) {
	var transport mailer.Transport
	switch cfg.Email.Provider {
	case "smtp":
		transport = mailer.NewSMTPTransport(cfg.Email.SMTP.Host, cfg.Email.SMTP.Port, cfg.Email.SMTP.Username, cfg.Email.SMTP.Password)
	case "ses":
		ses, err := mailer.NewSESTransport(ctx, cfg.Email.SES.Region)
		if err != nil {
			return nil, err
		}
		transport = ses
	default:
		logger.Info("email outreach disabled")
		return nil, nil
	}
	logger.Info("email outreach enabled", "provider", cfg.Email.Provider, "from", cfg.Email.From)
	return mailer.New(cfg.Email.From, transport, logger), nil
}

func setupSender(cfg *config.Config, messenger model.Messenger, email outreach.EmailSender, logger *slog.Logger) *outreach.Sender {
	d := cfg.Dispatch
	return outreach.NewSender(messenger, email,
		outreach.Content{
			Greeting:       d.Greeting,
			AttachmentPath: d.AttachmentPath,
			Caption:        d.Caption,
			FallbackText:   d.FallbackText,
			EmailSubject:   d.EmailSubject,
		},
		outreach.Options{
			MinInterval: d.MinSendInterval,
			Timeout:     d.SendTimeout,
			Limiter:     ratelimit.NewContactLimiter(d.MinSendInterval, d.MaxBackoff),
			Retrier:     retry.New(d.MaxAttempts-1, 2*time.Second, d.MaxBackoff, logger),
		},
		logger,
	)
}
