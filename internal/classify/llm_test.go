package classify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProvider struct {
	reply      string
	err        error
	lastPrompt string
}

func (f *fakeProvider) Complete(_ context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	return f.reply, f.err
}

func newTestClassifier(t *testing.T, p LLMProvider) *LLMClassifier {
	t.Helper()
	c, err := NewLLMClassifier(p, JobOfferTemplate, discardLogger())
	if err != nil {
		t.Fatalf("NewLLMClassifier: %v", err)
	}
	return c
}

func TestLLMClassifier_ValidVerdict(t *testing.T) {
	p := &fakeProvider{reply: `{"is_job_offer": true, "confidence": 0.92}`}
	c := newTestClassifier(t, p)

	v, err := c.Classify(context.Background(), "We are hiring a Go developer")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if v.Label != 1 || v.Score != 0.92 {
		t.Errorf("verdict = %+v", v)
	}
	if !strings.Contains(p.lastPrompt, "We are hiring a Go developer") {
		t.Error("prompt does not contain the message text")
	}
}

func TestLLMClassifier_RejectsInvalidReplies(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "yes it is"},
		{"missing field", `{"is_job_offer": true}`},
		{"confidence out of range", `{"is_job_offer": true, "confidence": 1.7}`},
		{"wrong type", `{"is_job_offer": "yes", "confidence": 0.5}`},
		{"extra field", `{"is_job_offer": false, "confidence": 0.1, "reason": "x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClassifier(t, &fakeProvider{reply: tt.reply})
			if _, err := c.Classify(context.Background(), "text"); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLLMClassifier_ProviderError(t *testing.T) {
	boom := errors.New("connection refused")
	c := newTestClassifier(t, &fakeProvider{err: boom})
	if _, err := c.Classify(context.Background(), "text"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}
