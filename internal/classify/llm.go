package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/xeipuuv/gojsonschema"

	"github.com/amishk599/jobrelay/internal/model"
)

// LLMClassifier labels messages by asking an LLM for a structured verdict.
type LLMClassifier struct {
	provider LLMProvider
	tmpl     *template.Template
	schema   *gojsonschema.Schema
	logger   *slog.Logger
}

// NewLLMClassifier compiles the verdict schema and returns a classifier.
func NewLLMClassifier(provider LLMProvider, tmpl *template.Template, logger *slog.Logger) (*LLMClassifier, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(verdictSchema))
	if err != nil {
		return nil, fmt.Errorf("compile verdict schema: %w", err)
	}
	return &LLMClassifier{
		provider: provider,
		tmpl:     tmpl,
		schema:   schema,
		logger:   logger,
	}, nil
}

type rawVerdict struct {
	IsJobOffer bool    `json:"is_job_offer"`
	Confidence float64 `json:"confidence"`
}

// Classify renders the prompt, calls the provider and validates the reply.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (model.Verdict, error) {
	var promptBuf bytes.Buffer
	if err := c.tmpl.Execute(&promptBuf, struct{ Text string }{Text: text}); err != nil {
		return model.Verdict{}, fmt.Errorf("render prompt: %w", err)
	}

	raw, err := c.provider.Complete(ctx, promptBuf.String())
	if err != nil {
		return model.Verdict{}, fmt.Errorf("llm complete: %w", err)
	}

	verdict, err := c.parseVerdict(raw)
	if err != nil {
		c.logger.Warn("discarding llm verdict", "error", err, "raw", truncate(raw, 200))
		return model.Verdict{}, fmt.Errorf("parse verdict: %w", err)
	}
	return verdict, nil
}

func (c *LLMClassifier) parseVerdict(raw string) (model.Verdict, error) {
	result, err := c.schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return model.Verdict{}, fmt.Errorf("validation error: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return model.Verdict{}, fmt.Errorf("verdict validation failed: %s", strings.Join(errs, "; "))
	}

	var rv rawVerdict
	if err := json.Unmarshal([]byte(raw), &rv); err != nil {
		return model.Verdict{}, fmt.Errorf("unmarshal verdict JSON: %w", err)
	}

	v := model.Verdict{Score: rv.Confidence}
	if rv.IsJobOffer {
		v.Label = 1
	}
	return v, nil
}
