package classify

import (
	"context"
	"math"
	"strings"

	"github.com/amishk599/jobrelay/internal/model"
)

// DefaultKeywords covers English and Russian job-post vocabulary.
var DefaultKeywords = []string{
	"vacancy", "hiring", "we are looking", "job offer", "position", "salary",
	"full-time", "part-time", "remote", "relocation", "send your cv", "resume",
	"вакансия", "ищем", "требуется", "зарплата", "зп", "удаленно", "резюме",
	"в команду", "опыт работы", "оффер",
}

// KeywordClassifier scores text by how many distinct keywords it contains:
// score = 1 - 0.5^hits, labelled a job offer when score >= 0.5.
type KeywordClassifier struct {
	keywords []string
}

// NewKeywordClassifier returns a classifier for keywords, or DefaultKeywords
// when none are given.
func NewKeywordClassifier(keywords []string) *KeywordClassifier {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			lowered = append(lowered, k)
		}
	}
	return &KeywordClassifier{keywords: lowered}
}

// Classify never fails.
func (c *KeywordClassifier) Classify(_ context.Context, text string) (model.Verdict, error) {
	lower := strings.ToLower(text)
	hits := 0
	for _, k := range c.keywords {
		if strings.Contains(lower, k) {
			hits++
		}
	}

	score := 1 - math.Pow(0.5, float64(hits))
	label := 0
	if score >= 0.5 {
		label = 1
	}
	return model.Verdict{Label: label, Score: score}, nil
}
