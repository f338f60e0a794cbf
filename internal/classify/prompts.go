package classify

import (
	_ "embed"
	"text/template"
)

//go:embed prompts/job_offer.md
var jobOfferPromptRaw string

// JobOfferTemplate is the parsed prompt for the LLM classifier.
var JobOfferTemplate = template.Must(template.New("job_offer").Parse(jobOfferPromptRaw))
