// Package gemini implements the analysis interface using Google's Gemini API.
package gemini

// promptData represents the data passed to the prompt template
type promptData struct {
	Title       string
	URL         string
	Body        string
	Instruction string
}

// responseSchema represents the expected JSON structure of a Gemini response
type responseSchema struct {
	// Summary is the condensed description of the posting
	Summary string `json:"summary"`

	// Skills are the technical skills extracted from the posting
	Skills []string `json:"skills,omitempty"`

	// Score is the relevance score from 0 to 100
	Score int `json:"score"`
}

// promptTemplateText is the prompt sent to the model. The response contract
// (bare JSON, fixed keys) is what parseResultJSON depends on.
const promptTemplateText = `You are an assistant that analyzes job postings.

{{.Instruction}}

Respond with a single JSON object and nothing else, using exactly these keys:
{"summary": string, "skills": [string], "score": integer 0-100}

Posting title: {{.Title}}
Posting URL: {{.URL}}

Posting content:
{{.Body}}
`
