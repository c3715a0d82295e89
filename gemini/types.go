package gemini

// Wire types for the generateContent endpoint. Only the fields this service reads or writes
// are modelled.

type Part struct {
	Text string `json:"text"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GoogleSearch enables provider-side search grounding. It has no options; it marshals as {}.
type GoogleSearch struct{}

type Tool struct {
	GoogleSearch *GoogleSearch `json:"google_search,omitempty"`
}

// GenerateRequest is the outbound request payload.
type GenerateRequest struct {
	Contents          []Content `json:"contents"`
	SystemInstruction *Content  `json:"systemInstruction,omitempty"`
	Tools             []Tool    `json:"tools,omitempty"`
}

// NewPayload builds the request body for a single query: the query as the only user
// content, the persona as the system instruction, and search grounding switched on.
func NewPayload(systemPrompt, userQuery string) *GenerateRequest {
	return &GenerateRequest{
		Contents: []Content{
			{
				Parts: []Part{{Text: userQuery}},
			},
		},
		SystemInstruction: &Content{
			Parts: []Part{{Text: systemPrompt}},
		},
		Tools: []Tool{
			{GoogleSearch: &GoogleSearch{}},
		},
	}
}

// GenerateResponse is the decoded response body. Every field is optional on the wire.
type GenerateResponse struct {
	Candidates []*Candidate `json:"candidates"`
}

type Candidate struct {
	Content           *CandidateContent  `json:"content,omitempty"`
	GroundingMetadata *GroundingMetadata `json:"groundingMetadata,omitempty"`
}

// empty reports a null or {} candidate, which counts as no candidate at all.
func (c *Candidate) empty() bool {
	return c == nil || (c.Content == nil && c.GroundingMetadata == nil)
}

type CandidateContent struct {
	Parts []CandidatePart `json:"parts"`
}

type CandidatePart struct {
	Text *string `json:"text,omitempty"`
}

// GroundingMetadata lists the sources a grounded answer was built from. Older API versions
// report them as groundingAttributions, newer ones as groundingChunks; both share the
// web.{uri,title} shape.
type GroundingMetadata struct {
	GroundingAttributions []Attribution `json:"groundingAttributions,omitempty"`
	GroundingChunks       []Attribution `json:"groundingChunks,omitempty"`
}

// Attribution is one cited source. Missing fields are nil, never an error.
type Attribution struct {
	Web *WebSource `json:"web,omitempty"`
}

type WebSource struct {
	URI   *string `json:"uri,omitempty"`
	Title *string `json:"title,omitempty"`
}

// text returns the first part's text of the candidate.
func (c *Candidate) text() (string, bool) {
	if c.Content == nil || len(c.Content.Parts) == 0 || c.Content.Parts[0].Text == nil {
		return "", false
	}
	return *c.Content.Parts[0].Text, true
}

func (c *Candidate) sources() []Attribution {
	if c.GroundingMetadata == nil {
		return nil
	}
	if len(c.GroundingMetadata.GroundingAttributions) > 0 {
		return c.GroundingMetadata.GroundingAttributions
	}
	return c.GroundingMetadata.GroundingChunks
}
