package models

// Artifact is a rendered batch ready for delivery. Channels pick the richest
// representation they support.
type Artifact struct {
	Kind     ContentKind `json:"kind"`
	Repo     string      `json:"repo"`
	Title    string      `json:"title"`
	Markdown string      `json:"markdown"`
	HTML     string      `json:"html,omitempty"`
	// Text is a plain summary for channels without markup support.
	Text string `json:"text"`
}
