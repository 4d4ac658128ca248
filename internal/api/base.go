package api

// DefaultBaseURL is the editor API target used when the config does not name one.
const DefaultBaseURL = "http://localhost:8080"

// DefaultStage is the stage requested by bulk reads.
const DefaultStage = "IN_PROGRESS"

// NewDefaultClient builds a client pointed at baseURL, falling back to DefaultBaseURL.
func NewDefaultClient(baseURL, token string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return NewClient(baseURL, token, opts...)
}
