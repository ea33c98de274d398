package models

// Request is a single-prompt completion call.
type Request struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Response carries the text segments of a completion in order.
type Response struct {
	Segments []string
}

// Text returns the first segment, or "" when the response is empty.
func (r Response) Text() string {
	if len(r.Segments) == 0 {
		return ""
	}
	return r.Segments[0]
}
