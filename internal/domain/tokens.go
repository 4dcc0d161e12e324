package domain

// TokenCounter estimates token usage for requests and generated text.
type TokenCounter interface {
	CountRequest(req *CanonicalRequest) int
	CountText(model, text string) int
}
