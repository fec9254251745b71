package types

// ModelEntry describes one model in the backend inventory as reported by the CLI.
type ModelEntry struct {
	// Model identifier as known to the backend.
	// example: qwen2.5-coder:14b
	Name string `json:"name" example:"qwen2.5-coder:14b"`
	// Position in the configured fallback chain (0 = primary, -1 = not configured).
	// example: 0
	ChainIndex int `json:"chain_index" example:"0"`
	// Whether this model is the one currently serving inference.
	// example: true
	Active bool `json:"active" example:"true"`
}

// ModelsResponse wraps the inventory listing.
type ModelsResponse struct {
	// Installed models.
	Models []ModelEntry `json:"models"`
}
