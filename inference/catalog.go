package inference

// ModelInfo describes a known model: its context window and the capability
// flags the loop cares about when planning requests.
type ModelInfo struct {
	ID                   string   `json:"id"`
	Provider             string   `json:"provider"`
	ContextWindow        int      `json:"context_window"`
	MaxOutput            int      `json:"max_output"`
	SupportsTools        bool     `json:"supports_tools"`
	SupportsParallelTool bool     `json:"supports_parallel_tool_calls"`
	Aliases              []string `json:"aliases,omitempty"`
}

// DefaultContextWindow is assumed for models the catalog does not know.
const DefaultContextWindow = 128000

// catalog is the built-in model table. Entries are ordered newest-first per
// provider so LatestModel can return the head match.
var catalog = []ModelInfo{
	{
		ID: "claude-opus-4-6", Provider: "anthropic",
		ContextWindow: 200000, MaxOutput: 32768,
		SupportsTools: true, SupportsParallelTool: true,
		Aliases: []string{"opus", "claude-opus"},
	},
	{
		ID: "claude-sonnet-4-5", Provider: "anthropic",
		ContextWindow: 200000, MaxOutput: 16384,
		SupportsTools: true, SupportsParallelTool: true,
		Aliases: []string{"sonnet", "claude-sonnet"},
	},
	{
		ID: "gpt-5.2", Provider: "openai",
		ContextWindow: 1047576, MaxOutput: 32768,
		SupportsTools: true, SupportsParallelTool: true,
		Aliases: []string{"gpt5"},
	},
	{
		ID: "gpt-5.2-mini", Provider: "openai",
		ContextWindow: 1047576, MaxOutput: 16384,
		SupportsTools: true, SupportsParallelTool: true,
		Aliases: []string{"gpt5-mini"},
	},
	{
		ID: "gemini-3-pro-preview", Provider: "gemini",
		ContextWindow: 1048576, MaxOutput: 65536,
		SupportsTools: true, SupportsParallelTool: true,
		Aliases: []string{"gemini-pro", "gemini-3-pro"},
	},
	{
		ID: "gemini-3-flash-preview", Provider: "gemini",
		ContextWindow: 1048576, MaxOutput: 65536,
		SupportsTools: true, SupportsParallelTool: true,
		Aliases: []string{"gemini-flash", "gemini-3-flash"},
	},
}

// LookupModel resolves a model ID or alias to its catalog entry.
func LookupModel(modelID string) (ModelInfo, bool) {
	for _, m := range catalog {
		if m.ID == modelID {
			return m, true
		}
		for _, alias := range m.Aliases {
			if alias == modelID {
				return m, true
			}
		}
	}
	return ModelInfo{}, false
}

// ContextWindowFor returns the context window for a model, falling back to
// DefaultContextWindow for unknown models.
func ContextWindowFor(modelID string) int {
	if m, ok := LookupModel(modelID); ok {
		return m.ContextWindow
	}
	return DefaultContextWindow
}

// LatestModel returns the newest catalog model for a provider.
func LatestModel(provider string) (ModelInfo, bool) {
	for _, m := range catalog {
		if m.Provider == provider {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// ListModels returns the catalog, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	var out []ModelInfo
	for _, m := range catalog {
		if provider == "" || m.Provider == provider {
			out = append(out, m)
		}
	}
	return out
}
