package catalog

func chatModel(id, name, description string, contextLength int, vision bool) ModelConfig {
	return ModelConfig{
		ID:                      id,
		Name:                    name,
		Description:             description,
		APIType:                 APITypeChatCompletions,
		ContextLength:           contextLength,
		SupportsVision:          vision,
		SupportsFunctionCalling: true,
		SupportsStreaming:       true,
	}
}

// DefaultProviders is the catalog seeded into a fresh server config.
func DefaultProviders() []ProviderEntry {
	return []ProviderEntry{
		{
			ProviderConfig: ProviderConfig{ID: "anthropic", Name: "Anthropic", Description: "Claude models", SupportsThinking: true},
			Models: []ModelConfig{
				chatModel("claude-sonnet-4-5", "Claude Sonnet 4.5", "Balanced Claude model", 200000, true),
				chatModel("claude-haiku-4-5", "Claude Haiku 4.5", "Fast Claude model", 200000, true),
			},
		},
		{
			ProviderConfig: ProviderConfig{ID: "azure", Name: "Azure OpenAI", Description: "Microsoft Azure OpenAI service"},
			Models: []ModelConfig{
				chatModel("gpt-4o", "GPT-4o", "Azure hosted GPT-4o", 128000, true),
			},
		},
		{
			ProviderConfig: ProviderConfig{ID: "deepseek", Name: "DeepSeek", Description: "DeepSeek models", SupportsThinking: true},
			Models: []ModelConfig{
				chatModel("deepseek-chat", "DeepSeek Chat", "General chat model", 64000, false),
				chatModel("deepseek-reasoner", "DeepSeek Reasoner", "Reasoning model", 64000, false),
			},
		},
		{
			ProviderConfig: ProviderConfig{ID: "google", Name: "Google", Description: "Gemini models", SupportsThinking: true},
			Models: []ModelConfig{
				chatModel("gemini-2.5-pro", "Gemini 2.5 Pro", "Most capable Gemini model", 1048576, true),
				chatModel("gemini-2.5-flash", "Gemini 2.5 Flash", "Fast Gemini model", 1048576, true),
			},
		},
		{
			ProviderConfig: ProviderConfig{ID: "moonshot", Name: "Moonshot", Description: "Kimi models"},
			Models: []ModelConfig{
				chatModel("kimi-k2", "Kimi K2", "Moonshot Kimi K2", 128000, false),
			},
		},
		{
			ProviderConfig: ProviderConfig{ID: "openai", Name: "OpenAI", Description: "GPT and o-series models (Responses API)", SupportsThinking: true},
			Models: []ModelConfig{
				{
					ID:                      "gpt-5",
					Name:                    "GPT-5",
					Description:             "Flagship OpenAI model",
					APIType:                 APITypeResponses,
					ContextLength:           400000,
					SupportsVision:          true,
					SupportsFunctionCalling: true,
					SupportsStreaming:       true,
				},
				{
					ID:                      "gpt-5-mini",
					Name:                    "GPT-5 mini",
					Description:             "Smaller, cheaper GPT-5",
					APIType:                 APITypeResponses,
					ContextLength:           400000,
					SupportsVision:          true,
					SupportsFunctionCalling: true,
					SupportsStreaming:       true,
				},
			},
		},
		{
			ProviderConfig: ProviderConfig{ID: "openai_compatible", Name: "OpenAI compatible", Description: "Custom OpenAI compatible API (Chat Completions)"},
			Models: []ModelConfig{
				chatModel("gpt-4o-mini", "GPT-4o mini", "Any Chat Completions compatible endpoint", 128000, true),
			},
		},
	}
}
