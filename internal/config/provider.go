package config

import (
	"fmt"
	"strings"
)

const (
	ProviderOpenAI = "openai"
	ProviderPiper  = "piper"
	ProviderPocket = "pocket"
)

func NormalizeProvider(raw string) (string, error) {
	provider := strings.ToLower(strings.TrimSpace(raw))
	if provider == "" {
		provider = ProviderOpenAI
	}
	switch provider {
	case ProviderOpenAI, ProviderPiper, ProviderPocket:
		return provider, nil
	case "pocket-tts", "cli":
		return ProviderPocket, nil
	case "wyoming":
		return ProviderPiper, nil
	default:
		return "", fmt.Errorf(
			"invalid tts provider %q (expected %s|%s|%s)",
			raw,
			ProviderOpenAI,
			ProviderPiper,
			ProviderPocket,
		)
	}
}
