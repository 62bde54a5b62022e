package knowledge

import "strings"

var sourceMarkers = []struct {
	source  SourceType
	markers []string
}{
	{SourceChatGPT, []string{"chatgpt.com/share", "chat.openai.com/share"}},
	{SourceGemini, []string{"gemini.google.com/share", "g.co/gemini/share"}},
	{SourceClaude, []string{"claude.ai/share", "claude.ai/chat"}},
}

// DetectSourceType guesses the origin of pasted text from share links.
// A bare URL with no known marker is SourceURL; anything else is manual.
func DetectSourceType(input string) SourceType {
	lower := strings.ToLower(strings.TrimSpace(input))
	for _, entry := range sourceMarkers {
		for _, marker := range entry.markers {
			if strings.Contains(lower, marker) {
				return entry.source
			}
		}
	}
	if !strings.ContainsAny(lower, " \n\t") &&
		(strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")) {
		return SourceURL
	}
	return SourceManual
}
