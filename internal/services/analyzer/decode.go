package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"draftdrop/internal/queue"
)

type analysisPayload struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Bullets     []string `json:"bullets"`
	Tags        []string `json:"tags"`
	Theme       string   `json:"theme"`
	Style       string   `json:"style"`
}

// parseAnalysis decodes a model reply and normalizes the result. A reply
// without a title or description is rejected.
func parseAnalysis(content string) (queue.Analysis, error) {
	var payload analysisPayload
	if err := DecodeJSON(content, &payload); err != nil {
		return queue.Analysis{}, fmt.Errorf("parse payload: %w", err)
	}
	analysis := queue.Analysis{
		Title:       normalizeTitle(payload.Title),
		Description: strings.TrimSpace(payload.Description),
		Bullets:     cleanList(payload.Bullets, false),
		Tags:        cleanList(payload.Tags, true),
		Theme:       strings.TrimSpace(payload.Theme),
		Style:       strings.TrimSpace(payload.Style),
	}
	if analysis.Title == "" {
		return queue.Analysis{}, errors.New("response missing title")
	}
	if analysis.Description == "" {
		return queue.Analysis{}, errors.New("response missing description")
	}
	return analysis, nil
}

func normalizeTitle(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	title = strings.Trim(title, `"'`)
	if title == "" {
		return ""
	}
	// Leave titles the model already cased alone; only fix all-lower or
	// all-upper output.
	if title == strings.ToLower(title) || title == strings.ToUpper(title) {
		return cases.Title(language.Und).String(strings.ToLower(title))
	}
	return title
}

func cleanList(values []string, tags bool) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	lower := cases.Lower(language.Und)
	for _, value := range values {
		value = strings.Join(strings.Fields(value), " ")
		if tags {
			value = lower.String(strings.TrimLeft(value, "#"))
		}
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

// DecodeJSON decodes JSON from a model response, tolerating code fences and
// prose around the object.
func DecodeJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}
	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}
	sanitized := sanitizeJSONPayload(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return fmt.Errorf("%w (payload snippet: %s)", directErr, summarizeSnippet(trimmed))
	}
	if err := json.Unmarshal([]byte(sanitized), target); err != nil {
		return fmt.Errorf("%w (sanitized payload snippet: %s)", err, summarizeSnippet(sanitized))
	}
	return nil
}

func sanitizeJSONPayload(content string) string {
	trimmed := strings.TrimSpace(stripCodeFence(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' {
		return trimmed
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func summarizeSnippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
