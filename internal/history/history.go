// Package history turns caller-supplied conversation entries into a bounded transcript.
package history

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashureev/dynamo-gateway/internal/domain"
)

// DefaultWindow is the number of most recent turns kept.
const DefaultWindow = 5

// Builder normalizes heterogeneous history entries and keeps the last Window of them.
type Builder struct {
	window int
}

// NewBuilder creates a Builder. A non-positive window uses DefaultWindow.
func NewBuilder(window int) *Builder {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Builder{window: window}
}

// Window returns the configured window size.
func (b *Builder) Window() int {
	return b.window
}

// Build normalizes entries and returns the most recent turns, oldest first.
// Older turns are dropped, never summarized.
func (b *Builder) Build(entries []any) []domain.ChatTurn {
	start := 0
	if len(entries) > b.window {
		start = len(entries) - b.window
	}
	turns := make([]domain.ChatTurn, 0, len(entries)-start)
	for _, entry := range entries[start:] {
		turns = append(turns, Normalize(entry))
	}
	return turns
}

// BuildJSON is Build for raw JSON history entries as they arrive on the wire.
func (b *Builder) BuildJSON(entries []json.RawMessage) []domain.ChatTurn {
	converted := make([]any, len(entries))
	for i, raw := range entries {
		converted[i] = raw
	}
	return b.Build(converted)
}

// Normalize converts a single entry into a ChatTurn. Missing or unreadable
// fields default to role user and empty content.
func Normalize(entry any) domain.ChatTurn {
	switch e := entry.(type) {
	case domain.ChatTurn:
		return domain.ChatTurn{Role: NormalizeRole(string(e.Role)), Content: e.Content}
	case *domain.ChatTurn:
		if e == nil {
			return domain.ChatTurn{Role: domain.RoleUser}
		}
		return domain.ChatTurn{Role: NormalizeRole(string(e.Role)), Content: e.Content}
	case map[string]string:
		return domain.ChatTurn{Role: NormalizeRole(e["role"]), Content: e["content"]}
	case map[string]any:
		return domain.ChatTurn{Role: NormalizeRole(stringValue(e["role"])), Content: stringValue(e["content"])}
	case json.RawMessage:
		return normalizeJSON(e)
	case []byte:
		return normalizeJSON(e)
	default:
		return domain.ChatTurn{Role: domain.RoleUser}
	}
}

// NormalizeRole maps assistant-like role names to RoleModel and everything else to RoleUser.
func NormalizeRole(role string) domain.Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "assistant", "model", "ai", "bot":
		return domain.RoleModel
	default:
		return domain.RoleUser
	}
}

func normalizeJSON(raw []byte) domain.ChatTurn {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return domain.ChatTurn{Role: domain.RoleUser}
	}
	return Normalize(fields)
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case []any:
		parts := make([]string, 0, len(s))
		for _, p := range s {
			if str := stringValue(p); str != "" {
				parts = append(parts, str)
			}
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		return stringValue(s["text"])
	default:
		return fmt.Sprint(s)
	}
}
