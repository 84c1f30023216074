package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Reply is the structured answer the interviewer model must return.
type Reply struct {
	Response          string `json:"response"`
	EndOfConversation bool   `json:"end_of_conversation"`
}

// errNoJSONObject is returned by parseReply when the content holds no
// JSON object at all.
var errNoJSONObject = errors.New("no JSON object in reply")

// parseReply decodes the model output into a [Reply]. Models without a
// native JSON mode wrap the object in prose or code fences, so the first
// balanced top-level object is extracted before decoding.
func parseReply(content string) (Reply, error) {
	raw, err := extractObject(content)
	if err != nil {
		return Reply{}, err
	}
	var r Reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	r.Response = strings.TrimSpace(r.Response)
	return r, nil
}

// extractObject returns the first balanced {...} span of s, honouring
// string literals and escapes.
func extractObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", errNoJSONObject
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON object in reply")
}
