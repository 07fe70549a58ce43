package keyrelay

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// EstimateTokens gives a rough prompt size for metering: about four characters
// of message text per token, plus 4 per message and 3 for the request.
// Non-text parts such as images are not counted.
func EstimateTokens(messages []Message) int64 {
	chars := 0
	for _, m := range messages {
		chars += len(contentText(m.Content))
	}
	return int64(chars/4 + 4*len(messages) + 3)
}

// contentText flattens string content or the text parts of a parts array.
func contentText(raw json.RawMessage) string {
	content := gjson.ParseBytes(raw)
	if !content.IsArray() {
		return content.String()
	}
	var sb strings.Builder
	for _, part := range content.Array() {
		if part.Get("type").String() == "text" {
			sb.WriteString(part.Get("text").String())
		}
	}
	return sb.String()
}
