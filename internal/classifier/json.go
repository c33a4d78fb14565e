package classifier

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrMalformed marks a response that could not be decoded.
var ErrMalformed = eris.New("classifier: malformed response")

// DecodeJSON strips markdown fences and any prose around the outermost JSON
// object in text, then unmarshals it into v.
func DecodeJSON(text string, v any) error {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return eris.Wrap(ErrMalformed, "empty response")
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return eris.Wrapf(ErrMalformed, "decode: %v", err)
	}
	return nil
}

// ClassifyJSON runs one call and decodes its answer into v.
func ClassifyJSON(ctx context.Context, c Classifier, req Request, v any) (*Response, error) {
	resp, err := c.Classify(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := DecodeJSON(resp.Text, v); err != nil {
		return resp, eris.Wrapf(err, "classifier: %s", req.Task)
	}
	return resp, nil
}

func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}
