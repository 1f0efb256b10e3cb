package skillrun

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ExtractJSONObject pulls the first JSON object out of model output text.
// Models reliably asked for "JSON only" still sometimes wrap the payload in
// prose or a fenced code block, so this tries the fast path (the whole
// response parses as an object) before falling back to a scan: walk the
// text looking for a '{' or '[' and hand everything from there to a
// streaming decoder, keeping the first candidate that decodes to an object.
func ExtractJSONObject(text string) (map[string]any, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, errors.New("empty model output")
	}

	var fast map[string]any
	if err := json.Unmarshal([]byte(content), &fast); err == nil {
		return fast, nil
	}

	for i, ch := range content {
		if ch != '{' && ch != '[' {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader([]byte(content[i:])))
		var candidate any
		if err := dec.Decode(&candidate); err != nil {
			continue
		}
		if obj, ok := candidate.(map[string]any); ok {
			return obj, nil
		}
	}
	return nil, errors.New("no JSON object found in model output")
}

// cliEnvelope mirrors the localCLI-A stdout JSON envelope: the target
// payload may live under "result" as a JSON string, under "content" as a
// list of text blocks, or the envelope itself may already be the payload.
type cliEnvelope struct {
	Result  string `json:"result"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// ExtractCLIJSONResponse decodes a localCLI-A style stdout payload.
func ExtractCLIJSONResponse(stdout string) (map[string]any, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil, errors.New("empty CLI stdout")
	}

	var envelope map[string]any
	if err := json.Unmarshal([]byte(trimmed), &envelope); err == nil {
		var cli cliEnvelope
		_ = json.Unmarshal([]byte(trimmed), &cli)

		if strings.TrimSpace(cli.Result) != "" {
			return ExtractJSONObject(cli.Result)
		}
		if len(cli.Content) > 0 {
			var text strings.Builder
			for _, block := range cli.Content {
				if block.Type == "text" {
					text.WriteString(block.Text)
				}
			}
			if strings.TrimSpace(text.String()) != "" {
				return ExtractJSONObject(text.String())
			}
		}
		if schemaVersion, _ := envelope["schema_version"].(string); schemaVersion == "session-mechanism.v1" {
			return envelope, nil
		}
		if _, ok := envelope["session_id"]; ok {
			return envelope, nil
		}
	}
	return ExtractJSONObject(trimmed)
}
