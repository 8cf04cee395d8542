package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rendis/handoff/pkg/schema"
)

// maxBodyBytes caps inbound request bodies.
const maxBodyBytes = 1 << 20

// extractBody parses a request body into a JSON object. Clients wrap
// payloads inconsistently: some send the object directly, some nest it
// under a "body" key, and some stringify that nested payload. All three
// shapes decode to the same parsed structure here so handlers only ever
// see the inner object.
func extractBody(r *http.Request) (map[string]any, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "failed to read request body").WithCause(err)
	}
	if len(raw) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "request body is empty")
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "request body is not a JSON object").WithCause(err)
	}

	return unwrapBody(parsed), nil
}

// unwrapBody peels proxy-style {"body": ...} envelopes. The nested body
// may itself be an object or a stringified JSON object.
func unwrapBody(parsed map[string]any) map[string]any {
	for {
		if len(parsed) != 1 {
			return parsed
		}
		inner, ok := parsed["body"]
		if !ok {
			return parsed
		}
		switch v := inner.(type) {
		case map[string]any:
			parsed = v
		case string:
			var decoded map[string]any
			if err := json.Unmarshal([]byte(v), &decoded); err != nil {
				return parsed
			}
			parsed = decoded
		default:
			return parsed
		}
	}
}

// decodeInto extracts the body and remarshals it into a typed struct.
func decodeInto(r *http.Request, dst any) error {
	parsed, err := extractBody(r)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(parsed)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to re-encode request body").WithCause(err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return schema.NewError(schema.ErrCodeValidation, "request body has unexpected field types").WithCause(err)
	}
	return nil
}
