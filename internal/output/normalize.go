package output

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// NormalizeJSONValue converts CBOR-decoded values into something
// encoding/json accepts: map keys become strings, byte strings and tags
// are summarized.
func NormalizeJSONValue(value any) any {
	switch v := value.(type) {
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[fmt.Sprint(key)] = NormalizeJSONValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = NormalizeJSONValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = NormalizeJSONValue(item)
		}
		return out
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(v))
	case cbor.Tag:
		return map[string]any{
			"tag":     v.Number,
			"content": NormalizeJSONValue(v.Content),
		}
	default:
		return v
	}
}
