package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/intrafind/llm-gateway/pkg/internal/jsonutil"
)

// ToolCallAccumulator buffers one tool call's incremental argument
// fragments across a stream, keyed by the vendor's block/tool index, per
// the toolCallsState algorithm: id/name arrive once, argsBuf grows with
// every delta, and the whole thing is parsed on block-stop.
type ToolCallAccumulator struct {
	ID      string
	Name    string
	ArgsBuf []byte
}

// Append adds the next argument fragment to the buffer.
func (a *ToolCallAccumulator) Append(fragment string) {
	a.ArgsBuf = append(a.ArgsBuf, fragment...)
}

// ParseToolCallArguments parses a tool call's accumulated argument buffer.
// It tries a strict decode first, then falls back to bounded JSON repair
// (balancing brackets, stripping trailing garbage) before giving up — the
// caller is expected to fall back to the documented {"_partial": "..."}
// shape when this returns an error.
func ParseToolCallArguments(buf string) (map[string]interface{}, error) {
	if buf == "" {
		return map[string]interface{}{}, nil
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(buf), &args); err == nil {
		return args, nil
	}

	repaired, err := jsonutil.FixJSON(buf)
	if err == nil {
		if err := json.Unmarshal([]byte(repaired), &args); err == nil {
			return args, nil
		}
	}

	return nil, fmt.Errorf("could not parse tool call arguments: %q", buf)
}
