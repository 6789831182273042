// Package paint turns raw paint-log entries into the canonical command
// sequence that gets fingerprinted: one naming scheme, no nondeterministic
// fields, no captured instrumentation, optionally supplemented with
// DOM-derived text commands.
package paint

import (
	"strings"

	"github.com/hazyhaar/visor/artifact"
)

// methodAliases are the fields a raw entry may carry its operation name
// under, in resolution order.
var methodAliases = []string{"method", "name", "op", "cmd", "type"}

// denyParams are parameter fields that are session-, pointer-, or
// time-dependent, or opaque blobs that differ across platforms for
// identical paint output. They never survive normalization.
var denyParams = map[string]struct{}{
	"timestamp":     {},
	"time":          {},
	"ts":            {},
	"snapshotId":    {},
	"layerId":       {},
	"nodeId":        {},
	"backendNodeId": {},
	"paintCount":    {},
	"textBlob":      {},
	"glyphs":        {},
	"fontHandle":    {},
	"resourceId":    {},
	"cacheId":       {},
	"pictureId":     {},
}

// scriptMarkers betray injected script captured as page text: declaration
// and function syntax, DOM and window references, arrow functions.
var scriptMarkers = []string{
	"function(",
	"function (",
	"=>",
	"var ",
	"let ",
	"const ",
	"window.",
	"document.",
	"return ",
}

// Normalize maps raw paint-log entries into the canonical ordered command
// sequence. Entry order is preserved. Text-draw commands whose payload
// resembles injected script are dropped entirely: test-harness
// instrumentation is not paint content.
func Normalize(raw []map[string]any, scriptMaxLen int) []artifact.Command {
	out := make([]artifact.Command, 0, len(raw))
	for _, entry := range raw {
		cmd := artifact.Command{Method: resolveMethod(entry)}

		if params, ok := entry["params"].(map[string]any); ok {
			copied := copyParams(params)
			if len(copied) > 0 {
				cmd.Params = copied
			}
		}

		if isTextDraw(cmd.Method) && looksLikeScript(cmd.Params, scriptMaxLen) {
			continue
		}

		out = append(out, cmd)
	}
	return out
}

// resolveMethod picks the operation name from whichever alias field is
// populated, defaulting to "unknown".
func resolveMethod(entry map[string]any) string {
	for _, key := range methodAliases {
		if v, ok := entry[key].(string); ok && v != "" {
			return v
		}
	}
	return "unknown"
}

func copyParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if _, denied := denyParams[k]; denied {
			continue
		}
		out[k] = v
	}
	return out
}

func isTextDraw(method string) bool {
	return strings.Contains(strings.ToLower(method), "text")
}

// looksLikeScript reports whether any string parameter of a text-draw
// command reads like code rather than page text.
func looksLikeScript(params map[string]any, maxLen int) bool {
	for _, v := range params {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if maxLen > 0 && len(s) > maxLen {
			return true
		}
		for _, marker := range scriptMarkers {
			if strings.Contains(s, marker) {
				return true
			}
		}
	}
	return false
}
