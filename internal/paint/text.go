package paint

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/hazyhaar/visor/artifact"
	"github.com/hazyhaar/visor/internal/browser"
)

// domTextJS walks visible text nodes with a TreeWalker, skipping script,
// style, noscript and hidden subtrees, and reports each run with its
// bounding box. Coordinates are rounded on the Go side.
const domTextJS = `() => {
	const skip = new Set(['SCRIPT', 'STYLE', 'NOSCRIPT', 'TEMPLATE']);
	const runs = [];
	const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT, {
		acceptNode(node) {
			const text = node.textContent.trim();
			if (!text) return NodeFilter.FILTER_REJECT;
			const el = node.parentElement;
			if (!el || skip.has(el.tagName)) return NodeFilter.FILTER_REJECT;
			const style = getComputedStyle(el);
			if (style.display === 'none' || style.visibility === 'hidden') {
				return NodeFilter.FILTER_REJECT;
			}
			return NodeFilter.FILTER_ACCEPT;
		}
	});
	while (walker.nextNode()) {
		const node = walker.currentNode;
		const range = document.createRange();
		range.selectNodeContents(node);
		const rect = range.getBoundingClientRect();
		if (rect.width === 0 && rect.height === 0) continue;
		runs.push({
			text: node.textContent.trim(),
			x: rect.x, y: rect.y, width: rect.width, height: rect.height
		});
	}
	return JSON.stringify(runs);
}`

type textRun struct {
	Text   string  `json:"text"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DocumentText synthesizes draw-text commands from the visible DOM text.
// It compensates for text being under-represented in layer command logs,
// and doubles as the whole-document fallback when no layer yields
// anything. Bounding boxes are rounded to integers so sub-pixel layout
// jitter does not perturb the fingerprint.
func DocumentText(ctx context.Context, tab *browser.Tab) ([]artifact.Command, error) {
	res, err := tab.Page.Context(ctx).Eval(domTextJS)
	if err != nil {
		return nil, fmt.Errorf("paint: walk document text: %w", err)
	}

	var runs []textRun
	if err := json.Unmarshal([]byte(res.Value.Str()), &runs); err != nil {
		return nil, fmt.Errorf("paint: decode text runs: %w", err)
	}

	return textCommands(runs), nil
}

// textCommands rounds each run's bounding box to integers. Rounding is
// half away from zero so negative coordinates (runs scrolled past the
// viewport origin) round symmetrically with positive ones.
func textCommands(runs []textRun) []artifact.Command {
	cmds := make([]artifact.Command, 0, len(runs))
	for _, r := range runs {
		cmds = append(cmds, artifact.Command{
			Method: "drawTextBlob",
			Params: map[string]any{
				"text": r.Text,
				"bounds": map[string]any{
					"x":      roundPx(r.X),
					"y":      roundPx(r.Y),
					"width":  roundPx(r.Width),
					"height": roundPx(r.Height),
				},
			},
		})
	}
	return cmds
}

func roundPx(v float64) int {
	return int(math.Round(v))
}
