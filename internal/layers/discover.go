// Package layers drives the LayerTree domain of the DevTools protocol:
// it forces a compositing pass, collects the paint layers present, and
// extracts each layer's paint-command log through a snapshot handle that
// is always released before returning.
package layers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/visor/internal/browser"
)

// Layer is one compositor paint surface. Handles are transient: a Layer
// is only valid for the capture call that discovered it.
type Layer struct {
	ID           string
	Width        float64
	Height       float64
	PaintCount   int
	DrawsContent bool
}

// forceComposite nudges the renderer into a compositing pass: a
// will-change/translateZ hint applied then reverted across elements, a
// forced layout read, and a no-op scroll down and back.
const forceCompositeJS = `() => {
	const els = document.querySelectorAll('*');
	const saved = [];
	for (const el of els) {
		saved.push([el, el.style.willChange, el.style.transform]);
		el.style.willChange = 'transform';
		el.style.transform = 'translateZ(0)';
	}
	void document.documentElement.offsetHeight;
	for (const [el, wc, tr] of saved) {
		el.style.willChange = wc;
		el.style.transform = tr;
	}
	window.scrollBy(0, 1);
	window.scrollBy(0, -1);
}`

// Discover enables LayerTree inspection, forces a compositing pass, and
// waits up to wait for the layer-tree-changed event. Timeout resolves to
// an empty set and a nil error: a page with no composited layers is a
// policy outcome, not a failure. Single attempt, no retries.
func Discover(ctx context.Context, tab *browser.Tab, wait time.Duration, logger *slog.Logger) ([]Layer, error) {
	page := tab.Page.Context(ctx)

	if err := (proto.LayerTreeEnable{}).Call(page); err != nil {
		return nil, fmt.Errorf("layers: enable: %w", err)
	}

	evtCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	var evt proto.LayerTreeLayerTreeDidChange
	waitEvt := tab.Page.Context(evtCtx).EachEvent(func(e *proto.LayerTreeLayerTreeDidChange) bool {
		evt = *e
		return true
	})

	if _, err := page.Eval(forceCompositeJS); err != nil {
		logger.Debug("layers: force composite failed", "error", err)
	}

	waitEvt()

	if len(evt.Layers) == 0 {
		logger.Debug("layers: no layer-tree event before deadline", "wait", wait)
		return nil, nil
	}

	out := make([]Layer, 0, len(evt.Layers))
	for _, l := range evt.Layers {
		if l.Invisible {
			continue
		}
		out = append(out, Layer{
			ID:           string(l.LayerID),
			Width:        l.Width,
			Height:       l.Height,
			PaintCount:   l.PaintCount,
			DrawsContent: l.DrawsContent,
		})
	}

	// Layer enumeration order is not guaranteed stable across captures of
	// an unchanged page; sort by ID so downstream hashing is deterministic.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}
