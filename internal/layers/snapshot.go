package layers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/visor/internal/browser"
)

// Extract reads the paint-command log of every layer that draws content.
// Per-layer failures are logged and skipped, never fatal: a capture with
// some unreadable layers still produces a sequence from the rest. The
// returned commands follow the (sorted) layer order.
func Extract(ctx context.Context, tab *browser.Tab, lys []Layer, logger *slog.Logger) []RawCommand {
	var out []RawCommand
	for _, l := range lys {
		if !l.DrawsContent {
			continue
		}
		cmds, err := extractLayer(ctx, tab, l.ID)
		if err != nil {
			logger.Debug("layers: skipping layer", "layer", l.ID, "error", err)
			continue
		}
		out = append(out, cmds...)
	}
	return out
}

// extractLayer runs the scoped snapshot sequence for one layer:
// make snapshot, read command log, release snapshot. Release is deferred
// so the handle is freed on every exit path.
func extractLayer(ctx context.Context, tab *browser.Tab, layerID string) ([]RawCommand, error) {
	page := tab.Page.Context(ctx)

	snap, err := proto.LayerTreeMakeSnapshot{
		LayerID: proto.LayerTreeLayerID(layerID),
	}.Call(page)
	if err != nil {
		return nil, fmt.Errorf("layers: make snapshot: %w", err)
	}
	// Best-effort release: the snapshot dies with the tab anyway.
	defer func() {
		_ = proto.LayerTreeReleaseSnapshot{SnapshotID: snap.SnapshotID}.Call(page)
	}()

	// Raw call on purpose: Chrome has shipped three different shapes for
	// this result over time and the typed binding only admits one of them.
	raw, err := tab.Call(ctx, "LayerTree.snapshotCommandLog", proto.LayerTreeSnapshotCommandLog{
		SnapshotID: snap.SnapshotID,
	})
	if err != nil {
		return nil, fmt.Errorf("layers: snapshot command log: %w", err)
	}

	cmds, err := DecodeCommandLog(raw)
	if err != nil {
		// A log we cannot decode means no commands from this layer.
		return nil, fmt.Errorf("layers: decode command log: %w", err)
	}
	return cmds, nil
}
