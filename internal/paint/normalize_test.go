package paint

import (
	"testing"
)

func TestNormalizeMethodAliases(t *testing.T) {
	raw := []map[string]any{
		{"method": "drawRect"},
		{"name": "drawPaint"},
		{"op": "clipRect"},
		{"cmd": "save"},
		{"type": "restore"},
		{"irrelevant": "x"},
	}

	got := Normalize(raw, 200)
	want := []string{"drawRect", "drawPaint", "clipRect", "save", "restore", "unknown"}

	if len(got) != len(want) {
		t.Fatalf("got %d commands, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Method != w {
			t.Errorf("command %d: got %q, want %q", i, got[i].Method, w)
		}
	}
}

func TestNormalizeStripsDeniedParams(t *testing.T) {
	raw := []map[string]any{{
		"method": "drawRect",
		"params": map[string]any{
			"x":          1.0,
			"y":          2.0,
			"timestamp":  123456.0,
			"snapshotId": "snap-9",
			"layerId":    "14",
			"textBlob":   "opaque",
			"resourceId": 7.0,
		},
	}}

	got := Normalize(raw, 200)
	if len(got) != 1 {
		t.Fatalf("got %d commands, want 1", len(got))
	}
	params := got[0].Params
	if len(params) != 2 {
		t.Fatalf("params: got %v, want only x and y", params)
	}
	if params["x"] != 1.0 || params["y"] != 2.0 {
		t.Errorf("params: got %v", params)
	}
}

func TestNormalizeRejectsInjectedScript(t *testing.T) {
	cases := []struct {
		name string
		text string
		keep bool
	}{
		{"function call", "function() { return 1; }", false},
		{"arrow", "els.map(e => e.id)", false},
		{"declaration", "const x = 5;", false},
		{"window ref", "window.__harness = true", false},
		{"document ref", "document.querySelector('x')", false},
		{"plain text", "Welcome to the homepage", true},
		{"long blob", string(make([]byte, 300)), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := []map[string]any{{
				"method": "drawTextBlob",
				"params": map[string]any{"text": tc.text},
			}}
			got := Normalize(raw, 200)
			if kept := len(got) == 1; kept != tc.keep {
				t.Errorf("kept=%v, want %v", kept, tc.keep)
			}
		})
	}
}

func TestNormalizeScriptFilterOnlyAppliesToTextDraws(t *testing.T) {
	// A non-text command with a code-looking string param survives.
	raw := []map[string]any{{
		"method": "drawRect",
		"params": map[string]any{"label": "function() {}"},
	}}
	if got := Normalize(raw, 200); len(got) != 1 {
		t.Fatalf("got %d commands, want 1", len(got))
	}
}
