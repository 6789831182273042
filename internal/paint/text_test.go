package paint

import "testing"

func TestRoundPx(t *testing.T) {
	cases := []struct {
		in   float64
		want int
	}{
		{0, 0},
		{1.2, 1},
		{1.5, 2},
		{2.7, 3},
		{-1.2, -1},
		{-1.5, -2},
		{-2.7, -3},
	}
	for _, c := range cases {
		if got := roundPx(c.in); got != c.want {
			t.Errorf("roundPx(%v): got %d, want %d", c.in, got, c.want)
		}
	}
}

func TestTextCommandsNegativeCoordinates(t *testing.T) {
	runs := []textRun{
		{Text: "above the fold", X: -10.6, Y: -0.4, Width: 120.5, Height: 16.2},
	}

	cmds := textCommands(runs)
	if len(cmds) != 1 {
		t.Fatalf("commands: got %d, want 1", len(cmds))
	}
	bounds, ok := cmds[0].Params["bounds"].(map[string]any)
	if !ok {
		t.Fatalf("bounds: got %T", cmds[0].Params["bounds"])
	}
	if got := bounds["x"]; got != -11 {
		t.Errorf("x: got %v, want -11", got)
	}
	if got := bounds["y"]; got != 0 {
		t.Errorf("y: got %v, want 0", got)
	}
	if got := bounds["width"]; got != 121 {
		t.Errorf("width: got %v, want 121", got)
	}
	if got := bounds["height"]; got != 16 {
		t.Errorf("height: got %v, want 16", got)
	}
}
