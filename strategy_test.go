package visor

import "testing"

func TestResolveStrategy(t *testing.T) {
	cases := []struct {
		name  string
		in    Strategy
		ciEnv string
		want  Strategy
	}{
		{"explicit compositor wins in CI", StrategyCompositor, "true", StrategyCompositor},
		{"explicit pixel wins locally", StrategyPixel, "", StrategyPixel},
		{"auto in CI picks pixel", StrategyAuto, "1", StrategyPixel},
		{"auto locally picks compositor", StrategyAuto, "", StrategyCompositor},
		{"empty behaves as auto", Strategy(""), "", StrategyCompositor},
		{"unknown behaves as auto", Strategy("wat"), "yes", StrategyPixel},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := resolveStrategy(tc.in, tc.ciEnv); got != tc.want {
				t.Errorf("resolveStrategy(%q, %q) = %q, want %q", tc.in, tc.ciEnv, got, tc.want)
			}
		})
	}
}
