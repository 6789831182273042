package visor

// Strategy selects how a page is captured and compared.
type Strategy string

const (
	// StrategyAuto defers to the execution context: continuous
	// integration gets the pixel strategy for cross-machine portability,
	// interactive use gets the compositor strategy for speed.
	StrategyAuto Strategy = "auto"
	// StrategyCompositor fingerprints the paint-command log.
	StrategyCompositor Strategy = "compositor"
	// StrategyPixel compares raster screenshots.
	StrategyPixel Strategy = "pixel"
)

// resolveStrategy pins the strategy once at construction. ciEnv is the
// value of the CI environment variable; it is never re-read per call.
func resolveStrategy(s Strategy, ciEnv string) Strategy {
	switch s {
	case StrategyCompositor, StrategyPixel:
		return s
	}
	if ciEnv != "" {
		return StrategyPixel
	}
	return StrategyCompositor
}
