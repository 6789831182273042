package visor

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/hazyhaar/visor/artifact"
	"github.com/hazyhaar/visor/internal/browser"
	"github.com/hazyhaar/visor/internal/config"
	"github.com/hazyhaar/visor/internal/dbopen"
	"github.com/hazyhaar/visor/internal/pixel"
	"github.com/hazyhaar/visor/internal/store"

	_ "modernc.org/sqlite"
)

// newTestService builds a Service on an in-memory store with the capture
// step left for the test to stub, so the compare state machine runs
// without a browser.
func newTestService(t *testing.T, strategy Strategy) *Service {
	t.Helper()

	st, err := store.New(dbopen.OpenMemory(t), t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	cfg := &config.Config{
		Pages: []config.PageConfig{{Name: "home", URL: "https://example.com"}},
	}
	cfg.ApplyDefaults()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Service{
		cfg:      cfg,
		mgr:      browser.NewManager(browser.Config{Logger: logger}),
		store:    st,
		strategy: strategy,
		logger:   logger,
	}
}

func stubCompositor(hash string, cmds []artifact.Command) func(context.Context, string, string) *artifact.Artifact {
	return func(_ context.Context, name, url string) *artifact.Artifact {
		a := compositorArtifact(hash, cmds)
		a.Name = name
		a.Metadata.URL = url
		return a
	}
}

func pngBytes(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	data, err := pixel.Encode(img)
	if err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return data
}

func TestCompareCreatesBaselineThenMatches(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, StrategyCompositor)
	svc.compositorCapture = stubCompositor("a1b2c3d4e5f60718",
		[]artifact.Command{{Method: "drawRect"}})

	res, err := svc.Compare(ctx, "home")
	if err != nil {
		t.Fatalf("first compare: %v", err)
	}
	if res.Status != artifact.StatusCreated {
		t.Fatalf("first compare status: got %q, want created", res.Status)
	}
	if res.Baseline == nil || res.Baseline.Hash != "a1b2c3d4e5f60718" {
		t.Fatalf("created result baseline: got %+v", res.Baseline)
	}

	// The created baseline must load back from the store.
	base, err := svc.store.Load(ctx, "home", store.KindBaseline)
	if err != nil {
		t.Fatalf("load created baseline: %v", err)
	}
	if base.Hash != "a1b2c3d4e5f60718" {
		t.Errorf("stored baseline hash: got %q", base.Hash)
	}

	// An unchanged page matches on every subsequent run.
	for i := 0; i < 2; i++ {
		res, err := svc.Compare(ctx, "home")
		if err != nil {
			t.Fatalf("compare %d: %v", i+2, err)
		}
		if res.Status != artifact.StatusMatch {
			t.Errorf("compare %d status: got %q, want match", i+2, res.Status)
		}
	}
}

func TestCompareFailedCaptureDoesNotSeedBaseline(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, StrategyCompositor)
	svc.compositorCapture = stubCompositor(artifact.ErrorHash(time.Now().UTC()), nil)

	res, err := svc.Compare(ctx, "home")
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if res.Status != artifact.StatusMismatch {
		t.Errorf("status: got %q, want mismatch", res.Status)
	}
	if _, err := svc.store.Load(ctx, "home", store.KindBaseline); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("baseline after failed capture: got err %v, want ErrNotFound", err)
	}

	// The failed capture is still recorded for inspection.
	act, err := svc.store.Load(ctx, "home", store.KindActual)
	if err != nil {
		t.Fatalf("load actual: %v", err)
	}
	if !artifact.IsErrorHash(act.Hash) {
		t.Errorf("actual hash: got %q, want error-marked", act.Hash)
	}

	// The next healthy capture seeds the baseline as a first run would.
	svc.compositorCapture = stubCompositor("a1b2c3d4e5f60718",
		[]artifact.Command{{Method: "drawRect"}})
	res, err = svc.Compare(ctx, "home")
	if err != nil {
		t.Fatalf("healthy compare: %v", err)
	}
	if res.Status != artifact.StatusCreated {
		t.Errorf("healthy compare status: got %q, want created", res.Status)
	}
}

func TestCompareCompositorTwoFailedCapturesMismatch(t *testing.T) {
	// Error hashes have millisecond resolution, so two failed captures can
	// carry the exact same hash. They must still never compare as equal.
	ts := time.Now().UTC()
	base := compositorArtifact(artifact.ErrorHash(ts), nil)
	actual := compositorArtifact(artifact.ErrorHash(ts), nil)

	res := compareCompositor("home", base, actual)
	if res.Status != artifact.StatusMismatch {
		t.Errorf("status: got %q, want mismatch", res.Status)
	}
}

func TestCaptureCompositorFailedCaptureStoredAsActual(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, StrategyCompositor)
	svc.compositorCapture = stubCompositor(artifact.ErrorHash(time.Now().UTC()), nil)

	a, err := svc.CaptureCompositor(ctx, "home")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if !artifact.IsErrorHash(a.Hash) {
		t.Fatalf("hash: got %q, want error-marked", a.Hash)
	}
	if _, err := svc.store.Load(ctx, "home", store.KindBaseline); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("baseline after failed capture: got err %v, want ErrNotFound", err)
	}
	if _, err := svc.store.Load(ctx, "home", store.KindActual); err != nil {
		t.Errorf("load actual: %v", err)
	}
}

func TestComparePixelLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, StrategyPixel)

	white := pngBytes(t, 20, 20, color.RGBA{255, 255, 255, 255})
	svc.rasterCapture = func(context.Context, string) ([]byte, string, error) {
		return white, "test-agent", nil
	}

	res, err := svc.Compare(ctx, "home")
	if err != nil {
		t.Fatalf("first compare: %v", err)
	}
	if res.Status != artifact.StatusCreated {
		t.Fatalf("first compare status: got %q, want created", res.Status)
	}

	res, err = svc.Compare(ctx, "home")
	if err != nil {
		t.Fatalf("second compare: %v", err)
	}
	if res.Status != artifact.StatusMatch || res.Pixels == nil || !res.Pixels.Match {
		t.Fatalf("second compare: got status %q, pixels %+v", res.Status, res.Pixels)
	}

	black := pngBytes(t, 20, 20, color.RGBA{0, 0, 0, 255})
	svc.rasterCapture = func(context.Context, string) ([]byte, string, error) {
		return black, "test-agent", nil
	}
	res, err = svc.Compare(ctx, "home")
	if err != nil {
		t.Fatalf("third compare: %v", err)
	}
	if res.Status != artifact.StatusMismatch {
		t.Fatalf("third compare status: got %q, want mismatch", res.Status)
	}
	if res.Pixels == nil || res.Pixels.DiffRef == "" {
		t.Fatalf("mismatch pixels: got %+v, want diff image reference", res.Pixels)
	}
	if _, err := os.Stat(res.Pixels.DiffRef); err != nil {
		t.Errorf("diff image: %v", err)
	}
}

func TestCapturePixelPropagatesStoreError(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, StrategyPixel)
	svc.rasterCapture = func(context.Context, string) ([]byte, string, error) {
		return pngBytes(t, 4, 4, color.RGBA{255, 255, 255, 255}), "", nil
	}

	// A broken store must surface as an error, not silently demote the
	// capture to an actual.
	if err := svc.store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
	if _, err := svc.CapturePixel(ctx, "home"); err == nil {
		t.Fatal("expected error from broken store")
	}
}
