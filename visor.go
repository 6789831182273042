// Package visor performs visual regression testing of rendered pages by
// fingerprinting the browser's paint output instead of comparing raw
// screenshots, with pixel comparison as an alternate strategy.
//
// A capture drives Chrome's LayerTree inspection over the DevTools
// protocol: force a compositing pass, snapshot each paint layer's command
// log, normalize the heterogeneous payloads into a canonical command
// sequence, and hash it into a platform-independent fingerprint. Compare
// runs a capture against the stored baseline and reports created, match,
// or mismatch with a positional command diff.
package visor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/visor/artifact"
	"github.com/hazyhaar/visor/internal/browser"
	"github.com/hazyhaar/visor/internal/config"
	"github.com/hazyhaar/visor/internal/layers"
	"github.com/hazyhaar/visor/internal/paint"
	"github.com/hazyhaar/visor/internal/pixel"
	"github.com/hazyhaar/visor/internal/store"
)

// Service is the comparison facade. It owns the artifact store and the
// shared browser handle; the browser launches lazily on the first capture
// and both are released exactly once by Close.
type Service struct {
	cfg      *config.Config
	mgr      *browser.Manager
	store    *store.Store
	strategy Strategy
	logger   *slog.Logger

	// Capture implementations. Injectable so the state machine is
	// testable without a live browser.
	compositorCapture func(ctx context.Context, name, url string) *artifact.Artifact
	rasterCapture     func(ctx context.Context, url string) ([]byte, string, error)

	closeOnce sync.Once
	closeErr  error
}

// New creates a Service from configuration. The strategy is resolved here,
// once: an explicit strategy in cfg wins, auto consults the CI environment
// variable.
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(cfg.Store.DBPath, cfg.Store.ImageDir)
	if err != nil {
		return nil, fmt.Errorf("visor: open store: %w", err)
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:  cfg.Browser.Remote,
		NavTimeout: cfg.Browser.NavTimeout,
		Logger:     logger,
	})

	s := &Service{
		cfg:      cfg,
		mgr:      mgr,
		store:    st,
		strategy: resolveStrategy(Strategy(cfg.Strategy), os.Getenv("CI")),
		logger:   logger,
	}
	s.compositorCapture = s.captureCompositor
	s.rasterCapture = s.capturePixelBytes
	return s, nil
}

// Strategy reports the strategy resolved at construction.
func (s *Service) Strategy() Strategy {
	return s.strategy
}

// Close shuts down the browser and the store. Safe to call more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		berr := s.mgr.Close()
		serr := s.store.Close()
		s.closeErr = errors.Join(berr, serr)
	})
	return s.closeErr
}

// Capture captures the named page with the resolved strategy and persists
// the artifact: as the baseline when none exists yet, as the actual
// otherwise.
func (s *Service) Capture(ctx context.Context, name string) (*artifact.Artifact, error) {
	if s.strategy == StrategyPixel {
		return s.CapturePixel(ctx, name)
	}
	return s.CaptureCompositor(ctx, name)
}

// Compare captures the named page and compares it against the stored
// baseline with the resolved strategy.
func (s *Service) Compare(ctx context.Context, name string) (*artifact.ComparisonResult, error) {
	if s.strategy == StrategyPixel {
		return s.ComparePixel(ctx, name)
	}
	return s.CompareCompositor(ctx, name)
}

// UpdateBaseline accepts the latest actual capture as the new baseline.
func (s *Service) UpdateBaseline(ctx context.Context, name string) error {
	return s.store.Promote(ctx, name)
}

// CaptureCompositor runs a compositor-mode capture and persists it.
func (s *Service) CaptureCompositor(ctx context.Context, name string) (*artifact.Artifact, error) {
	url, err := s.pageURL(name)
	if err != nil {
		return nil, err
	}

	a := s.compositorCapture(ctx, name, url)
	if err := s.persist(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// CompareCompositor captures the page's paint fingerprint and compares it
// against the baseline. A missing baseline makes this capture the
// baseline (status created), never an error.
func (s *Service) CompareCompositor(ctx context.Context, name string) (*artifact.ComparisonResult, error) {
	url, err := s.pageURL(name)
	if err != nil {
		return nil, err
	}

	actual := s.compositorCapture(ctx, name, url)

	base, err := s.store.Load(ctx, name, store.KindBaseline)
	if errors.Is(err, store.ErrNotFound) {
		if artifact.IsErrorHash(actual.Hash) {
			// A failed capture must never become the reference.
			if err := s.store.Save(ctx, store.KindActual, actual); err != nil {
				return nil, err
			}
			s.logger.Warn("visor: capture failed with no baseline to seed", "name", name)
			return &artifact.ComparisonResult{
				Name:   name,
				Status: artifact.StatusMismatch,
				Actual: actual,
			}, nil
		}
		if err := s.store.Save(ctx, store.KindBaseline, actual); err != nil {
			return nil, err
		}
		s.logger.Info("visor: baseline created", "name", name, "hash", actual.Hash)
		return &artifact.ComparisonResult{
			Name:     name,
			Status:   artifact.StatusCreated,
			Baseline: actual,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, store.KindActual, actual); err != nil {
		return nil, err
	}

	res := compareCompositor(name, base, actual)
	s.logger.Info("visor: compared", "name", name, "status", res.Status,
		"baseline", base.Hash, "actual", actual.Hash)
	return res, nil
}

// compareCompositor applies the fingerprint equality semantics: two
// compositor artifacts are equal exactly when their truncated hashes are.
// An error-marked hash on either side is always a mismatch, even against
// another error-marked hash from the same millisecond.
func compareCompositor(name string, base, actual *artifact.Artifact) *artifact.ComparisonResult {
	res := &artifact.ComparisonResult{
		Name:     name,
		Baseline: base,
		Actual:   actual,
	}
	if base.Hash == actual.Hash && !artifact.IsErrorHash(base.Hash) {
		res.Status = artifact.StatusMatch
		return res
	}
	res.Status = artifact.StatusMismatch
	res.Diff = Diff(base.Commands, actual.Commands)
	return res
}

// captureCompositor never fails: any error during capture is converted
// into an error-marked artifact whose hash can never equal a real
// fingerprint, so infrastructure trouble surfaces as a mismatch on the
// next healthy run instead of crashing the caller.
func (s *Service) captureCompositor(ctx context.Context, name, url string) *artifact.Artifact {
	a, err := s.tryCaptureCompositor(ctx, name, url)
	if err != nil {
		s.logger.Warn("visor: compositor capture failed, recording error artifact",
			"name", name, "url", url, "error", err)
		now := time.Now().UTC()
		return &artifact.Artifact{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Name:      name,
			Timestamp: now,
			Mode:      artifact.ModeCompositor,
			Hash:      artifact.ErrorHash(now),
			Metadata:  s.metadata(url, ""),
		}
	}
	return a
}

func (s *Service) tryCaptureCompositor(ctx context.Context, name, url string) (*artifact.Artifact, error) {
	tab, err := browser.OpenTab(ctx, s.mgr, url,
		s.cfg.Capture.Viewport.Width, s.cfg.Capture.Viewport.Height, s.cfg.Capture.Settle)
	if err != nil {
		return nil, err
	}
	defer tab.Close()

	lys, err := layers.Discover(ctx, tab, s.cfg.Capture.DiscoveryWait, s.logger)
	if err != nil {
		return nil, err
	}

	raw := layers.Extract(ctx, tab, lys, s.logger)
	cmds := paint.Normalize(raw, s.cfg.Capture.ScriptMaxLen)

	// DOM-derived text supplements the layer log, and stands in for the
	// whole document when no layer yielded anything.
	if !s.cfg.Capture.DisableDOMText || len(cmds) == 0 {
		text, err := paint.DocumentText(ctx, tab)
		if err != nil {
			s.logger.Debug("visor: document text walk failed", "name", name, "error", err)
		} else {
			cmds = append(cmds, text...)
		}
	}

	if len(cmds) == 0 {
		s.logger.Warn("visor: capture produced no commands", "name", name, "url", url)
	}

	hash, err := paint.Fingerprint(cmds)
	if err != nil {
		return nil, err
	}

	ua, err := tab.UserAgent(ctx)
	if err != nil {
		s.logger.Debug("visor: user agent lookup failed", "error", err)
	}

	return &artifact.Artifact{
		ID:         uuid.Must(uuid.NewV7()).String(),
		Name:       name,
		Timestamp:  time.Now().UTC(),
		Mode:       artifact.ModeCompositor,
		Hash:       hash,
		LayerCount: len(lys),
		Commands:   cmds,
		Metadata:   s.metadata(url, ua),
	}, nil
}

// CapturePixel runs a pixel-mode capture and persists it. Unlike the
// compositor path, raster capture failures are real errors.
func (s *Service) CapturePixel(ctx context.Context, name string) (*artifact.Artifact, error) {
	url, err := s.pageURL(name)
	if err != nil {
		return nil, err
	}

	data, ua, err := s.rasterCapture(ctx, url)
	if err != nil {
		return nil, err
	}

	kind := store.KindActual
	if _, err := s.store.Load(ctx, name, store.KindBaseline); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		kind = store.KindBaseline
	}

	path := s.store.ImagePath(name, kind)
	if err := s.store.WriteImage(path, data); err != nil {
		return nil, err
	}

	a := s.pixelArtifact(name, url, ua, path)
	if err := s.store.Save(ctx, kind, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ComparePixel captures a full-page raster and compares it pixel-wise
// against the baseline image, resampling on dimension mismatch. A nonzero
// mismatch writes the highlighted diff image; a clean match removes any
// stale one.
func (s *Service) ComparePixel(ctx context.Context, name string) (*artifact.ComparisonResult, error) {
	url, err := s.pageURL(name)
	if err != nil {
		return nil, err
	}

	data, ua, err := s.rasterCapture(ctx, url)
	if err != nil {
		return nil, err
	}

	basePath := s.store.ImagePath(name, store.KindBaseline)
	baseBytes, err := s.store.ReadImage(basePath)
	if errors.Is(err, store.ErrNotFound) {
		if err := s.store.WriteImage(basePath, data); err != nil {
			return nil, err
		}
		a := s.pixelArtifact(name, url, ua, basePath)
		if err := s.store.Save(ctx, store.KindBaseline, a); err != nil {
			return nil, err
		}
		s.logger.Info("visor: pixel baseline created", "name", name, "path", basePath)
		return &artifact.ComparisonResult{
			Name:     name,
			Status:   artifact.StatusCreated,
			Baseline: a,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	actualPath := s.store.ImagePath(name, store.KindActual)
	if err := s.store.WriteImage(actualPath, data); err != nil {
		return nil, err
	}
	actual := s.pixelArtifact(name, url, ua, actualPath)
	if err := s.store.Save(ctx, store.KindActual, actual); err != nil {
		return nil, err
	}

	rep, diffImg, err := pixel.Compare(baseBytes, data, pixel.Options{
		Threshold: *s.cfg.Pixel.Threshold,
		IncludeAA: s.cfg.Pixel.IncludeAA,
	})
	if err != nil {
		return nil, fmt.Errorf("visor: pixel compare %s: %w", name, err)
	}

	base, err := s.store.Load(ctx, name, store.KindBaseline)
	if err != nil {
		return nil, err
	}

	res := &artifact.ComparisonResult{
		Name:     name,
		Baseline: base,
		Actual:   actual,
		Pixels: &artifact.PixelReport{
			MismatchedPixels: rep.MismatchedPixels,
			TotalPixels:      rep.TotalPixels,
			Percentage:       rep.Percentage,
			Match:            rep.Match,
		},
	}

	if rep.Match {
		res.Status = artifact.StatusMatch
		s.store.RemoveDiff(name)
	} else {
		res.Status = artifact.StatusMismatch
		diffPath := s.store.DiffPath(name)
		if encoded, err := pixel.Encode(diffImg); err != nil {
			s.logger.Warn("visor: encode diff image failed", "name", name, "error", err)
		} else if err := s.store.WriteImage(diffPath, encoded); err != nil {
			s.logger.Warn("visor: write diff image failed", "name", name, "error", err)
		} else {
			res.Pixels.DiffRef = diffPath
		}
	}

	s.logger.Info("visor: pixel compared", "name", name, "status", res.Status,
		"mismatched", rep.MismatchedPixels, "percent", rep.Percentage)
	return res, nil
}

func (s *Service) capturePixelBytes(ctx context.Context, url string) (data []byte, ua string, err error) {
	tab, err := browser.OpenTab(ctx, s.mgr, url,
		s.cfg.Capture.Viewport.Width, s.cfg.Capture.Viewport.Height, s.cfg.Capture.Settle)
	if err != nil {
		return nil, "", err
	}
	defer tab.Close()

	data, err = tab.Screenshot(ctx)
	if err != nil {
		return nil, "", err
	}
	if ua, err = tab.UserAgent(ctx); err != nil {
		s.logger.Debug("visor: user agent lookup failed", "error", err)
		err = nil
	}
	return data, ua, nil
}

func (s *Service) pixelArtifact(name, url, ua, imageRef string) *artifact.Artifact {
	return &artifact.Artifact{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Name:      name,
		Timestamp: time.Now().UTC(),
		Mode:      artifact.ModePixel,
		ImageRef:  imageRef,
		Metadata:  s.metadata(url, ua),
	}
}

// persist stores a capture as the baseline when none exists, as the
// actual otherwise. Error-marked captures are only ever stored as the
// actual so they cannot seed a poisoned baseline.
func (s *Service) persist(ctx context.Context, a *artifact.Artifact) error {
	if artifact.IsErrorHash(a.Hash) {
		return s.store.Save(ctx, store.KindActual, a)
	}
	_, err := s.store.Load(ctx, a.Name, store.KindBaseline)
	if errors.Is(err, store.ErrNotFound) {
		return s.store.Save(ctx, store.KindBaseline, a)
	}
	if err != nil {
		return err
	}
	return s.store.Save(ctx, store.KindActual, a)
}

func (s *Service) pageURL(name string) (string, error) {
	url, ok := s.cfg.PageURL(name)
	if !ok {
		return "", fmt.Errorf("visor: no page configured under name %q", name)
	}
	return url, nil
}

func (s *Service) metadata(url, ua string) artifact.Metadata {
	return artifact.Metadata{
		URL: url,
		Viewport: artifact.Viewport{
			Width:  s.cfg.Capture.Viewport.Width,
			Height: s.cfg.Capture.Viewport.Height,
		},
		UserAgent: ua,
	}
}
