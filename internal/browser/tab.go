package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab wraps a Rod page set up for a capture: stealth applied, viewport
// pinned, navigation complete. One capture owns one Tab and closes it
// before returning.
type Tab struct {
	Page    *rod.Page
	PageURL string
}

// OpenTab creates a stealth tab, pins the viewport, navigates, and waits
// for the page to load and settle. The stealth patches keep instrumented
// pages from rendering anti-bot variants that would perturb the paint log.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string, width, height int, settle time.Duration) (*Tab, error) {
	b, err := mgr.acquire()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	}); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: set viewport: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, mgr.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	if settle > 0 {
		if err := page.Context(navCtx).WaitIdle(settle); err != nil {
			mgr.cfg.Logger.Debug("browser: settle wait ended early", "url", pageURL, "error", err)
		}
	}

	return &Tab{Page: page, PageURL: pageURL}, nil
}

// Call issues a raw CDP command on this tab's session and returns the
// undecoded result. Used where the typed bindings would hide payload-shape
// inconsistencies the caller must handle itself.
func (t *Tab) Call(ctx context.Context, method string, params any) ([]byte, error) {
	return t.Page.Call(ctx, string(t.Page.SessionID), method, params)
}

// Screenshot captures a full-page PNG.
func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := t.Page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return data, nil
}

// UserAgent reports the browser's user agent string.
func (t *Tab) UserAgent(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => navigator.userAgent`)
	if err != nil {
		return "", fmt.Errorf("browser: user agent: %w", err)
	}
	return res.Value.Str(), nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
