// Package artifact defines the persisted types of the visual regression
// pipeline: captured Artifacts, their paint Commands, and the results of
// comparing two captures. The JSON forms here are the stable on-disk and
// on-wire schema — consumers like CI reporters parse these directly.
package artifact

import (
	"fmt"
	"strings"
	"time"
)

// Mode distinguishes the two capture strategies.
type Mode string

const (
	// ModeCompositor captures a fingerprint of the compositor's paint
	// command log.
	ModeCompositor Mode = "compositor"
	// ModePixel captures a full-page raster screenshot.
	ModePixel Mode = "pixel"
)

// Command is a single recorded draw instruction, normalized: the method
// name is canonical and params never contain session-, pointer-, or
// time-dependent fields.
type Command struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

// Viewport is the emulated page size a capture ran under.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Metadata records the capture context.
type Metadata struct {
	URL       string   `json:"url"`
	Viewport  Viewport `json:"viewport"`
	UserAgent string   `json:"userAgent,omitempty"`
}

// Artifact is one named capture. In compositor mode Commands is populated
// and ImageRef is empty; in pixel mode ImageRef points at the raw PNG on
// disk and Commands is nil. Exactly one of the two is ever set.
type Artifact struct {
	ID         string    `json:"id"` // UUIDv7
	Name       string    `json:"name"`
	Timestamp  time.Time `json:"timestamp"`
	Mode       Mode      `json:"mode"`
	Hash       string    `json:"hash,omitempty"` // 16 hex chars, or "error-<ms>"
	LayerCount int       `json:"layerCount"`
	Commands   []Command `json:"commands,omitempty"`
	ImageRef   string    `json:"imageRef,omitempty"`
	Metadata   Metadata  `json:"metadata"`
}

// Validate checks the mode/payload invariant.
func (a *Artifact) Validate() error {
	switch a.Mode {
	case ModeCompositor:
		if a.ImageRef != "" {
			return fmt.Errorf("artifact: compositor artifact %q carries image ref", a.Name)
		}
	case ModePixel:
		if len(a.Commands) > 0 {
			return fmt.Errorf("artifact: pixel artifact %q carries commands", a.Name)
		}
	default:
		return fmt.Errorf("artifact: unknown mode %q", a.Mode)
	}
	return nil
}

// ErrorHash builds the degenerate hash recorded when a compositor capture
// fails. It never equals a real fingerprint, so the next successful capture
// is guaranteed to mismatch rather than silently pass.
func ErrorHash(at time.Time) string {
	return fmt.Sprintf("error-%d", at.UnixMilli())
}

// IsErrorHash reports whether h marks a failed capture.
func IsErrorHash(h string) bool {
	return strings.HasPrefix(h, "error-")
}

// Status of a comparison.
type Status string

const (
	StatusCreated  Status = "created"  // no baseline existed; this capture became it
	StatusMatch    Status = "match"    // actual equals baseline
	StatusMismatch Status = "mismatch" // actual differs from baseline
)

// IndexedCommand is a command together with its position in a sequence.
type IndexedCommand struct {
	Index   int     `json:"index"`
	Command Command `json:"command"`
}

// ModifiedCommand pairs the baseline and actual commands at one index.
type ModifiedCommand struct {
	Index    int     `json:"index"`
	Baseline Command `json:"baseline"`
	Actual   Command `json:"actual"`
}

// Diff classifies the differences between two command sequences by index
// position. Alignment is positional, not edit-distance based: an insertion
// early in the actual sequence cascades into Modified entries for every
// later index.
type Diff struct {
	Added    []IndexedCommand  `json:"added"`
	Removed  []IndexedCommand  `json:"removed"`
	Modified []ModifiedCommand `json:"modified"`
}

// Empty reports whether the diff records no differences.
func (d *Diff) Empty() bool {
	return d == nil || (len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0)
}

// PixelReport is the outcome of a raster comparison.
type PixelReport struct {
	MismatchedPixels int     `json:"mismatchedPixels"`
	TotalPixels      int     `json:"totalPixels"`
	Percentage       float64 `json:"percentage"`
	Match            bool    `json:"match"`
	DiffRef          string  `json:"diffRef,omitempty"`
}

// ComparisonResult is what Compare returns for either strategy. Diff is
// populated only for compositor mismatches, Pixels only for pixel runs.
type ComparisonResult struct {
	Name     string       `json:"name"`
	Status   Status       `json:"status"`
	Baseline *Artifact    `json:"baseline,omitempty"`
	Actual   *Artifact    `json:"actual,omitempty"`
	Diff     *Diff        `json:"diff,omitempty"`
	Pixels   *PixelReport `json:"pixels,omitempty"`
}
