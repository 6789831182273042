package artifact

import (
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	good := &Artifact{Name: "home", Mode: ModeCompositor,
		Commands: []Command{{Method: "drawRect"}}}
	if err := good.Validate(); err != nil {
		t.Errorf("compositor artifact: %v", err)
	}

	crossed := &Artifact{Name: "home", Mode: ModeCompositor, ImageRef: "x.png"}
	if err := crossed.Validate(); err == nil {
		t.Error("compositor artifact with image ref should fail")
	}

	pixelCrossed := &Artifact{Name: "home", Mode: ModePixel,
		Commands: []Command{{Method: "drawRect"}}}
	if err := pixelCrossed.Validate(); err == nil {
		t.Error("pixel artifact with commands should fail")
	}

	if err := (&Artifact{Name: "home", Mode: "raster"}).Validate(); err == nil {
		t.Error("unknown mode should fail")
	}
}

func TestErrorHash(t *testing.T) {
	at := time.UnixMilli(1756400000000)
	h := ErrorHash(at)
	if h != "error-1756400000000" {
		t.Errorf("got %q", h)
	}
	if !IsErrorHash(h) {
		t.Error("IsErrorHash should accept its own output")
	}
	if IsErrorHash("a1b2c3d4e5f60718") {
		t.Error("IsErrorHash should reject a real fingerprint")
	}
}

func TestMarshalTimestampISO8601(t *testing.T) {
	a := &Artifact{
		Name:      "home",
		Timestamp: time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC),
		Mode:      ModeCompositor,
		Hash:      "a1b2c3d4e5f60718",
	}
	data, err := Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"2026-08-29T10:30:00Z"`) {
		t.Errorf("timestamp not ISO-8601: %s", data)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Timestamp.Equal(a.Timestamp) {
		t.Errorf("roundtrip timestamp: got %v", got.Timestamp)
	}
}

func TestDiffEmpty(t *testing.T) {
	var d *Diff
	if !d.Empty() {
		t.Error("nil diff should be empty")
	}
	if !(&Diff{}).Empty() {
		t.Error("zero diff should be empty")
	}
	if (&Diff{Added: []IndexedCommand{{}}}).Empty() {
		t.Error("diff with additions should not be empty")
	}
}
