package visor

import (
	"bytes"
	"encoding/json"

	"github.com/gowebpki/jcs"

	"github.com/hazyhaar/visor/artifact"
)

// Diff classifies the differences between two command sequences by index:
// present only in actual is added, only in baseline is removed, present in
// both but structurally unequal is modified. Alignment is positional on
// purpose — an early insertion cascades into modified entries for every
// later index. An alignment-tolerant diff could replace this behind the
// same signature.
func Diff(baseline, actual []artifact.Command) *artifact.Diff {
	d := &artifact.Diff{
		Added:    []artifact.IndexedCommand{},
		Removed:  []artifact.IndexedCommand{},
		Modified: []artifact.ModifiedCommand{},
	}

	n := len(baseline)
	if len(actual) > n {
		n = len(actual)
	}

	for i := 0; i < n; i++ {
		inBase, inActual := i < len(baseline), i < len(actual)
		switch {
		case inActual && !inBase:
			d.Added = append(d.Added, artifact.IndexedCommand{Index: i, Command: actual[i]})
		case inBase && !inActual:
			d.Removed = append(d.Removed, artifact.IndexedCommand{Index: i, Command: baseline[i]})
		case !commandsEqual(baseline[i], actual[i]):
			d.Modified = append(d.Modified, artifact.ModifiedCommand{
				Index:    i,
				Baseline: baseline[i],
				Actual:   actual[i],
			})
		}
	}
	return d
}

// commandsEqual compares two commands through their canonical JSON form,
// so numeric representation (int from a fresh capture, float64 through a
// JSON roundtrip) and map iteration order never affect the verdict.
func commandsEqual(a, b artifact.Command) bool {
	ca, err := canonicalCommand(a)
	if err != nil {
		return false
	}
	cb, err := canonicalCommand(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

func canonicalCommand(c artifact.Command) ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}
