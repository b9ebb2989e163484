// Package launch spawns installed game processes and tracks their run state
// by classifying output lines. State inference is best effort: a match moves
// the state forward along a fixed order, never backward.
package launch

import "strings"

// RunState is the log-inferred lifecycle stage of a running instance.
type RunState int

const (
	StateLaunching RunState = iota
	StateRendererReady
	StateSplash
	StateRunning
)

func (s RunState) String() string {
	switch s {
	case StateLaunching:
		return "launching"
	case StateRendererReady:
		return "renderer-ready"
	case StateSplash:
		return "splash"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// internalErrorMarker flags stdout lines that carry error reports despite
// arriving on the normal stream.
const internalErrorMarker = "Internal Exception"

// signatures map stdout substrings to the state they imply, in stage order.
var signatures = []struct {
	marker string
	state  RunState
}{
	{"LWJGL version", StateRendererReady},
	{"Preparing spawn area", StateSplash},
	{"Sound engine started", StateRunning},
}

// classify returns the run state implied by a stdout line, if any.
func classify(line string) (RunState, bool) {
	for _, sig := range signatures {
		if strings.Contains(line, sig.marker) {
			return sig.state, true
		}
	}
	return 0, false
}
