package pipeline

import (
	"time"

	"github.com/forest-guardian/planet-ndvi/internal/planet"
)

// State is the position of a scene in the processing state machine.
type State int

const (
	Discovered State = iota
	Clipping
	ClipReady
	Downloaded
	Decoded
	QualityChecked
	Persisted
	Rejected
	Failed
	Skipped
)

var stateNames = [...]string{
	Discovered:     "discovered",
	Clipping:       "clipping",
	ClipReady:      "clip-ready",
	Downloaded:     "downloaded",
	Decoded:        "decoded",
	QualityChecked: "quality-checked",
	Persisted:      "persisted",
	Rejected:       "rejected",
	Failed:         "failed",
	Skipped:        "skipped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Scene is one search hit together with what happened to it in a run.
type Scene struct {
	planet.Scene
	Status State
	// Reached is the last state entered before a failure.
	Reached       State
	Err           error
	BlankFraction float64
	Artifacts     []string
}

type Failure struct {
	SceneID  string
	Acquired time.Time
	State    State
	Err      error
}

// Summary is the outcome of one AOI run, scenes in input order.
type Summary struct {
	RunID    string
	AOI      string
	Scenes   []Scene
	Started  time.Time
	Finished time.Time
}

func (s Summary) count(state State) int {
	n := 0
	for _, sc := range s.Scenes {
		if sc.Status == state {
			n++
		}
	}
	return n
}

func (s Summary) Processed() int { return s.count(Persisted) }

func (s Summary) Skipped() int { return s.count(Skipped) }

func (s Summary) Rejected() int { return s.count(Rejected) }

func (s Summary) Failures() []Failure {
	var out []Failure
	for _, sc := range s.Scenes {
		if sc.Status != Failed {
			continue
		}
		out = append(out, Failure{SceneID: sc.ID, Acquired: sc.Acquired, State: sc.Reached, Err: sc.Err})
	}
	return out
}
