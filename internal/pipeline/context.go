package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/forest-guardian/planet-ndvi/internal/aoi"
	"github.com/forest-guardian/planet-ndvi/internal/planet"
	"github.com/forest-guardian/planet-ndvi/internal/quality"
	"github.com/forest-guardian/planet-ndvi/internal/store"
	"github.com/paulmach/orb"
)

// Provider is the part of the imagery API a run needs.
type Provider interface {
	SubmitClip(ctx context.Context, sceneID string, aoi orb.Geometry) (planet.ClipJob, error)
	PollClip(ctx context.Context, job planet.ClipJob, policy planet.PollPolicy) (string, error)
	Download(ctx context.Context, ref, path string) (int64, error)
}

// Activator is implemented by providers that need assets activated before
// they can be clipped.
type Activator interface {
	Asset(ctx context.Context, scene planet.Scene) (planet.AssetReference, error)
	Activate(ctx context.Context, ref planet.AssetReference, policy planet.PollPolicy) (planet.AssetReference, error)
}

// Hook runs after a scene is persisted. Hook errors are logged and never
// fail the scene.
type Hook interface {
	Name() string
	SceneProcessed(ctx context.Context, layout store.Layout, scene Scene) error
}

type QualityStage int

const (
	BeforePersist QualityStage = iota
	AfterPersist
)

func ParseQualityStage(s string) (QualityStage, error) {
	switch s {
	case "", "before":
		return BeforePersist, nil
	case "after":
		return AfterPersist, nil
	}
	return 0, fmt.Errorf("unknown quality stage %q", s)
}

// QualityPolicy decides when the blank-pixel gate runs and what happens to
// rejected scenes.
type QualityPolicy struct {
	Threshold      float64
	Stage          QualityStage
	DeleteRejected bool
}

// RunContext carries everything one AOI run depends on.
type RunContext struct {
	RunID    string
	Provider Provider
	// AOI is sent to the provider with every clip request, in WGS84.
	AOI    aoi.Definition
	Layout store.Layout

	ClipPoll planet.PollPolicy
	// ActivationPoll is used when Activate is set and the provider is an
	// Activator.
	ActivationPoll planet.PollPolicy
	Activate       bool

	Quality    QualityPolicy
	MaxWorkers int
	Hooks      []Hook
	Quiet      bool
}

func (rc RunContext) validate() error {
	var errs []error
	if rc.Provider == nil {
		errs = append(errs, errors.New("no provider"))
	}
	if len(rc.AOI.Polygon) == 0 {
		errs = append(errs, errors.New("AOI has no polygon"))
	}
	if rc.Layout.Root == "" || rc.Layout.AOI == "" {
		errs = append(errs, errors.New("artifact layout has no root or AOI"))
	}
	if rc.Quality.Threshold < 0 || rc.Quality.Threshold > 1 {
		errs = append(errs, fmt.Errorf("quality threshold %v outside [0, 1]", rc.Quality.Threshold))
	}
	return errors.Join(errs...)
}

func (rc RunContext) gate() quality.Gate {
	return quality.NewGate(rc.Quality.Threshold)
}
