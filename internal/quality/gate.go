package quality

import (
	"errors"

	"github.com/forest-guardian/planet-ndvi/internal/raster"
)

const DefaultThreshold = 0.25

var EmptyImageError = errors.New("quality: empty image")

// Gate rejects images with too many blank (exactly zero) samples. It is a
// crude check for partial scenes with large empty areas.
type Gate struct {
	Threshold float64
}

type Result struct {
	Accepted      bool
	BlankFraction float64
}

func NewGate(threshold float64) Gate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Gate{Threshold: threshold}
}

// Check measures the fraction of zero samples over all channels. Channels
// must share the same pixel count.
func (g Gate) Check(channels ...raster.Band) (Result, error) {
	if len(channels) == 0 {
		return Result{}, EmptyImageError
	}
	pixels := channels[0].Len()
	if pixels == 0 {
		return Result{}, EmptyImageError
	}

	blanks := 0
	for _, c := range channels {
		if c.Len() != pixels {
			return Result{}, errors.New("quality: channels differ in size")
		}
		for _, v := range c.Data {
			if v == 0 {
				blanks++
			}
		}
	}

	total := len(channels) * pixels
	fraction := float64(blanks) / float64(total)
	// a fully blank image never passes, even with a threshold of 1
	accepted := fraction <= g.Threshold && blanks < total
	return Result{Accepted: accepted, BlankFraction: fraction}, nil
}
