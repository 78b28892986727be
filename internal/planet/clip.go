package planet

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const clipPath = "compute/ops/clips/v1"

// SubmitClip asks the compute API to clip one scene asset to the AOI.
func (c *Client) SubmitClip(ctx context.Context, sceneID string, aoi orb.Geometry) (ClipJob, error) {
	payload := clipRequest{
		AOI: geojson.NewGeometry(aoi),
		Targets: []clipTarget{{
			ItemID:    sceneID,
			ItemType:  c.ItemType,
			AssetType: c.AssetType,
		}},
	}

	var res clipResponse
	if err := c.sendJSON(ctx, "POST", clipPath, payload, &res); err != nil {
		return ClipJob{}, fmt.Errorf("failed to submit clip for scene %s: %w", sceneID, err)
	}
	if res.Links == nil || res.Links.Self == "" {
		return ClipJob{}, &MalformedResponseError{URL: c.resolve(clipPath), Field: "_links._self"}
	}

	job := ClipJob{SceneID: sceneID, SelfURL: res.Links.Self}
	if res.State != nil {
		job.State = *res.State
	}
	return job, nil
}

func (c *Client) ClipStatus(ctx context.Context, job ClipJob) (ClipJobStatus, error) {
	var res clipResponse
	if err := c.sendJSON(ctx, "GET", job.SelfURL, nil, &res); err != nil {
		return ClipJobStatus{}, fmt.Errorf("failed to check clip for scene %s: %w", job.SceneID, err)
	}
	if res.State == nil {
		return ClipJobStatus{}, &MalformedResponseError{URL: c.resolve(job.SelfURL), Field: "state"}
	}

	status := ClipJobStatus{State: *res.State}
	if res.Links != nil {
		status.Results = res.Links.Results
	}
	if status.State == ClipSucceeded && len(status.Results) == 0 {
		return status, &MalformedResponseError{URL: c.resolve(job.SelfURL), Field: "_links.results[0]"}
	}
	return status, nil
}

// PollClip checks the job until it succeeds and returns the first result URL.
func (c *Client) PollClip(ctx context.Context, job ClipJob, policy PollPolicy) (string, error) {
	var downloadURL string
	err := policy.Poll(ctx, func(ctx context.Context) (bool, error) {
		status, err := c.ClipStatus(ctx, job)
		if err != nil {
			return false, err
		}
		switch status.State {
		case ClipSucceeded:
			downloadURL = status.Results[0]
			return true, nil
		case ClipFailed:
			return false, &ClipJobFailedError{SceneID: job.SceneID, State: status.State}
		}
		return false, nil
	})
	if err != nil {
		return "", err
	}
	return downloadURL, nil
}
