package planet

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Assets lists the assets of a scene keyed by asset type.
func (c *Client) Assets(ctx context.Context, scene Scene) (map[string]AssetReference, error) {
	var raw map[string]asset
	if err := c.sendJSON(ctx, "GET", scene.AssetsURL, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to get assets for scene %s: %w", scene.ID, err)
	}

	out := make(map[string]AssetReference, len(raw))
	for name, a := range raw {
		out[name] = AssetReference{
			Type:        name,
			Status:      a.Status,
			SelfURL:     a.Links.Self,
			ActivateURL: a.Links.Activate,
			Location:    a.Location,
		}
	}
	return out, nil
}

// Asset returns the configured asset type of a scene.
func (c *Client) Asset(ctx context.Context, scene Scene) (AssetReference, error) {
	assets, err := c.Assets(ctx, scene)
	if err != nil {
		return AssetReference{}, err
	}
	ref, ok := assets[c.AssetType]
	if !ok {
		return AssetReference{}, &MalformedResponseError{URL: c.resolve(scene.AssetsURL), Field: c.AssetType}
	}
	if ref.SelfURL == "" {
		return AssetReference{}, &MalformedResponseError{URL: c.resolve(scene.AssetsURL), Field: c.AssetType + "._links._self"}
	}
	return ref, nil
}

// Activate requests activation of the asset and polls it until it is active.
func (c *Client) Activate(ctx context.Context, ref AssetReference, policy PollPolicy) (AssetReference, error) {
	if ref.Status == AssetActive {
		return ref, nil
	}
	if ref.ActivateURL == "" {
		return ref, &MalformedResponseError{URL: ref.SelfURL, Field: "_links.activate"}
	}

	response, err := c.do(ctx, "POST", ref.ActivateURL, nil)
	if err != nil {
		return ref, err
	}
	io.Copy(io.Discard, response.Body)
	response.Body.Close()

	switch response.StatusCode {
	case http.StatusNoContent:
		ref.Status = AssetActive
		return ref, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return ref, ErrPermissionDenied
	case http.StatusOK, http.StatusAccepted:
	default:
		return ref, &StatusError{URL: c.resolve(ref.ActivateURL), Status: response.StatusCode}
	}

	err = policy.Poll(ctx, func(ctx context.Context) (bool, error) {
		var current asset
		if err := c.sendJSON(ctx, "GET", ref.SelfURL, nil, &current); err != nil {
			return false, err
		}
		if current.Status == "" {
			return false, &MalformedResponseError{URL: c.resolve(ref.SelfURL), Field: "status"}
		}
		ref.Status = current.Status
		ref.Location = current.Location
		return current.Status == AssetActive, nil
	})
	if err != nil {
		return ref, fmt.Errorf("failed to activate asset %s: %w", ref.SelfURL, err)
	}
	slog.Info("Asset activated", "asset", ref.SelfURL)
	return ref, nil
}
