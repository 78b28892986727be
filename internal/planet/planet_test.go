package planet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAOI = orb.Polygon{{{-117.1, 32.7}, {-117.0, 32.7}, {-117.0, 32.8}, {-117.1, 32.8}, {-117.1, 32.7}}}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClientWithHTTP(server.URL, "key", server.Client())
	client.RetryWait = time.Millisecond
	return client, server
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// slowPolicy would block the test for an hour if a second check ever ran.
var slowPolicy = PollPolicy{Interval: time.Hour, Timeout: time.Minute}

func TestPollClip_ImmediateSuccess(t *testing.T) {
	var checks int32
	mux := http.NewServeMux()
	mux.HandleFunc("/compute/ops/clips/v1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body clipRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Targets, 1) {
			assert.Equal(t, "scene-1", body.Targets[0].ItemID)
		}
		writeJSON(w, map[string]interface{}{
			"_links": map[string]interface{}{"_self": "/clips/job-1"},
			"state":  "succeeded",
		})
	})
	mux.HandleFunc("/clips/job-1", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&checks, 1)
		writeJSON(w, map[string]interface{}{
			"_links": map[string]interface{}{"_self": "/clips/job-1", "results": []string{"/download/scene-1.zip"}},
			"state":  "succeeded",
		})
	})
	client, _ := newTestClient(t, mux)

	job, err := client.SubmitClip(context.Background(), "scene-1", testAOI)
	require.NoError(t, err)

	start := time.Now()
	url, err := client.PollClip(context.Background(), job, slowPolicy)

	require.NoError(t, err)
	assert.Equal(t, "/download/scene-1.zip", url)
	assert.Equal(t, int32(1), atomic.LoadInt32(&checks))
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestPollClip_RunningThenSucceeded(t *testing.T) {
	var checks int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := "running"
		if atomic.AddInt32(&checks, 1) >= 3 {
			state = "succeeded"
		}
		writeJSON(w, map[string]interface{}{
			"_links": map[string]interface{}{"_self": "/clips/job", "results": []string{"/result.zip"}},
			"state":  state,
		})
	}))

	url, err := client.PollClip(context.Background(), ClipJob{SceneID: "s", SelfURL: "/clips/job"},
		PollPolicy{Interval: time.Millisecond, Timeout: time.Minute})

	require.NoError(t, err)
	assert.Equal(t, "/result.zip", url)
	assert.Equal(t, int32(3), atomic.LoadInt32(&checks))
}

func TestPollClip_TerminalFailure(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"_links": map[string]interface{}{"_self": "/clips/job"}, "state": "failed"})
	}))

	_, err := client.PollClip(context.Background(), ClipJob{SceneID: "s", SelfURL: "/clips/job"}, slowPolicy)

	var failed *ClipJobFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, "s", failed.SceneID)
}

func TestPollClip_MaxAttempts(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"_links": map[string]interface{}{"_self": "/clips/job"}, "state": "queued"})
	}))

	_, err := client.PollClip(context.Background(), ClipJob{SceneID: "s", SelfURL: "/clips/job"},
		PollPolicy{Interval: time.Millisecond, MaxAttempts: 3})

	assert.ErrorIs(t, err, ErrPollTimeout)
}

func TestClipStatus_MissingState(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"_links": map[string]interface{}{"_self": "/clips/job"}})
	}))

	_, err := client.ClipStatus(context.Background(), ClipJob{SceneID: "s", SelfURL: "/clips/job"})

	var malformed *MalformedResponseError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "state", malformed.Field)
}

func TestClipStatus_SucceededWithoutResults(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"_links": map[string]interface{}{"_self": "/clips/job"}, "state": "succeeded"})
	}))

	_, err := client.ClipStatus(context.Background(), ClipJob{SceneID: "s", SelfURL: "/clips/job"})

	var malformed *MalformedResponseError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "_links.results[0]", malformed.Field)
}

func TestSearch_FollowsPagesAndValidates(t *testing.T) {
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/data/v1/quick-search", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []interface{}{"PSScene4Band"}, body["item_types"])
		writeJSON(w, map[string]interface{}{
			"_links": map[string]interface{}{"_next": server.URL + "/page/2"},
			"features": []interface{}{map[string]interface{}{
				"id":         "20170519_184131_0e19",
				"_links":     map[string]interface{}{"assets": "/items/a/assets"},
				"properties": map[string]interface{}{"acquired": "2017-05-19T18:41:31.123Z", "cloud_cover": 0.01},
				"geometry":   map[string]interface{}{"type": "Point", "coordinates": []float64{-117, 32.7}},
			}},
		})
	})
	mux.HandleFunc("/page/2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"_links": map[string]interface{}{},
			"features": []interface{}{map[string]interface{}{
				"id":         "20170601_180000_1001",
				"_links":     map[string]interface{}{"assets": "/items/b/assets"},
				"properties": map[string]interface{}{"acquired": "2017-06-01T18:00:00Z"},
			}},
		})
	})
	client, srv := newTestClient(t, mux)
	server = srv

	scenes, err := client.Search(context.Background(), SearchRequest{
		Name:     "aoi",
		AOI:      testAOI,
		Start:    time.Date(2017, 5, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2017, 7, 1, 0, 0, 0, 0, time.UTC),
		MaxCloud: 0.1,
	})

	require.NoError(t, err)
	require.Len(t, scenes, 2)
	assert.Equal(t, "20170519_184131_0e19", scenes[0].ID)
	assert.Equal(t, 0.01, scenes[0].CloudCover)
	assert.Equal(t, orb.Point{-117, 32.7}, scenes[0].Footprint)
	assert.Equal(t, "20170601_180000_1001", scenes[1].ID)
	assert.Equal(t, time.Date(2017, 6, 1, 18, 0, 0, 0, time.UTC), scenes[1].Acquired)
}

func TestSearch_MissingAcquired(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"features": []interface{}{map[string]interface{}{
				"id":         "scene",
				"_links":     map[string]interface{}{"assets": "/assets"},
				"properties": map[string]interface{}{},
			}},
		})
	}))

	_, err := client.Search(context.Background(), SearchRequest{Name: "aoi"})

	var malformed *MalformedResponseError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "features[0].properties.acquired", malformed.Field)
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]interface{}{"_links": map[string]interface{}{"_self": "/clips/job"}, "state": "running"})
	}))

	status, err := client.ClipStatus(context.Background(), ClipJob{SelfURL: "/clips/job"})

	require.NoError(t, err)
	assert.Equal(t, "running", status.State)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDo_GivesUpAfterRetries(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.ClipStatus(context.Background(), ClipJob{SelfURL: "/clips/job"})

	var remote *RemoteConnectionError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, 3, remote.Attempts)
}

func TestActivate(t *testing.T) {
	var checks int32
	mux := http.NewServeMux()
	mux.HandleFunc("/assets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"analytic": map[string]interface{}{
				"_links": map[string]interface{}{"_self": "/assets/analytic", "activate": "/assets/analytic/activate"},
				"status": "inactive",
			},
		})
	})
	mux.HandleFunc("/assets/analytic/activate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/assets/analytic", func(w http.ResponseWriter, r *http.Request) {
		status := "activating"
		if atomic.AddInt32(&checks, 1) >= 2 {
			status = "active"
		}
		writeJSON(w, map[string]interface{}{"status": status, "location": "/download/analytic.tif"})
	})
	client, _ := newTestClient(t, mux)

	ref, err := client.Asset(context.Background(), Scene{ID: "s", AssetsURL: "/assets"})
	require.NoError(t, err)
	ref, err = client.Activate(context.Background(), ref, PollPolicy{Interval: time.Millisecond, Timeout: time.Minute})

	require.NoError(t, err)
	assert.Equal(t, AssetActive, ref.Status)
	assert.Equal(t, "/download/analytic.tif", ref.Location)
}

func TestActivate_Responses(t *testing.T) {
	cases := map[string]struct {
		status int
		want   error
	}{
		"already active":    {http.StatusNoContent, nil},
		"permission denied": {http.StatusUnauthorized, ErrPermissionDenied},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))

			ref, err := client.Activate(context.Background(),
				AssetReference{SelfURL: "/a", ActivateURL: "/a/activate"}, slowPolicy)

			if tc.want == nil {
				require.NoError(t, err)
				assert.Equal(t, AssetActive, ref.Status)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDownload(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("zip bytes"))
	}))
	path := filepath.Join(t.TempDir(), "scene.zip")

	n, err := client.Download(context.Background(), "/download/scene.zip", path)

	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "zip bytes", string(data))
	_, err = os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestDownload_NotFound(t *testing.T) {
	client, _ := newTestClient(t, http.NotFoundHandler())
	path := filepath.Join(t.TempDir(), "scene.zip")

	_, err := client.Download(context.Background(), "/missing.zip", path)

	var downloadErr *DownloadError
	require.True(t, errors.As(err, &downloadErr))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPoll_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := PollPolicy{Interval: time.Hour}.Poll(ctx, func(ctx context.Context) (bool, error) {
		return false, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestScene_JSONKeepsFootprint(t *testing.T) {
	scene := Scene{
		ID:        "s",
		Acquired:  time.Date(2017, 5, 19, 18, 41, 31, 0, time.UTC),
		Footprint: testAOI,
		AssetsURL: "/assets",
	}

	data, err := json.Marshal([]Scene{scene})
	require.NoError(t, err)
	var back []Scene
	require.NoError(t, json.Unmarshal(data, &back))

	require.Len(t, back, 1)
	assert.Equal(t, scene, back[0])
}
