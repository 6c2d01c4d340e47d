package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelcraft/studio-be/internal/api/dto"
	"github.com/pixelcraft/studio-be/internal/queue"
)

type recordingNotifier struct {
	bodies [][]byte
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, body []byte, _ string) error {
	n.bodies = append(n.bodies, body)
	return n.err
}

func newTestRouter(store queue.Store, notifier Notifier) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := NewJobHandler(&Dependencies{
		Store:    store,
		Notifier: notifier,
	})

	r := gin.New()
	r.POST("/api/v1/jobs", h.CreateJob)
	r.GET("/api/v1/jobs", h.ListJobs)
	r.GET("/api/v1/jobs/:job_id", h.GetJob)
	return r
}

func doRequest(r *gin.Engine, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateJob(t *testing.T) {
	t.Run("creates a pending job and notifies workers", func(t *testing.T) {
		store := queue.NewMemoryStore()
		notifier := &recordingNotifier{}
		r := newTestRouter(store, notifier)

		w := doRequest(r, http.MethodPost, "/api/v1/jobs", gin.H{
			"job_type": "background-removal",
			"owner_id": "user-1",
			"payload":  gin.H{"image_url": "https://cdn.example.com/a.png"},
		})

		require.Equal(t, http.StatusCreated, w.Code)

		var resp dto.JobDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "background-removal", resp.JobType)
		assert.Equal(t, "user-1", resp.OwnerID)
		assert.Equal(t, queue.StatusPending, resp.Status)
		assert.Equal(t, queue.DefaultMaxRetries, resp.MaxRetries)
		assert.JSONEq(t, `{"image_url":"https://cdn.example.com/a.png"}`, resp.Payload)

		stored, err := store.GetJob(context.Background(), resp.JobID)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusPending, stored.Status)

		require.Len(t, notifier.bodies, 1)
		assert.Contains(t, string(notifier.bodies[0]), resp.JobID)
	})

	t.Run("honors explicit max_retries", func(t *testing.T) {
		r := newTestRouter(queue.NewMemoryStore(), nil)

		w := doRequest(r, http.MethodPost, "/api/v1/jobs", gin.H{
			"job_type":    "upscale",
			"owner_id":    "user-1",
			"max_retries": 0,
		})

		require.Equal(t, http.StatusCreated, w.Code)

		var resp dto.JobDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.MaxRetries)
	})

	t.Run("rejects missing job_type", func(t *testing.T) {
		r := newTestRouter(queue.NewMemoryStore(), nil)

		w := doRequest(r, http.MethodPost, "/api/v1/jobs", gin.H{
			"owner_id": "user-1",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects negative max_retries", func(t *testing.T) {
		r := newTestRouter(queue.NewMemoryStore(), nil)

		w := doRequest(r, http.MethodPost, "/api/v1/jobs", gin.H{
			"job_type":    "upscale",
			"owner_id":    "user-1",
			"max_retries": -1,
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("notifier failure does not fail the request", func(t *testing.T) {
		store := queue.NewMemoryStore()
		notifier := &recordingNotifier{err: errors.New("broker down")}
		r := newTestRouter(store, notifier)

		w := doRequest(r, http.MethodPost, "/api/v1/jobs", gin.H{
			"job_type": "upscale",
			"owner_id": "user-1",
		})

		assert.Equal(t, http.StatusCreated, w.Code)
	})
}

func TestGetJob(t *testing.T) {
	store := queue.NewMemoryStore()
	r := newTestRouter(store, nil)

	job, err := store.CreateJob(context.Background(), "upscale", `{"v":1}`, "user-1", 3)
	require.NoError(t, err)

	t.Run("returns an existing job", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/jobs/"+job.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.JobDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, job.ID, resp.JobID)
		assert.Equal(t, "upscale", resp.JobType)
		assert.NotEmpty(t, resp.CreatedAt)
		assert.Empty(t, resp.CompletedAt)
	})

	t.Run("rejects a malformed job id", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/jobs/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("404 for an unknown job", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/jobs/"+uuid.New().String(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestListJobs(t *testing.T) {
	store := queue.NewMemoryStore()
	r := newTestRouter(store, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := store.CreateJob(ctx, "upscale", "{}", "user-1", 3)
		require.NoError(t, err)
	}
	other, err := store.CreateJob(ctx, "upscale", "{}", "user-2", 3)
	require.NoError(t, err)

	claimed, err := store.TryClaimOne(ctx)
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted(ctx, claimed.ID))

	t.Run("defaults to pending jobs", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/jobs", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.ListJobsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Jobs, 3)
	})

	t.Run("filters by status", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/jobs?status=COMPLETED", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.ListJobsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Jobs, 1)
		assert.Equal(t, claimed.ID, resp.Jobs[0].JobID)
	})

	t.Run("filters by owner", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/jobs?owner_id=user-2", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.ListJobsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Jobs, 1)
		assert.Equal(t, other.ID, resp.Jobs[0].JobID)
	})

	t.Run("rejects an unknown status", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/jobs?status=BOGUS", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("caps the limit", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, fmt.Sprintf("/api/v1/jobs?limit=%d", maxListLimit+50), nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
