package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimTask_NoTaskAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"task": nil})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	task, err := c.ClaimTask(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestClaimTask_ReturnsTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/workers/worker-1/claim", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"task": map[string]any{
				"task_id":          "t-1",
				"plugin_kind":      "hashcat",
				"inputs":           []string{"wordlist.txt"},
				"expected_outputs": []string{"result.txt"},
				"params":           map[string]string{"hash_mode": "0"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	task, err := c.ClaimTask(context.Background(), "worker-1")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "t-1", task.TaskID)
	assert.Equal(t, "hashcat", task.PluginKind)
}

func TestHeartbeat_ReassignedTrue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "reassigned"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	reassigned, err := c.Heartbeat(context.Background(), "worker-1", "t-1")
	require.NoError(t, err)
	assert.True(t, reassigned)
}

func TestReportTask_NonOKStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"kind": "Conflict", "message": "task is not held by this worker"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	err := c.ReportTask(context.Background(), "worker-1", "t-1", ReportOutcome{Success: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Conflict")
}

func TestDownloadUpload_RoundTrip(t *testing.T) {
	var uploaded []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte("hello"))
		case http.MethodPost:
			assert.Equal(t, "worker-1", r.Header.Get("X-Worker-Id"))
			buf := make([]byte, r.ContentLength)
			r.Body.Read(buf)
			uploaded = buf
			json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	data, err := c.Download(context.Background(), "job-1", "result.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, c.Upload(context.Background(), "worker-1", "job-1", "result.txt", []byte("world")))
	assert.Equal(t, "world", string(uploaded))
}
