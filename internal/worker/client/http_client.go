// Package client implements the REST client the Worker Agent uses to
// talk to the coordinator (spec §4.6): claim, heartbeat, report, and
// artifact transfer.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Task is the agent's view of a claimed unit of work.
type Task struct {
	TaskID          string
	JobID           string
	PluginKind      string
	Inputs          []string
	ExpectedOutputs []string
	Params          map[string]string
}

// ReportOutcome mirrors the coordinator's ReportTask request body.
type ReportOutcome struct {
	Success bool
	Outputs []string
	ErrKind string
	Detail  string
}

// CoordinatorClient is the capability surface the agent drives; backed
// in production by httpClient, and by a fake in agent tests.
type CoordinatorClient interface {
	ClaimTask(ctx context.Context, workerID string) (*Task, error)
	Heartbeat(ctx context.Context, workerID, taskID string) (reassigned bool, err error)
	ReportTask(ctx context.Context, workerID, taskID string, outcome ReportOutcome) error
	Download(ctx context.Context, jobID, name string) ([]byte, error)
	Upload(ctx context.Context, workerID, jobID, name string, data []byte) error
}

type httpClient struct {
	baseURL string
	hc      *http.Client
}

func New(baseURL string, timeout time.Duration) CoordinatorClient {
	return &httpClient{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: timeout},
	}
}

type claimTaskResponse struct {
	Task *struct {
		TaskID          string            `json:"task_id"`
		JobID           string            `json:"job_id"`
		PluginKind      string            `json:"plugin_kind"`
		Inputs          []string          `json:"inputs"`
		ExpectedOutputs []string          `json:"expected_outputs"`
		Params          map[string]string `json:"params"`
	} `json:"task"`
}

func (c *httpClient) ClaimTask(ctx context.Context, workerID string) (*Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/workers/"+workerID+"/claim", nil)
	if err != nil {
		return nil, err
	}
	var body claimTaskResponse
	if err := c.doJSON(req, &body); err != nil {
		return nil, err
	}
	if body.Task == nil {
		return nil, nil
	}
	return &Task{
		TaskID:          body.Task.TaskID,
		JobID:           body.Task.JobID,
		PluginKind:      body.Task.PluginKind,
		Inputs:          body.Task.Inputs,
		ExpectedOutputs: body.Task.ExpectedOutputs,
		Params:          body.Task.Params,
	}, nil
}

func (c *httpClient) Heartbeat(ctx context.Context, workerID, taskID string) (bool, error) {
	url := fmt.Sprintf("%s/workers/%s/tasks/%s/heartbeat", c.baseURL, workerID, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return false, err
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(req, &body); err != nil {
		return false, err
	}
	return body.Status == "reassigned", nil
}

func (c *httpClient) ReportTask(ctx context.Context, workerID, taskID string, outcome ReportOutcome) error {
	payload, err := json.Marshal(struct {
		Success bool     `json:"success"`
		Outputs []string `json:"outputs,omitempty"`
		ErrKind string   `json:"error_kind,omitempty"`
		Detail  string   `json:"detail,omitempty"`
	}{outcome.Success, outcome.Outputs, outcome.ErrKind, outcome.Detail})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/workers/%s/tasks/%s/report", c.baseURL, workerID, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, nil)
}

func (c *httpClient) Download(ctx context.Context, jobID, name string) ([]byte, error) {
	url := fmt.Sprintf("%s/jobs/%s/artifacts/%s", c.baseURL, jobID, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: download %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("client: download %s: status %d", name, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *httpClient) Upload(ctx context.Context, workerID, jobID, name string, data []byte) error {
	url := fmt.Sprintf("%s/jobs/%s/artifacts/%s", c.baseURL, jobID, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("X-Worker-Id", workerID)
	req.Header.Set("Content-Type", "application/octet-stream")
	return c.doJSON(req, nil)
}

// doJSON executes req and decodes a JSON response body into out (skipped
// when out is nil), translating non-2xx statuses into errors.
func (c *httpClient) doJSON(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("client: %s %s: %s: %s", req.Method, req.URL.Path, body.Kind, body.Message)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
