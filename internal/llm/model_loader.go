package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"kbassist/internal/contextutil"
)

// ModelLoader loads models into a llama.cpp router server via the /models/load endpoint.
type ModelLoader struct {
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	maxPolls     int
}

// NewModelLoader creates a new model loader.
func NewModelLoader(baseURL string) *ModelLoader {
	return &ModelLoader{
		baseURL:      baseURL,
		client:       http.DefaultClient,
		pollInterval: time.Second,
		maxPolls:     30,
	}
}

// LoadModelRequest represents the request payload for loading a model.
type LoadModelRequest struct {
	Model     string   `json:"model"`
	ExtraArgs []string `json:"extra_args,omitempty"`
}

// LoadModelResponse represents the response from the load model endpoint.
type LoadModelResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ModelStatus represents the status of a model from the /models endpoint.
type ModelStatus struct {
	ID      string `json:"id"`
	InCache bool   `json:"in_cache"`
	Status  struct {
		Value    string `json:"value"`
		ExitCode *int   `json:"exit_code,omitempty"`
		Failed   *bool  `json:"failed,omitempty"`
	} `json:"status"`
}

// ModelsResponse represents the response from the /models endpoint.
type ModelsResponse struct {
	Data []ModelStatus `json:"data"`
}

// IsModelLoaded checks if a model is already loaded (in cache) in the llama.cpp server.
func (ml *ModelLoader) IsModelLoaded(ctx context.Context, modelName string) (bool, error) {
	modelsURL := fmt.Sprintf("%s/models", ml.baseURL)
	statusReq, err := http.NewRequestWithContext(ctx, "GET", modelsURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create status request: %w", err)
	}

	statusResp, err := ml.client.Do(statusReq)
	if err != nil {
		return false, fmt.Errorf("failed to check model status: %w", err)
	}
	defer func() {
		_ = statusResp.Body.Close()
	}()

	if statusResp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(statusResp.Body)
		return false, &StatusError{StatusCode: statusResp.StatusCode, Body: string(raw)}
	}

	var modelsResp ModelsResponse
	if err := json.NewDecoder(statusResp.Body).Decode(&modelsResp); err != nil {
		return false, fmt.Errorf("failed to decode models response: %w", err)
	}

	// Find our model
	for _, model := range modelsResp.Data {
		if model.ID == modelName {
			return model.InCache, nil
		}
	}

	// Model not found in the list
	return false, nil
}

// LoadModel loads a model into the llama.cpp server with optional extra arguments.
// It returns immediately when the model is already loaded; otherwise it requests
// the load and polls /models until the model is in cache, fails, or the poll
// budget is spent.
func (ml *ModelLoader) LoadModel(ctx context.Context, modelName string, extraArgs []string) error {
	logger := contextutil.LoggerFromContext(ctx)

	loaded, err := ml.IsModelLoaded(ctx, modelName)
	if err != nil {
		logger.WarnContext(ctx, "failed to check model status, loading anyway", "model", modelName, "error", err)
	} else if loaded {
		logger.DebugContext(ctx, "model already loaded", "model", modelName)
		return nil
	}

	url := fmt.Sprintf("%s/models/load", ml.baseURL)
	payload := LoadModelRequest{
		Model:     modelName,
		ExtraArgs: extraArgs,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ml.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var loadResp LoadModelResponse
	if err := json.NewDecoder(resp.Body).Decode(&loadResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !loadResp.Success {
		return fmt.Errorf("model load failed: %s", loadResp.Error)
	}

	// /models/load returns before the model is ready, and loading may still fail.
	for i := 0; i < ml.maxPolls; i++ {
		status, err := ml.modelStatus(ctx, modelName)
		if err == nil && status != nil {
			if status.InCache {
				logger.InfoContext(ctx, "model loaded", "model", modelName)
				return nil
			}
			if status.Status.Failed != nil && *status.Status.Failed {
				exitCode := 0
				if status.Status.ExitCode != nil {
					exitCode = *status.Status.ExitCode
				}
				return fmt.Errorf("model load failed with exit code %d", exitCode)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ml.pollInterval):
		}
	}

	return fmt.Errorf("model did not load within timeout period")
}

// modelStatus returns the status entry for modelName, or nil if the server does not list it.
func (ml *ModelLoader) modelStatus(ctx context.Context, modelName string) (*ModelStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/models", ml.baseURL), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}

	resp, err := ml.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check model status: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var modelsResp ModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}
	for i := range modelsResp.Data {
		if modelsResp.Data[i].ID == modelName {
			return &modelsResp.Data[i], nil
		}
	}
	return nil, nil
}
