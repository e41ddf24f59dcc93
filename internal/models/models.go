// Package models manages chat models on a local Ollama instance and
// verifies Hugging Face model identifiers.
package models

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	listTimeout   = 10 * time.Second
	verifyTimeout = 5 * time.Second

	// pullTimeout is deliberately short: the pull endpoint streams
	// progress for minutes, and we only want to confirm Ollama accepted
	// the request before detaching.
	pullTimeout = 1 * time.Second

	huggingFaceAPI = "https://huggingface.co/api/models"
)

// Common errors.
var (
	ErrModelNotFound = errors.New("model not found")
	ErrUnreachable   = errors.New("model server unreachable")
)

// Info describes one installed Ollama model.
type Info struct {
	Name    string         `json:"name"`
	Size    int64          `json:"size,omitempty"`
	Digest  string         `json:"digest,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Manager talks to the local Ollama instance and the Hugging Face hub.
type Manager struct {
	baseURL    string
	httpClient *http.Client
	hubURL     string
	logger     *zap.Logger
}

// NewManager creates a manager against the given Ollama base URL.
func NewManager(baseURL string, logger *zap.Logger) *Manager {
	return &Manager{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		hubURL:     huggingFaceAPI,
		logger:     logger.Named("models"),
	}
}

// ListLocal returns the models installed on the Ollama instance. An
// unreachable instance is an error, not an empty list; the caller sees
// the real state of the server.
func (m *Manager) ListLocal(ctx context.Context) ([]Info, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	var body struct {
		Models []Info `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding model list: %w", err)
	}
	if body.Models == nil {
		body.Models = []Info{}
	}
	return body.Models, nil
}

// Pull asks Ollama to download a model. The download continues on the
// server after this returns; a read timeout here means Ollama accepted
// the request and started streaming progress.
func (m *Manager) Pull(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("model name required")
	}

	ctx, cancel := context.WithTimeout(ctx, pullTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]any{"name": name, "stream": false})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			m.logger.Info("model pull started", zap.String("model", name))
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("pull rejected: status %d", resp.StatusCode)
	}
	m.logger.Info("model pull started", zap.String("model", name))
	return nil
}

// VerifyHuggingFace checks that a model identifier exists on the
// Hugging Face hub.
func (m *Manager) VerifyHuggingFace(ctx context.Context, modelID string) error {
	if modelID == "" {
		return errors.New("model id required")
	}

	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.hubURL+"/"+modelID, nil)
	if err != nil {
		return err
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("verifying model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", ErrModelNotFound, modelID)
	}
	return nil
}
