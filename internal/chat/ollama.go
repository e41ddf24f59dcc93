package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/botd/internal/prompt"
	"github.com/fyrsmithlabs/botd/internal/tenant"
)

// Ollama's native chat protocol: one streaming POST answered with
// newline-delimited JSON objects, terminated by a done flag.

type ollamaChatRequest struct {
	Model    string           `json:"model"`
	Messages []prompt.Message `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  ollamaOptions    `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaChatLine struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

func (d *Dispatcher) streamOllama(ctx context.Context, eff tenant.EffectiveConfig, messages []prompt.Message, tokens chan<- string) {
	endpoint := strings.TrimRight(eff.BaseURL, "/") + "/api/chat"

	body, err := json.Marshal(ollamaChatRequest{
		Model:    eff.Model,
		Messages: messages,
		Stream:   true,
		Options: ollamaOptions{
			Temperature: eff.Temperature,
			NumPredict:  eff.MaxTokens,
		},
	})
	if err != nil {
		emit(ctx, tokens, fmt.Sprintf("I apologize, but I encountered an error connecting to Local AI: %v", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		emit(ctx, tokens, fmt.Sprintf("I apologize, but I encountered an error connecting to Local AI: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Error("ollama request failed", zap.String("endpoint", endpoint), zap.Error(err))
		emit(ctx, tokens, fmt.Sprintf("I apologize, but I encountered an error connecting to Local AI: %v", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		d.logger.Error("ollama returned error status",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
		)
		emit(ctx, tokens, fmt.Sprintf("Error calling Local AI: %d", resp.StatusCode))
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var decoded ollamaChatLine
		if err := json.Unmarshal(line, &decoded); err != nil {
			// Malformed line, not a fatal stream error.
			continue
		}
		if decoded.Message.Content != "" {
			if !emit(ctx, tokens, decoded.Message.Content) {
				return
			}
		}
		if decoded.Done {
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		d.logger.Error("ollama stream interrupted", zap.Error(err))
		emit(ctx, tokens, fmt.Sprintf("I apologize, but I encountered an error connecting to Local AI: %v", err))
	}
}
