package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"saleschat/internal/tools"
	"saleschat/pkg/config"

	"github.com/Role1776/gigago"
	"go.uber.org/zap"
)

// ChatMessage is one entry of the model conversation, including assistant
// tool invocations and their tool-role results.
type ChatMessage struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is the transient tool invocation the model produced. Arguments
// arrive as a raw JSON string and are validated downstream.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ChatResult is the final state of one streamed model turn.
type ChatResult struct {
	Content      string
	Reasoning    string
	ToolCalls    []ToolCall
	FinishReason string
}

const fixerInstruction = `You repair malformed JSON arguments for tool calls.
You receive the example shape of the expected arguments and the broken arguments.
Respond with corrected JSON only. No explanations, no markdown, no surrounding prose.`

// LLMService talks to two model backends: an OpenAI-compatible
// chat-completions endpoint for the conversational model (streaming, tool
// calling) and a GigaChat model used solely to repair malformed tool
// arguments.
type LLMService struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	defaultModel string

	fixerClient *gigago.Client
	fixerModel  *gigago.GenerativeModel

	logger *zap.Logger
}

func NewLLMService(cfg *config.LLMConfig, fixerCfg *config.GigaChatConfig, logger *zap.Logger) (*LLMService, error) {
	ctx := context.Background()

	opts := []gigago.Option{
		gigago.WithCustomScope(fixerCfg.Scope),
	}
	if fixerCfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	fixerClient, err := gigago.NewClient(ctx, fixerCfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create repair model client: %w", err)
	}

	fixerModel := fixerClient.GenerativeModel(fixerCfg.Model)
	fixerModel.SystemInstruction = fixerInstruction
	fixerModel.Temperature = 0.1

	return &LLMService{
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		defaultModel: cfg.ChatModel,
		fixerClient:  fixerClient,
		fixerModel:   fixerModel,
		logger:       logger,
	}, nil
}

// DefaultModel is the chat model used when the client did not select one.
func (s *LLMService) DefaultModel() string {
	return s.defaultModel
}

type chatCompletionsRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []wireMessage `json:"messages"`
	Tools    []wireTool    `json:"tools,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireToolSpec `json:"function"`
}

type wireToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			ToolCalls        []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// StreamChat runs one model turn with the tool menu active, invoking
// onDelta for every content token as it arrives. The accumulated result,
// including any tool-call requests, is returned once the stream ends.
func (s *LLMService) StreamChat(
	ctx context.Context,
	model string,
	system string,
	messages []ChatMessage,
	toolSpecs []tools.Spec,
	onDelta func(string),
) (*ChatResult, error) {
	if model == "" {
		model = s.defaultModel
	}

	wireMessages := make([]wireMessage, 0, len(messages)+1)
	if system != "" {
		wireMessages = append(wireMessages, wireMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		wm := wireMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireFunction{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		wireMessages = append(wireMessages, wm)
	}

	wireTools := make([]wireTool, 0, len(toolSpecs))
	for _, spec := range toolSpecs {
		wireTools = append(wireTools, wireTool{
			Type: "function",
			Function: wireToolSpec{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}

	body, err := json.Marshal(chatCompletionsRequest{
		Model:    model,
		Stream:   true,
		Messages: wireMessages,
		Tools:    wireTools,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	return s.consumeStream(resp.Body, onDelta)
}

// consumeStream folds the SSE event stream into one ChatResult. Tool-call
// fragments arrive keyed by index and are concatenated in order.
func (s *LLMService) consumeStream(body io.Reader, onDelta func(string)) (*ChatResult, error) {
	result := &ChatResult{}
	var content, reasoning strings.Builder
	calls := make(map[int]*ToolCall)
	maxIndex := -1

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			s.logger.Warn("Skipping malformed stream chunk", zap.Error(err))
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			if onDelta != nil {
				onDelta(choice.Delta.Content)
			}
		}
		if choice.Delta.ReasoningContent != "" {
			reasoning.WriteString(choice.Delta.ReasoningContent)
		}
		for _, tc := range choice.Delta.ToolCalls {
			call, ok := calls[tc.Index]
			if !ok {
				call = &ToolCall{}
				calls[tc.Index] = call
				if tc.Index > maxIndex {
					maxIndex = tc.Index
				}
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Name = tc.Function.Name
			}
			call.Arguments += tc.Function.Arguments
		}
		if choice.FinishReason != "" {
			result.FinishReason = choice.FinishReason
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("chat stream failed: %w", err)
	}

	result.Content = content.String()
	result.Reasoning = reasoning.String()
	for i := 0; i <= maxIndex; i++ {
		if call, ok := calls[i]; ok {
			result.ToolCalls = append(result.ToolCalls, *call)
		}
	}

	return result, nil
}

// FixArguments asks the repair model to emit corrected arguments as plain
// text, given the failed arguments and a skeleton of the expected shape.
func (s *LLMService) FixArguments(ctx context.Context, toolName, skeleton, badArgs string) (string, error) {
	prompt := fmt.Sprintf(`The arguments below were rejected for the tool %q.

Expected argument shape (example values):
%s

Broken arguments:
%s

Return the corrected arguments as JSON only.`, toolName, skeleton, badArgs)

	resp, err := s.fixerModel.Generate(ctx, []gigago.Message{
		{Role: gigago.RoleUser, Content: prompt},
	})
	if err != nil {
		return "", fmt.Errorf("repair model call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from repair model")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Close releases the underlying HTTP transports.
func (s *LLMService) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}
