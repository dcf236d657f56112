package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStreamParser() *LLMService {
	return &LLMService{logger: zap.NewNop()}
}

func TestConsumeStreamAccumulatesContent(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"Total "}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"sales: 88.00"}}]}`,
		``,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	var deltas []string
	result, err := newStreamParser().consumeStream(strings.NewReader(stream), func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)

	assert.Equal(t, "Total sales: 88.00", result.Content)
	assert.Equal(t, []string{"Total ", "sales: 88.00"}, deltas)
	assert.Equal(t, "stop", result.FinishReason)
	assert.Empty(t, result.ToolCalls)
}

func TestConsumeStreamAssemblesToolCallFragments(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call-1","function":{"name":"getSalesData","arguments":"{\"oper"}}]}}]}`,
		``,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ation\":\"FILTER\"}"}}]}}]}`,
		``,
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	result, err := newStreamParser().consumeStream(strings.NewReader(stream), nil)
	require.NoError(t, err)

	require.Len(t, result.ToolCalls, 1)
	call := result.ToolCalls[0]
	assert.Equal(t, "call-1", call.ID)
	assert.Equal(t, "getSalesData", call.Name)
	assert.JSONEq(t, `{"operation":"FILTER"}`, call.Arguments)
	assert.Equal(t, "tool_calls", result.FinishReason)
}

func TestConsumeStreamSeparatesReasoning(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"choices":[{"delta":{"reasoning_content":"thinking about totals"}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"The total is 88.00."}}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	result, err := newStreamParser().consumeStream(strings.NewReader(stream), nil)
	require.NoError(t, err)

	assert.Equal(t, "thinking about totals", result.Reasoning)
	assert.Equal(t, "The total is 88.00.", result.Content)
}

func TestConsumeStreamSkipsMalformedChunks(t *testing.T) {
	stream := strings.Join([]string{
		`data: not json at all`,
		``,
		`: comment line`,
		``,
		`data: {"choices":[{"delta":{"content":"ok"}}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	result, err := newStreamParser().consumeStream(strings.NewReader(stream), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Content)
}
