package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"
)

// OpenAIClient implements Client against any OpenAI-compatible API.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient constructs a client with a retrying HTTP transport.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	retry := retryablehttp.NewClient()
	retry.RetryMax = 2
	retry.Logger = nil

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(retry.StandardClient()),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{client: openai.NewClient(opts...)}
}

func (c *OpenAIClient) Create(ctx context.Context, req Request) (Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(req.Model),
		Messages:    req.Messages,
		Tools:       req.Tools,
		Temperature: param.NewOpt(0.2),
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, err
	}
	return parseChatCompletion(resp)
}

func (c *OpenAIClient) Stream(ctx context.Context, req Request, onDelta func(string)) (Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(req.Model),
		Messages:    req.Messages,
		Tools:       req.Tools,
		Temperature: param.NewOpt(0.2),
	}
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)

	var builder strings.Builder
	pending := map[int64]*ToolCall{}
	argBuffers := map[int64]*strings.Builder{}

	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if delta := choice.Delta.Content; delta != "" {
				builder.WriteString(delta)
				if onDelta != nil {
					onDelta(delta)
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				call, ok := pending[tc.Index]
				if !ok {
					call = &ToolCall{}
					pending[tc.Index] = call
					argBuffers[tc.Index] = &strings.Builder{}
				}
				if tc.ID != "" {
					call.ID = tc.ID
				}
				if tc.Function.Name != "" {
					call.Name = tc.Function.Name
				}
				argBuffers[tc.Index].WriteString(tc.Function.Arguments)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return Response{}, err
	}

	response := Response{Content: builder.String()}
	indexes := make([]int64, 0, len(pending))
	for idx := range pending {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	for _, idx := range indexes {
		call := pending[idx]
		call.Arguments = json.RawMessage(argBuffers[idx].String())
		response.ToolCalls = append(response.ToolCalls, *call)
	}
	return response, nil
}

func parseChatCompletion(resp *openai.ChatCompletion) (Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("empty response")
	}
	msg := resp.Choices[0].Message
	response := Response{Content: msg.Content}
	for _, toolCall := range msg.ToolCalls {
		if toolCall.Type != "function" {
			continue
		}
		fn := toolCall.AsFunction()
		response.ToolCalls = append(response.ToolCalls, ToolCall{
			ID:        fn.ID,
			Name:      fn.Function.Name,
			Arguments: json.RawMessage(fn.Function.Arguments),
		})
	}
	return response, nil
}
