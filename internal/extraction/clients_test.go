package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConverse struct {
	out   *bedrockruntime.ConverseOutput
	err   error
	input *bedrockruntime.ConverseInput
}

func (m *mockConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.input = in
	return m.out, m.err
}

func TestBedrockLLMClient_Complete(t *testing.T) {
	api := &mockConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: ` {"fields":{}} `}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(4), TotalTokens: aws.Int32(14)},
	}}
	client := NewBedrockLLMClient(api, "anthropic.model")

	resp, err := client.Complete(context.Background(), LLMRequest{
		System: []string{"sys", " "},
		Messages: []ChatMessage{
			{Role: ChatRoleSystem, Content: "extra"},
			{Role: ChatRoleUser, Content: "hola"},
		},
		MaxTokens: 64,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"fields":{}}`, resp.Text)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, int32(14), resp.Usage.TotalTokens)

	require.NotNil(t, api.input)
	assert.Equal(t, "anthropic.model", aws.ToString(api.input.ModelId))
	assert.Len(t, api.input.System, 2)
	assert.Len(t, api.input.Messages, 1)
	assert.Equal(t, int32(64), aws.ToInt32(api.input.InferenceConfig.MaxTokens))
}

func TestBedrockLLMClient_Errors(t *testing.T) {
	_, err := NewBedrockLLMClient(&mockConverse{}, "").Complete(context.Background(), LLMRequest{})
	assert.Error(t, err)

	boom := errors.New("throttled")
	_, err = NewBedrockLLMClient(&mockConverse{err: boom}, "m").Complete(context.Background(), LLMRequest{
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hola"}},
	})
	assert.ErrorIs(t, err, boom)

	_, err = NewBedrockLLMClient(&mockConverse{}, "m").Complete(context.Background(), LLMRequest{
		Messages: []ChatMessage{{Role: "tool", Content: "x"}},
	})
	assert.Error(t, err)

	_, err = NewBedrockLLMClient(&mockConverse{out: &bedrockruntime.ConverseOutput{}}, "m").Complete(context.Background(), LLMRequest{
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hola"}},
	})
	assert.Error(t, err)
}

func TestFallbackLLMClient(t *testing.T) {
	primary := &stubLLM{err: errors.New("down")}
	secondary := &stubLLM{text: "ok"}

	resp, err := NewFallbackLLMClient(primary, secondary, nil).Complete(context.Background(), LLMRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)

	healthy := &stubLLM{text: "first"}
	unused := &stubLLM{text: "second"}
	resp, err = NewFallbackLLMClient(healthy, unused, nil).Complete(context.Background(), LLMRequest{})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text)
	assert.Zero(t, unused.calls)

	_, err = NewFallbackLLMClient(&stubLLM{err: errors.New("down")}, nil, nil).Complete(context.Background(), LLMRequest{})
	assert.Error(t, err)
}

func TestNewGeminiLLMClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiLLMClient(context.Background(), " ", "")
	assert.Error(t, err)
}
