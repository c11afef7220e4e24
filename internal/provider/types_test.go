package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionRequest_ValidateRejectsEmptyMessages(t *testing.T) {
	req := CompletionRequest{}
	err := req.Validate()
	require.Error(t, err)
}

func TestCompletionRequest_ValidateRejectsOutOfRangeTemperature(t *testing.T) {
	tooHigh := 2.5
	req := CompletionRequest{
		Messages:    []Message{NewMessage(RoleUser, "hi")},
		Temperature: &tooHigh,
	}
	require.Error(t, req.Validate())

	negative := -0.1
	req.Temperature = &negative
	require.Error(t, req.Validate())
}

func TestCompletionRequest_ValidateAcceptsBoundaryTemperatures(t *testing.T) {
	zero := 0.0
	two := 2.0
	req := CompletionRequest{Messages: []Message{NewMessage(RoleUser, "hi")}, Temperature: &zero}
	assert.NoError(t, req.Validate())
	req.Temperature = &two
	assert.NoError(t, req.Validate())
}

func TestCompletionRequestBuilder_BuildsExpectedShape(t *testing.T) {
	messages := []Message{NewMessage(RoleUser, "hello")}

	req := NewCompletionRequest(messages).
		WithModel("gpt-4o").
		WithTemperature(0.7).
		WithMaxTokens(512).
		Build()

	assert.Equal(t, "gpt-4o", req.Model)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.7, *req.Temperature, 0.0001)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, uint32(512), *req.MaxTokens)
	assert.Equal(t, messages, req.Messages)
}

func TestCompletionRequestBuilder_OptionalFieldsOmittedByDefault(t *testing.T) {
	req := NewCompletionRequest([]Message{NewMessage(RoleUser, "hi")}).Build()
	assert.Nil(t, req.Temperature)
	assert.Nil(t, req.MaxTokens)
	assert.Empty(t, req.Model)
}

func TestNewMessage(t *testing.T) {
	m := NewMessage(RoleSystem, "be nice")
	assert.Equal(t, RoleSystem, m.Role)
	assert.Equal(t, "be nice", m.Content)
}
