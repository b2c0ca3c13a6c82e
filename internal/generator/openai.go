package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/avetrov/examforge/internal/model"
)

// maxSourceChars bounds how much source material goes into one prompt.
const maxSourceChars = 6000

// LLMSynthesizer generates questions through an OpenAI-compatible API,
// using a forced tool call so the response is structured.
type LLMSynthesizer struct {
	api   *openai.Client
	model string
}

// NewLLMSynthesizer creates an LLM-backed synthesizer.
func NewLLMSynthesizer(baseURL, apiKey, modelName string) *LLMSynthesizer {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &LLMSynthesizer{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping verifies the endpoint is reachable.
func (s *LLMSynthesizer) Ping(ctx context.Context) error {
	if _, err := s.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM endpoint check: %w", err)
	}
	return nil
}

func (s *LLMSynthesizer) Synthesize(ctx context.Context, concepts []Concept, count int) ([]model.MCQ, error) {
	resp, err := s.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an expert exam author. Generate multiple-choice questions with exactly 4 options each from the provided source material.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildSynthesisPrompt(concepts, count),
			},
		},
		Tools:      []openai.Tool{questionTool()},
		ToolChoice: openai.ToolChoice{Type: openai.ToolTypeFunction, Function: openai.ToolFunction{Name: "submit_questions"}},
	})
	if err != nil {
		return nil, fmt.Errorf("LLM synthesis call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}
	choice := resp.Choices[0]
	if len(choice.Message.ToolCalls) == 0 {
		return nil, fmt.Errorf("no tool call in LLM response")
	}
	call := choice.Message.ToolCalls[0]
	if call.Function.Name != "submit_questions" {
		return nil, fmt.Errorf("unexpected tool call: %s", call.Function.Name)
	}

	var args struct {
		Questions []struct {
			Question      string   `json:"question"`
			Options       []string `json:"options"`
			CorrectAnswer int      `json:"correct_answer"`
		} `json:"questions"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("parse tool arguments: %w", err)
	}

	mcqs := make([]model.MCQ, 0, len(args.Questions))
	for i, q := range args.Questions {
		mcqs = append(mcqs, model.MCQ{
			ID:           i + 1,
			Question:     q.Question,
			Options:      q.Options,
			CorrectIndex: q.CorrectAnswer,
		})
	}
	slog.Debug("LLM synthesized questions", "requested", count, "returned", len(mcqs))
	return mcqs, nil
}

func buildSynthesisPrompt(concepts []Concept, count int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Generate exactly %d multiple choice questions from this source material:\n\n", count))

	written := 0
	for _, c := range concepts {
		if written+len(c.Statement) > maxSourceChars {
			break
		}
		sb.WriteString(c.Statement)
		sb.WriteString("\n")
		written += len(c.Statement) + 1
	}

	sb.WriteString("\nRequirements:\n")
	sb.WriteString("- Each question must have exactly 4 distinct options\n")
	sb.WriteString("- Exactly one option is correct; correct_answer is its 0-based index\n")
	sb.WriteString("- Incorrect options should be plausible but clearly wrong\n")
	sb.WriteString("- Questions must be answerable from the source material alone\n")
	sb.WriteString("- Use the submit_questions tool to return your questions\n")
	return sb.String()
}

func questionTool() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        "submit_questions",
			Description: "Submit generated multiple-choice questions",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"questions": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"question": map[string]any{
									"type":        "string",
									"description": "The question text",
								},
								"options": map[string]any{
									"type":        "array",
									"items":       map[string]any{"type": "string"},
									"description": "Exactly 4 answer options",
								},
								"correct_answer": map[string]any{
									"type":        "integer",
									"description": "0-based index of the correct option",
								},
							},
							"required": []string{"question", "options", "correct_answer"},
						},
					},
				},
				"required": []string{"questions"},
			},
		},
	}
}
