package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rsmyth-dev/heron/pkg/types"
)

// QuestionOption is one answer choice.
type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Question is a single question presented to the user.
type Question struct {
	Question    string           `json:"question"`
	Header      string           `json:"header"`
	Options     []QuestionOption `json:"options"`
	MultiSelect bool             `json:"multiSelect"`
}

// QuestionHandler answers questions on the user's behalf. The answer map is
// keyed by question text.
type QuestionHandler interface {
	AskQuestions(ctx context.Context, questions []Question) (map[string]string, error)
}

// AskUserTool blocks on user input through an injected handler.
type AskUserTool struct {
	Handler QuestionHandler
}

func (a *AskUserTool) Name() string { return "AskUser" }

func (a *AskUserTool) Description() string {
	return "Asks the user up to 4 questions to clarify requirements or choose between approaches. Each question offers 2-4 labeled options."
}

func (a *AskUserTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"questions": map[string]any{
				"type":     "array",
				"minItems": 1,
				"maxItems": 4,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"question": map[string]any{"type": "string"},
						"header":   map[string]any{"type": "string", "maxLength": 12},
						"options": map[string]any{
							"type":     "array",
							"minItems": 2,
							"maxItems": 4,
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"label":       map[string]any{"type": "string"},
									"description": map[string]any{"type": "string"},
								},
								"required": []string{"label"},
							},
						},
						"multiSelect": map[string]any{"type": "boolean", "default": false},
					},
					"required": []string{"question", "options"},
				},
				"description": "Questions to ask the user (1-4)",
			},
		},
		"required": []string{"questions"},
	}
}

func (a *AskUserTool) Execute(ctx context.Context, input map[string]any) (types.ToolResult, error) {
	if a.Handler == nil {
		return fail("user input not available in this context"), nil
	}

	rawQuestions, okq := input["questions"].([]any)
	if !okq || len(rawQuestions) == 0 {
		return fail("questions is required and must be a non-empty array"), nil
	}
	if len(rawQuestions) > 4 {
		return fail("maximum 4 questions allowed"), nil
	}

	questions := make([]Question, 0, len(rawQuestions))
	for i, raw := range rawQuestions {
		data, err := json.Marshal(raw)
		if err != nil {
			return fail("invalid question at index %d", i), nil
		}
		var q Question
		if err := json.Unmarshal(data, &q); err != nil {
			return fail("invalid question at index %d", i), nil
		}
		if q.Question == "" {
			return fail("questions[%d].question is required", i), nil
		}
		if len(q.Options) < 2 || len(q.Options) > 4 {
			return fail("questions[%d] must have 2-4 options", i), nil
		}
		questions = append(questions, q)
	}

	answers, err := a.Handler.AskQuestions(ctx, questions)
	if err != nil {
		return fail("user input: %s", err), nil
	}

	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("User answers:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, answers[k])
	}
	return ok(strings.TrimRight(b.String(), "\n")), nil
}
