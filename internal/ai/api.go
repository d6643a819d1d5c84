package ai

import "encoding/json"

// --- Claude API types ---

type apiRequest struct {
	Model       string         `json:"model"`
	MaxTokens   int            `json:"max_tokens"`
	System      string         `json:"system"`
	Temperature float64        `json:"temperature"`
	Messages    []apiMessage   `json:"messages"`
	Tools       []apiTool      `json:"tools,omitempty"`
	ToolChoice  *apiToolChoice `json:"tool_choice,omitempty"`
}

type apiMessage struct {
	Role    string            `json:"role"`
	Content []apiContentBlock `json:"content"`
}

type apiContentBlock struct {
	// Common fields
	Type string `json:"type"`

	// For text blocks
	Text string `json:"text,omitempty"`

	// For tool_use blocks
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type apiResponse struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Role       string            `json:"role"`
	Content    []apiContentBlock `json:"content"`
	Model      string            `json:"model"`
	StopReason string            `json:"stop_reason"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type apiTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type apiToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

const toolName = "record_classification"

// classificationTool describes the reply shape. The request forces the
// model to call it, so its input is the structured verdict.
func classificationTool() apiTool {
	return apiTool{
		Name:        toolName,
		Description: "Record the clarity classification of one email.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"category": {
					"type": "string",
					"enum": ["IMPORTANT", "FOLLOW_UP", "NOISE", "FYI"]
				},
				"importanceScore": {
					"type": "number",
					"minimum": 0,
					"maximum": 1
				},
				"requiresReply": {"type": "boolean"},
				"waitingForReply": {"type": "boolean"},
				"hasDeadline": {"type": "boolean"},
				"deadlineISO": {
					"type": ["string", "null"],
					"description": "ISO 8601 date or date-time of the deadline, or null"
				},
				"summary": {
					"type": "string",
					"description": "1-2 line plain English summary"
				},
				"reason": {
					"type": "string",
					"description": "Why this category was chosen"
				}
			},
			"required": ["category", "importanceScore", "requiresReply", "waitingForReply", "hasDeadline", "summary", "reason"]
		}`),
	}
}
