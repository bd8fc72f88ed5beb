package models

import "time"

type StepType string

const (
	StepSemantic  StepType = "semantic"
	StepRetrieval StepType = "retrieval"
	StepReasoning StepType = "reasoning"
	StepFinal     StepType = "final"
)

// ReasoningStep is one entry of the trace returned with an answer. Value is a
// string for every step except retrieval, which carries []RetrievalSummary.
type ReasoningStep struct {
	Type  StepType    `json:"type"`
	Value interface{} `json:"value"`
}

type RetrievalSummary struct {
	File    string `json:"file"`
	Snippet string `json:"snippet"`
	Score   string `json:"score"`
}

type PipelineResult struct {
	Answer string          `json:"answer"`
	Steps  []ReasoningStep `json:"steps"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Conversation struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"userId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	AudioURL       string    `json:"audioUrl,omitempty"`
	ReasoningSteps *string   `json:"reasoningSteps"`
	CreatedAt      time.Time `json:"createdAt"`
}

type AvatarConfig struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	WakeWord       string    `json:"wakeWord"`
	OpeningMessage string    `json:"openingMessage"`
	TTSVoice       string    `json:"ttsVoice"`
	Provider       string    `json:"provider"`
	AvatarID       string    `json:"avatarId,omitempty"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
}
