package llm

import "time"

// MessageRole is the author of a message
type MessageRole string

const (
	// RoleSystem system instructions
	RoleSystem MessageRole = "system"
	// RoleUser user turn
	RoleUser MessageRole = "user"
	// RoleAssistant model turn
	RoleAssistant MessageRole = "assistant"
)

// Message is one conversation turn
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
	Name    string      `json:"name,omitempty"`
}

// Response is the provider independent completion result
type Response struct {
	Text       string    // generated text
	Messages   []Message // conversation including the reply, for Chat
	TokenCount int       // total tokens billed
	ModelName  string    // model that answered
	FinishTime time.Time
}

// RAGResponse is an answer together with the context it was based on
type RAGResponse struct {
	Answer   string            `json:"answer"`
	Question string            `json:"question,omitempty"` // standalone question actually searched, for chat
	Sources  []SourceReference `json:"sources,omitempty"`
}

// SourceReference is a retrieved chunk shown next to an answer
type SourceReference struct {
	ID       string                 `json:"id"`
	FileID   string                 `json:"file_id,omitempty"`
	FileName string                 `json:"file_name,omitempty"`
	Content  string                 `json:"content"`
	Score    float32                `json:"score,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Common model names
const (
	ModelGPT4oMini  = "gpt-4o-mini"
	ModelLlama3170B = "llama-3.1-70b-versatile"
	ModelLlama3370B = "llama-3.3-70b-versatile"
)

// Provider names and endpoints
const (
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"

	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultGroqBaseURL   = "https://api.groq.com/openai/v1"
)
