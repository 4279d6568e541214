package types

import "time"

// Message is one line of dialogue in a conversation between agents.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	AuthorID       string    `json:"author_id"`
	AuthorName     string    `json:"author_name"`
	RecipientIDs   []string  `json:"recipient_ids"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}

// AgentIdentity is the persona handed to the language model when it speaks
// for an agent.
type AgentIdentity struct {
	Name     string `json:"name"`
	Identity string `json:"identity"`
}
