package types

import (
	"encoding/json"
	"fmt"
)

// PayloadKind names the variant carried by a memory.
type PayloadKind string

const (
	// PayloadConversation marks a summary of one conversation.
	PayloadConversation PayloadKind = "conversation"

	// PayloadRelationship marks an observation about another agent.
	PayloadRelationship PayloadKind = "relationship"

	// PayloadReflection marks a higher-level insight derived from other memories.
	PayloadReflection PayloadKind = "reflection"
)

// Payload is the tagged variant attached to every memory. The set of
// implementations is closed: ConversationPayload, RelationshipPayload and
// ReflectionPayload.
type Payload interface {
	Kind() PayloadKind
	isPayload()
}

// ConversationPayload ties a memory to the conversation it summarizes.
type ConversationPayload struct {
	ConversationID string `json:"conversation_id"`
}

// RelationshipPayload ties a memory to another agent.
type RelationshipPayload struct {
	AgentID string `json:"agent_id"`
}

// ReflectionPayload lists the memories an insight was derived from.
type ReflectionPayload struct {
	RelatedMemoryIDs []string `json:"related_memory_ids"`
}

func (ConversationPayload) Kind() PayloadKind { return PayloadConversation }
func (RelationshipPayload) Kind() PayloadKind { return PayloadRelationship }
func (ReflectionPayload) Kind() PayloadKind   { return PayloadReflection }

func (ConversationPayload) isPayload() {}
func (RelationshipPayload) isPayload() {}
func (ReflectionPayload) isPayload()   {}

// ConversationID returns the conversation a payload belongs to, or "" for
// non-conversation payloads.
func ConversationID(p Payload) string {
	switch v := p.(type) {
	case ConversationPayload:
		return v.ConversationID
	case *ConversationPayload:
		return v.ConversationID
	default:
		return ""
	}
}

// EncodePayload serializes a payload for storage.
func EncodePayload(p Payload) (PayloadKind, []byte, error) {
	switch v := p.(type) {
	case ConversationPayload, RelationshipPayload, ReflectionPayload,
		*ConversationPayload, *RelationshipPayload, *ReflectionPayload:
		data, err := json.Marshal(v)
		if err != nil {
			return "", nil, fmt.Errorf("marshal %s payload: %w", p.Kind(), err)
		}
		return p.Kind(), data, nil
	case nil:
		return "", nil, fmt.Errorf("payload is required")
	default:
		return "", nil, fmt.Errorf("unknown payload type %T", p)
	}
}

// DecodePayload restores a payload written by EncodePayload.
func DecodePayload(kind PayloadKind, data []byte) (Payload, error) {
	switch kind {
	case PayloadConversation:
		var p ConversationPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("unmarshal conversation payload: %w", err)
		}
		return p, nil
	case PayloadRelationship:
		var p RelationshipPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("unmarshal relationship payload: %w", err)
		}
		return p, nil
	case PayloadReflection:
		var p ReflectionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("unmarshal reflection payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown payload kind %q", kind)
	}
}
