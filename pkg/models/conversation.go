package models

import "time"

// Conversation is the sidebar summary for one chat partner: the latest
// message preview plus a total count. It is derived from stored messages,
// never persisted on its own.
type Conversation struct {
	ConversationID string    `json:"conversation_id" bson:"_id"`
	DisplayName    string    `json:"display_name,omitempty" bson:"display_name,omitempty"`
	LastBody       string    `json:"last_body" bson:"last_body"`
	LastStatus     Status    `json:"last_status" bson:"last_status"`
	LastTime       time.Time `json:"last_time" bson:"last_time"`
	Messages       int64     `json:"messages" bson:"messages"`
}
