package models

import (
	"strings"
	"time"
)

// InboundMessage is a single message received on the WhatsApp channel.
type InboundMessage struct {
	From             string    `json:"from"` // canonical phone, no channel prefix
	Body             string    `json:"body"`
	MessageSID       string    `json:"message_sid,omitempty"`
	NumMedia         int       `json:"num_media"`
	MediaURL         string    `json:"media_url,omitempty"`
	MediaContentType string    `json:"media_content_type,omitempty"`
	ReceivedAt       time.Time `json:"received_at"`
}

// HasAudio reports whether the first attached media item is an audio clip.
func (m InboundMessage) HasAudio() bool {
	return m.NumMedia > 0 && m.MediaURL != "" && strings.HasPrefix(strings.ToLower(m.MediaContentType), "audio/")
}

// Conversation message senders.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Message types recorded in the conversation log.
const (
	MessageTypeText  = "text"
	MessageTypeVoice = "voice"
)

// ConversationMessage is one logged turn of a WhatsApp conversation.
type ConversationMessage struct {
	Phone       string    `json:"phone"`
	Sender      string    `json:"sender"`
	Body        string    `json:"body"`
	MessageType string    `json:"message_type"`
	CreatedAt   time.Time `json:"created_at"`
}
