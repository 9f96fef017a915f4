package sse

import (
	"time"

	"github.com/google/uuid"
)

// MessageType classifies a message for the consuming client. The delivery
// core never branches on it; the tag travels to the client unchanged.
type MessageType string

const (
	MessageTypeText         MessageType = "text"
	MessageTypeNotification MessageType = "notification"
	MessageTypeAlert        MessageType = "alert"
	MessageTypeSystem       MessageType = "system"
)

// Message is the envelope delivered to a client as a single stream event.
// Its serialized form is the event's data payload and its ID becomes the
// event id, letting clients resume with Last-Event-ID semantics. A message
// is constructed once at send time and discarded after the delivery attempt.
type Message struct {
	ID        string      `json:"id"`
	Content   string      `json:"content"`
	Sender    string      `json:"sender"`
	Timestamp time.Time   `json:"timestamp"`
	Type      MessageType `json:"type"`
}

// NewMessage builds an envelope with a generated unique ID and the current
// time. The returned value is treated as immutable by the delivery path.
func NewMessage(content, sender string, msgType MessageType) Message {
	return Message{
		ID:        uuid.NewString(),
		Content:   content,
		Sender:    sender,
		Timestamp: time.Now(),
		Type:      msgType,
	}
}
