// Package senses defines the normalized input model and the adapters that
// carry chat messages into the bot and replies back out.
package senses

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SourceType identifies the kind of channel that produced an input.
type SourceType string

const (
	SourceText     SourceType = "TEXT"
	SourceFile     SourceType = "FILE"
	SourceTelegram SourceType = "TELEGRAM"
	SourceAPI      SourceType = "API"
)

// Internal reports whether inputs of this type come from the local machine
// rather than a remote user.
func (t SourceType) Internal() bool {
	return t == SourceText || t == SourceFile
}

// SourceMeta describes where an input came from.
type SourceMeta struct {
	Timestamp time.Time         `json:"timestamp"`
	Channel   string            `json:"channel,omitempty"`
	Sender    string            `json:"sender,omitempty"`
	Path      string            `json:"path,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// UnifiedInput is the normalized form of every incoming message.
type UnifiedInput struct {
	InputID         string     `json:"input_id"`
	SourceType      SourceType `json:"source_type"`
	SourceMeta      SourceMeta `json:"source_meta"`
	Payload         string     `json:"payload"`
	ResponseChannel string     `json:"response_channel,omitempty"`
}

// NewUnifiedInput creates an input from channel with a fresh ID.
func NewUnifiedInput(sourceType SourceType, channel, payload string) *UnifiedInput {
	return &UnifiedInput{
		InputID:    uuid.NewString(),
		SourceType: sourceType,
		SourceMeta: SourceMeta{
			Timestamp: time.Now(),
			Channel:   channel,
		},
		Payload: payload,
	}
}

// UserID returns the numeric user ID recorded by the sense, or 0.
func (in *UnifiedInput) UserID() int64 {
	id, err := strconv.ParseInt(in.SourceMeta.Extra["user_id"], 10, 64)
	if err != nil {
		return 0
	}
	return id
}
