package protocol

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageFile  MessageType = "file"
	MessageVoice MessageType = "voice"
)

// ChatMessage is one entry in a room's message log
type ChatMessage struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Content   string         `json:"content"`
	Type      MessageType    `json:"type,omitempty"`
	FileURL   string         `json:"fileUrl,omitempty"`
	Duration  float64        `json:"duration,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Reactions map[string]int `json:"reactions,omitempty"`
}

// DocumentState is the shared buffer plus its language tag. Mutation is
// always total replacement, never a diff.
type DocumentState struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type CursorPosition struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// NewMessageID builds a time-plus-random message id. Uniqueness is
// probabilistic, not guaranteed.
func NewMessageID() string {
	return fmt.Sprintf("%d-%06d", time.Now().UnixMilli(), rand.Intn(1000000))
}

const roomIDLen = 6

const roomIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewRoomID generates a short shareable room id
func NewRoomID() string {
	var b strings.Builder
	for i := 0; i < roomIDLen; i++ {
		b.WriteByte(roomIDAlphabet[rand.Intn(len(roomIDAlphabet))])
	}
	return b.String()
}
