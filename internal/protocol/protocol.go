package protocol

import "encoding/json"

// Events emitted by the client
const (
	EventJoinRoom    = "join-room"
	EventCodeChange  = "code-change"
	EventSendMessage = "send-message"
	EventTyping      = "typing"
	EventEndRoom     = "end-room"
)

// Events received from the server
const (
	EventRoomJoined = "room-joined"
	EventUserJoined = "user-joined"
	EventUserLeft   = "user-left"
	EventUserCount  = "user-count"
	EventCodeUpdate = "code-update"
	EventNewMessage = "new-message"
	EventUserTyping = "user-typing"
	EventRoomEnded  = "room-ended"
)

// Cursor events flow in both directions
const (
	EventCursorUpdate = "cursor-update"
	EventCursorLeave  = "cursor-leave"
)

// Envelope is the frame every channel event travels in
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode wraps a payload in an envelope and marshals it
func Encode(event string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Decode unmarshals a raw frame into an envelope
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(raw, &env)
	return env, err
}

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type CodeChangePayload struct {
	RoomID   string `json:"roomId"`
	Code     string `json:"code"`
	Language string `json:"language"`
	Rev      uint64 `json:"rev,omitempty"`
}

type CodeUpdatePayload struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Rev      uint64 `json:"rev,omitempty"`
}

type SendMessagePayload struct {
	RoomID string `json:"roomId"`
	ChatMessage
}

type TypingPayload struct {
	RoomID   string `json:"roomId,omitempty"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type CursorUpdatePayload struct {
	RoomID string `json:"roomId,omitempty"`
	UserID string `json:"userId"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

type EndRoomPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// RoomJoinedPayload is the full state snapshot sent in response to a join
type RoomJoinedPayload struct {
	Code         string        `json:"code"`
	Language     string        `json:"language"`
	Messages     []ChatMessage `json:"messages"`
	Users        int           `json:"users"`
	Participants []string      `json:"participants"`
}

// RoomState is the REST room-state response (GET /api/room/{id})
type RoomState struct {
	Code     string        `json:"code"`
	Language string        `json:"language"`
	Messages []ChatMessage `json:"messages"`
}

// UploadResponse is the REST upload response (POST /api/upload-file)
type UploadResponse struct {
	FileURL string `json:"fileUrl"`
}
