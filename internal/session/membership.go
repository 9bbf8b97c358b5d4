package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/codeconnect/collab/internal/debounce"
	"github.com/codeconnect/collab/internal/protocol"
)

func unmarshalData(env protocol.Envelope, dst any) error {
	if len(env.Data) == 0 {
		return errors.New("missing payload")
	}
	return json.Unmarshal(env.Data, dst)
}

// Join enters a room. Cached document and messages populate state before
// any network response; the join snapshot and the REST fetch each fully
// supersede cache-derived values when they arrive.
//
// The join intent is emitted only while the channel reports connected. If
// not, it is deferred once behind the join delay and silently skipped when
// the channel is still down — delivery is not guaranteed.
func (s *Session) Join(ctx context.Context, roomID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.joinTimer != nil {
		// A still-armed deferred join belongs to the abandoned room
		s.joinTimer.Stop()
		s.joinTimer = nil
	}
	s.roomID = roomID
	s.loading = true
	s.ended = false
	s.rev = 0
	s.doc = protocol.DocumentState{Language: defaultLanguage}
	s.messages = nil
	s.participants = make(map[protocol.ParticipantID]struct{})
	s.cursors = make(map[protocol.ParticipantID]protocol.CursorPosition)
	s.typing = make(map[protocol.ParticipantID]struct{})
	s.userCount = 1

	if s.store != nil {
		if code, ok, err := s.store.Code(roomID); err != nil {
			s.log.Warn("cache read failed", "room", roomID, "err", err)
		} else if ok {
			s.doc.Code = code
		}
		if messages, err := s.store.Messages(roomID); err != nil {
			s.log.Warn("cache read failed", "room", roomID, "err", err)
		} else if len(messages) > 0 {
			s.messages = messages
		}
	}

	ch := s.ch
	s.mu.Unlock()
	s.notify(KindLoading, KindDocument, KindMessages)

	if s.api != nil {
		go s.fetchRoomState(ctx, roomID)
	}

	if ch != nil && ch.Connected() {
		s.emitJoin(roomID)
		return nil
	}

	s.log.Debug("channel not connected, deferring join", "room", roomID)
	s.mu.Lock()
	s.joinTimer = debounce.After(s.joinDelay, func() {
		s.mu.Lock()
		stale := s.closed || s.roomID != roomID
		ch := s.ch
		s.mu.Unlock()
		if stale {
			return
		}
		if ch == nil || !ch.Connected() {
			// Known gap: the deferred join is not retried again.
			s.log.Warn("join skipped, channel unavailable", "room", roomID)
			return
		}
		s.emitJoin(roomID)
	})
	s.mu.Unlock()
	return nil
}

func (s *Session) emitJoin(roomID string) {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	if ch == nil {
		return
	}
	err := ch.Emit(protocol.EventJoinRoom, protocol.JoinRoomPayload{
		RoomID: roomID,
		UserID: s.self.String(),
	})
	if err != nil {
		s.log.Warn("join emit failed", "room", roomID, "err", err)
	}
}

// fetchRoomState is the one-shot REST fetch racing the join snapshot. It
// deliberately applies whenever it resolves (last writer wins) unless the
// session was torn down, the room ended, or another room was joined.
func (s *Session) fetchRoomState(ctx context.Context, roomID string) {
	state, err := s.api.FetchRoomState(ctx, roomID)
	if err != nil {
		s.log.Warn("room state fetch failed", "room", roomID, "err", err)
		return
	}

	s.mu.Lock()
	if s.closed || s.ended || s.roomID != roomID {
		s.mu.Unlock()
		return
	}
	s.doc = protocol.DocumentState{Code: state.Code, Language: state.Language}
	if s.doc.Language == "" {
		s.doc.Language = defaultLanguage
	}
	s.messages = state.Messages
	s.persistLocked()
	s.mu.Unlock()

	s.notify(KindDocument, KindMessages)
}

func (s *Session) handleRoomJoined(p protocol.RoomJoinedPayload) {
	s.mu.Lock()
	if s.closed || s.ended {
		s.mu.Unlock()
		return
	}
	s.doc = protocol.DocumentState{Code: p.Code, Language: p.Language}
	if s.doc.Language == "" {
		s.doc.Language = defaultLanguage
	}
	s.messages = p.Messages
	s.participants = make(map[protocol.ParticipantID]struct{}, len(p.Participants))
	for _, id := range p.Participants {
		s.participants[protocol.ParticipantID(id)] = struct{}{}
	}
	if p.Users > 0 {
		s.userCount = p.Users
	} else {
		s.userCount = 1
	}
	s.loading = false
	s.persistLocked()
	s.mu.Unlock()

	s.notify(KindLoading, KindDocument, KindMessages, KindRoster)
}

func (s *Session) handleUserJoined(userID protocol.ParticipantID) {
	s.mu.Lock()
	if s.closed || s.ended {
		s.mu.Unlock()
		return
	}
	s.participants[userID] = struct{}{}
	s.userCount++
	s.mu.Unlock()

	s.notify(KindRoster)
}

func (s *Session) handleUserLeft(userID protocol.ParticipantID) {
	s.mu.Lock()
	if s.closed || s.ended {
		s.mu.Unlock()
		return
	}
	delete(s.participants, userID)
	delete(s.cursors, userID)
	delete(s.typing, userID)
	if s.userCount > 0 {
		s.userCount--
	}
	s.mu.Unlock()

	s.notify(KindRoster, KindCursors, KindTyping)
}

// handleUserCount applies the authoritative count, overriding any drift
// accumulated from incremental join/leave events.
func (s *Session) handleUserCount(count int) {
	s.mu.Lock()
	if s.closed || s.ended {
		s.mu.Unlock()
		return
	}
	s.userCount = count
	s.mu.Unlock()

	s.notify(KindRoster)
}

// End broadcasts an end intent for the current room. Any participant may
// end a room; it ends for everyone symmetrically. Ending an already-ended
// room is a no-op.
func (s *Session) End() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.ended || s.roomID == "" {
		s.mu.Unlock()
		return nil
	}
	roomID := s.roomID
	ch := s.ch
	s.mu.Unlock()

	if ch != nil {
		err := ch.Emit(protocol.EventEndRoom, protocol.EndRoomPayload{
			RoomID: roomID,
			UserID: s.self.String(),
		})
		if err != nil {
			s.log.Warn("end emit failed", "room", roomID, "err", err)
		}
	}

	// The server echoes room-ended to the whole room, ourselves included;
	// apply the terminal state optimistically like every other local action.
	s.handleRoomEnded()
	return nil
}

// handleRoomEnded makes the room terminal: the cache entries for it are
// purged and every further local mutation is rejected.
func (s *Session) handleRoomEnded() {
	s.mu.Lock()
	if s.closed || s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.loading = false
	roomID := s.roomID
	s.mu.Unlock()

	if s.store != nil && roomID != "" {
		if err := s.store.Purge(roomID); err != nil {
			s.log.Warn("cache purge failed", "room", roomID, "err", err)
		}
	}

	s.notify(KindEnded)
}
