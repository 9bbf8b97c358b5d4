package protocol

import "github.com/google/uuid"

// ParticipantID is the full channel connection identifier of one client.
// All protocol-level identity comparisons use the full id; the display
// alias is a projection for rendering only.
type ParticipantID string

const aliasLen = 6

// NewParticipantID generates an id for a fresh connection
func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.NewString())
}

func (p ParticipantID) String() string { return string(p) }

// Alias returns the fixed-length display prefix. Never use it as a
// uniqueness key: distinct participants can share a prefix.
func (p ParticipantID) Alias() string {
	if len(p) <= aliasLen {
		return string(p)
	}
	return string(p[:aliasLen])
}
