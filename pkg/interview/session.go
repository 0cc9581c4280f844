package interview

import (
	"context"
	"errors"
)

// Speaker delivers a spoken line and blocks until it finished or was interrupted.
type Speaker interface {
	Say(ctx context.Context, line string, interruptible bool) error
}

// Publisher sends an event payload to the remote participant.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Room resolves the publish handle of the local participant.
type Room interface {
	LocalParticipant() (Publisher, error)
}

// SpeechListener receives speech-activity notifications from the speech pipeline.
type SpeechListener interface {
	OnAgentSpeechStarted()
	OnAgentSpeechEnded()
}

// ErrNoRoom is returned when a session was built without a room.
var ErrNoRoom = errors.New("session has no room")

// Session is the shared speech surface handed from stage to stage.
type Session struct {
	Speaker Speaker
	Room    Room
	Lock    *SessionLock
}

func (s Session) validate() error {
	if s.Speaker == nil {
		return errors.New("session speaker is required")
	}
	if s.Lock == nil {
		return errors.New("session lock is required")
	}
	return nil
}

func (s Session) participant() (Publisher, error) {
	if s.Room == nil {
		return nil, ErrNoRoom
	}
	return s.Room.LocalParticipant()
}
