package transports

import (
	"context"
	"strings"
)

// Message types sent by the participant side.
const (
	MessageTranscript    = "transcript"
	MessageSpeechStarted = "speech_started"
	MessageSpeechEnded   = "speech_ended"
	MessageHangup        = "hangup"
)

// Message is one inbound event from the participant. Transcripts carry either
// Text or a list of Parts.
type Message struct {
	Type  string   `json:"type"`
	Text  string   `json:"text,omitempty"`
	Parts []string `json:"parts,omitempty"`
}

// Transcript returns the utterance carried by the message, joining Parts when Text is empty.
func (m Message) Transcript() string {
	if strings.TrimSpace(m.Text) != "" {
		return strings.TrimSpace(m.Text)
	}
	return strings.TrimSpace(strings.Join(m.Parts, " "))
}

// Transport is the event channel between the interview and the participant.
// Implementations are responsible for their own network lifecycle.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Recv() <-chan Message
	Publish(ctx context.Context, payload []byte) error
}

// ReadyReporter allows transports to expose readiness metadata (e.g., listen URLs).
// Implementations are optional and used for informational logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
