package protocol

import "encoding/json"

// Message type values carried on the control channel. The wire format is
// owned by the partner provider and may grow new types; anything not listed
// here is ignored.
const (
	TypePartnerDelta     = "partner.delta"
	TypePartnerFinal     = "partner.final"
	TypeTraineeFinal     = "trainee.final"
	TypeTraineeStarted   = "trainee.started"
	TypeResponseComplete = "response.complete"
	TypeError            = "error"

	// Outbound only.
	TypeResponseCancel = "response.cancel"
	TypeFrame          = "frame"
)

type message struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// StatusRequest is the interpreter's instruction to the state machine.
type StatusRequest int

const (
	StatusNone StatusRequest = iota
	StatusSpeaking
	StatusListening
	StatusConnected
)

// Effect is the full set of mutations a single inbound message asks for.
// The interpreter never applies them itself.
type Effect struct {
	Request StatusRequest

	// AppendPartial extends the in-flight partner utterance.
	AppendPartial string

	// FinalizePartner moves the in-flight utterance into the transcript.
	// FinalText, when non-empty, is authoritative over accumulated deltas.
	FinalizePartner bool
	FinalText       string

	// TraineeText is a complete trainee utterance (no partial cycle).
	TraineeText string

	// Warning is a protocol-level error to surface as an advisory.
	Warning string
}

// None reports whether the effect asks for nothing.
func (e Effect) None() bool {
	return e == Effect{}
}

// CancelResponse builds the outbound message that stops the partner's
// in-flight response, sent when the trainee pauses.
func CancelResponse() []byte {
	data, _ := json.Marshal(map[string]string{"type": TypeResponseCancel})
	return data
}

// FrameMessage wraps a captured still frame for delivery to the partner.
func FrameMessage(encoded string, capturedAtMs int64) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":        TypeFrame,
		"image":       encoded,
		"captured_at": capturedAtMs,
	})
	return data
}
