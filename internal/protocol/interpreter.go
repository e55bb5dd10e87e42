// Package protocol translates inbound control-channel messages into session
// effects. It is a pure layer: parsing happens here, mutation happens in the
// state machine.
package protocol

import "encoding/json"

// Interpret parses one inbound control-channel payload. Malformed or
// unrecognized input yields a zero Effect; the wire format is externally
// controlled, so nothing that arrives on the channel may crash the reader.
func Interpret(data []byte) Effect {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Effect{}
	}

	switch msg.Type {
	case TypePartnerDelta:
		return Effect{
			Request:       StatusSpeaking,
			AppendPartial: msg.Text,
		}

	case TypePartnerFinal:
		return Effect{
			Request:         StatusListening,
			FinalizePartner: true,
			FinalText:       msg.Text,
		}

	case TypeTraineeFinal:
		if msg.Text == "" {
			return Effect{}
		}
		return Effect{TraineeText: msg.Text}

	case TypeTraineeStarted:
		return Effect{Request: StatusListening}

	case TypeResponseComplete:
		return Effect{Request: StatusConnected}

	case TypeError:
		warning := msg.Message
		if warning == "" {
			warning = "partner reported an unspecified error"
		}
		return Effect{Warning: warning}

	default:
		return Effect{}
	}
}
