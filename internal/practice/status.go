package practice

// Status is the session lifecycle state. Speaking and Listening are
// refinements of Connected driven by partner control messages; transport
// quality advisories never move a session out of any of these.
type Status string

const (
	StatusBriefing   Status = "briefing"
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusSpeaking   Status = "speaking"
	StatusListening  Status = "listening"
	StatusEnding     Status = "ending"
	StatusEnded      Status = "ended"
)

// Active reports whether the session holds live resources. Only active
// sessions are worth an abandonment report.
func (s Status) Active() bool {
	switch s {
	case StatusConnecting, StatusConnected, StatusSpeaking, StatusListening:
		return true
	default:
		return false
	}
}

// InCall reports whether control messages should still drive the status.
func (s Status) InCall() bool {
	switch s {
	case StatusConnected, StatusSpeaking, StatusListening:
		return true
	default:
		return false
	}
}
