package models

// OrbState is the mood indicator shown by the orb. Exactly one state is active at any time.
type OrbState string

const (
	OrbIdle      OrbState = "idle"
	OrbListening OrbState = "listening"
	OrbThinking  OrbState = "thinking"
	OrbSpeaking  OrbState = "speaking"
)

// StatusText returns the caption displayed under the orb.
func (s OrbState) StatusText() string {
	switch s {
	case OrbListening:
		return "AWAITING INPUT..."
	case OrbThinking:
		return "PROCESSING DATA..."
	case OrbSpeaking:
		return "TRANSMITTING..."
	default:
		return "SYSTEM ONLINE"
	}
}

func (s OrbState) String() string {
	return string(s)
}
