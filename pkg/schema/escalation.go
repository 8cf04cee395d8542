package schema

// EscalationReason enumerates why a conversation is handed to a human.
type EscalationReason string

const (
	ReasonNoResults     EscalationReason = "no_results"
	ReasonLowConfidence EscalationReason = "low_confidence"
	ReasonUserRequest   EscalationReason = "user_request"
	ReasonSensitive     EscalationReason = "sensitive"
	ReasonEmergency     EscalationReason = "emergency"
)

// ValidReason reports whether r is a known escalation reason.
func ValidReason(r EscalationReason) bool {
	switch r {
	case ReasonNoResults, ReasonLowConfidence, ReasonUserRequest, ReasonSensitive, ReasonEmergency:
		return true
	}
	return false
}

// EscalationContext correlates a triggering question with the email
// collected during resume. It is ephemeral: the engine hands it to an
// external collaborator for durable storage, never persists it itself.
type EscalationContext struct {
	Reason   EscalationReason `json:"reason"`
	Question string           `json:"question"`
	ChatID   string           `json:"chatId,omitempty"`
	Email    string           `json:"email,omitempty"`
}
