package mail

import "strings"

// Status is the normalised per-recipient delivery status.
type Status string

const (
	StatusSent      Status = "sent"
	StatusQueued    Status = "queued"
	StatusScheduled Status = "scheduled"
	StatusRejected  Status = "rejected"
	StatusInvalid   Status = "invalid"
)

// Response is the outcome for a single recipient. SMTP delivery returns no
// responses since the protocol does not report per-recipient results.
type Response struct {
	Address      string
	Status       Status
	RejectReason string // optional
	MessageID    string // optional, provider message id
}

// ParseStatus maps a backend status string onto Status. Unknown values fail
// with MappingError instead of being coerced.
func ParseStatus(provider, s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusSent, StatusQueued, StatusScheduled, StatusRejected, StatusInvalid:
		return st, nil
	}
	return "", &MappingError{Provider: provider, Value: s}
}

// RecipientResponses builds one response with status st for every To, Cc and Bcc recipient.
func RecipientResponses(msg *Message, st Status, messageID string) []Response {
	recipients := msg.Recipients()
	out := make([]Response, 0, len(recipients))
	for i := 0; i < len(recipients); i++ {
		out = append(out, Response{Address: recipients[i].Address, Status: st, MessageID: messageID})
	}
	return out
}
