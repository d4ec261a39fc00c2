package models

import "fmt"

// Credentials identify the client to the venue. They are loaded once and not
// mutated afterwards.
type Credentials struct {
	Username         string
	Passphrase       string
	SecretKey        string
	SenderCompID     string
	TargetCompID     string
	DefaultApplVerID string
}

// String masks the secret values so credentials can be logged.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username:%s SenderCompID:%s TargetCompID:%s DefaultApplVerID:%s Passphrase:%s SecretKey:%s}",
		c.Username, c.SenderCompID, c.TargetCompID, c.DefaultApplVerID, mask(c.Passphrase), mask(c.SecretKey))
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

// LogonContext holds the outgoing logon values that make up the prehash.
type LogonContext struct {
	SendingTime  string
	MsgType      string
	MsgSeqNum    string
	SenderCompID string
	TargetCompID string
	Passphrase   string
}

// Phase is the lifecycle phase of one session.
type Phase int

const (
	PhaseNoSession Phase = iota
	PhaseCreated
	PhaseLoggedOn
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseLoggedOn:
		return "logged_on"
	default:
		return "no_session"
	}
}

// SessionStatus is a point in time view of one session and its books.
type SessionStatus struct {
	Session             string        `json:"session"`
	Phase               string        `json:"phase"`
	MarketDataRequested bool          `json:"market_data_requested"`
	MDReqID             string        `json:"md_req_id,omitempty"`
	Quotes              []QuoteUpdate `json:"quotes"`
}
