package models

// Inbound is a decoded application or session message. The concrete types
// below are the only implementations.
type Inbound interface {
	MsgType() string
	inbound()
}

// Snapshot is a market data full refresh (W).
type Snapshot struct {
	MDReqID     string
	Symbol      string
	HasEntries  bool
	Entries     []MDEntry
	EntryErrors []EntryError
}

// Incremental is a market data incremental refresh (X).
type Incremental struct {
	MDReqID     string
	Symbol      string
	HasEntries  bool
	Entries     []MDEntry
	EntryErrors []EntryError
}

// MDReject is a market data request reject (Y).
type MDReject struct {
	MDReqID string
	Reason  string
	Text    string
}

// BusinessReject is a business message reject (j).
type BusinessReject struct {
	RefMsgType string
	RefSeqNum  string
	Reason     string
	Text       string
}

// SessionReject is a session level reject (3).
type SessionReject struct {
	RefSeqNum  string
	RefTagID   string
	RefMsgType string
	Reason     string
	Text       string
}

// SecurityStatus is a security status message (f).
type SecurityStatus struct {
	Symbol        string
	TradingStatus string
	Text          string
}

// SecurityList is a security list message (y).
type SecurityList struct {
	RequestID string
	Symbols   []string
}

// Unhandled carries the type of any other message.
type Unhandled struct {
	Type string
}

func (Snapshot) MsgType() string       { return "W" }
func (Incremental) MsgType() string    { return "X" }
func (MDReject) MsgType() string       { return "Y" }
func (BusinessReject) MsgType() string { return "j" }
func (SessionReject) MsgType() string  { return "3" }
func (SecurityStatus) MsgType() string { return "f" }
func (SecurityList) MsgType() string   { return "y" }
func (u Unhandled) MsgType() string    { return u.Type }

func (Snapshot) inbound()       {}
func (Incremental) inbound()    {}
func (MDReject) inbound()       {}
func (BusinessReject) inbound() {}
func (SessionReject) inbound()  {}
func (SecurityStatus) inbound() {}
func (SecurityList) inbound()   {}
func (Unhandled) inbound()      {}
