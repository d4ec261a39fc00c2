package logger

import (
	"strings"

	"github.com/quickfixgo/quickfix"
)

// redactedTags are masked whenever a raw FIX message is logged.
var redactedTags = []string{"554=", "96="}

// Redact renders a raw message with '|' separators and masked credentials.
func Redact(raw string) string {
	fields := strings.Split(raw, "\x01")
	for i, f := range fields {
		for _, t := range redactedTags {
			if strings.HasPrefix(f, t) {
				fields[i] = t + "****"
			}
		}
	}
	return strings.Join(fields, "|")
}

// MsgTypeOf extracts tag 35 from a raw message.
func MsgTypeOf(raw string) string {
	i := strings.Index(raw, "\x0135=")
	if i < 0 {
		return ""
	}
	rest := raw[i+4:]
	if j := strings.IndexByte(rest, '\x01'); j >= 0 {
		return rest[:j]
	}
	return rest
}

type fixLogFactory struct {
	log         *Log
	logMessages bool
}

// NewFIXLogFactory routes engine logs through logrus. Raw messages are only
// written at debug level when logMessages is set; they are always counted.
func NewFIXLogFactory(log *Log, logMessages bool) quickfix.LogFactory {
	return fixLogFactory{log: log, logMessages: logMessages}
}

func (f fixLogFactory) Create() (quickfix.Log, error) {
	return &fixLog{entry: f.log.WithComponent("engine"), logMessages: f.logMessages}, nil
}

func (f fixLogFactory) CreateSessionLog(sessionID quickfix.SessionID) (quickfix.Log, error) {
	return &fixLog{
		entry:       f.log.WithComponent("engine").WithSession(sessionID.String()),
		logMessages: f.logMessages,
	}, nil
}

type fixLog struct {
	entry       *Entry
	logMessages bool
}

func (l *fixLog) OnIncoming(b []byte) {
	raw := string(b)
	msgType := MsgTypeOf(raw)
	IncrementFIXInbound(msgType, len(b))
	if l.logMessages {
		l.entry.WithFields(Fields{"direction": "in", "msg_type": msgType}).Debug(Redact(raw))
	}
}

func (l *fixLog) OnOutgoing(b []byte) {
	raw := string(b)
	IncrementFIXOutbound(len(b))
	if l.logMessages {
		l.entry.WithFields(Fields{"direction": "out", "msg_type": MsgTypeOf(raw)}).Debug(Redact(raw))
	}
}

func (l *fixLog) OnEvent(s string) {
	l.entry.Info(s)
}

func (l *fixLog) OnEventf(format string, a ...interface{}) {
	l.entry.Infof(format, a...)
}
