package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/quickfixgo/quickfix"
)

// timePrecisions maps sending_time_precision onto the UTCTimestamp layout and
// the engine TimeStampPrecision value.
var timePrecisions = map[string]struct{ layout, engine string }{
	"seconds": {"20060102-15:04:05", "SECONDS"},
	"millis":  {"20060102-15:04:05.000", "MILLIS"},
	"micros":  {"20060102-15:04:05.000000", "MICROS"},
}

// SendingTimeLayout returns the layout for the configured precision, falling
// back to milliseconds.
func (v VenueConfig) SendingTimeLayout() string {
	if p, ok := timePrecisions[strings.ToLower(v.SendingTimePrecision)]; ok {
		return p.layout
	}
	return timePrecisions["millis"].layout
}

func yn(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

// RenderSessionSettings renders the initiator settings in the engine's ini
// format.
func RenderSessionSettings(cfg *Config) string {
	precision := timePrecisions["millis"].engine
	if p, ok := timePrecisions[strings.ToLower(cfg.Venue.SendingTimePrecision)]; ok {
		precision = p.engine
	}

	var b strings.Builder
	b.WriteString("[DEFAULT]\n")
	b.WriteString("ConnectionType=initiator\n")
	b.WriteString("StartTime=00:00:00\n")
	b.WriteString("EndTime=00:00:00\n")
	b.WriteString("UseDataDictionary=N\n")
	b.WriteString("ValidateUserDefinedFields=N\n")
	fmt.Fprintf(&b, "ReconnectInterval=%d\n", int(cfg.Session.ReconnectInterval.Seconds()))
	b.WriteString("ResetOnLogon=Y\n")
	b.WriteString("ResetOnLogout=N\n")
	b.WriteString("ResetOnDisconnect=Y\n")
	fmt.Fprintf(&b, "HeartBtInt=%d\n", cfg.Venue.HeartBtInt)
	fmt.Fprintf(&b, "SocketConnectHost=%s\n", cfg.Venue.Host)
	fmt.Fprintf(&b, "SocketConnectPort=%s\n", cfg.Venue.Port)
	fmt.Fprintf(&b, "TimeStampPrecision=%s\n", precision)
	if cfg.Venue.SSL {
		b.WriteString("SocketUseSSL=Y\n")
		fmt.Fprintf(&b, "SocketServerName=%s\n", cfg.Venue.Host)
	}
	if cfg.Session.Store == "file" {
		fmt.Fprintf(&b, "FileStorePath=%s\n", filepath.Clean(cfg.Session.StorePath))
	}
	b.WriteString("\n[SESSION]\n")
	fmt.Fprintf(&b, "BeginString=%s\n", cfg.Venue.FixVersion)
	fmt.Fprintf(&b, "SenderCompID=%s\n", cfg.Venue.SenderCompID)
	fmt.Fprintf(&b, "TargetCompID=%s\n", cfg.Venue.TargetCompID)
	if cfg.Venue.FixVersion == quickfix.BeginStringFIXT11 {
		fmt.Fprintf(&b, "DefaultApplVerID=%s\n", cfg.Venue.DefaultApplVerID)
	}
	return b.String()
}

// SessionSettings parses the rendered settings for the engine.
func SessionSettings(cfg *Config) (*quickfix.Settings, error) {
	settings, err := quickfix.ParseSettings(strings.NewReader(RenderSessionSettings(cfg)))
	if err != nil {
		return nil, fmt.Errorf("parse session settings: %w", err)
	}
	return settings, nil
}

// MessageStoreFactory returns the engine store selected by session.store.
func MessageStoreFactory(cfg *Config, settings *quickfix.Settings) (quickfix.MessageStoreFactory, error) {
	if cfg.Session.Store == "file" {
		return quickfix.NewFileStoreFactory(settings), nil
	}
	return quickfix.NewMemoryStoreFactory(), nil
}
