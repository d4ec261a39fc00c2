package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/quickfixgo/quickfix"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestWarnCountedPerComponent(t *testing.T) {
	log := Logger()
	log.SetOutput(&bytes.Buffer{})
	before := snapshotCounts(&warnCounts)["count-test"]
	log.WithComponent("count-test").Warn("one")
	log.WithComponent("count-test").Warnf("two %d", 2)
	if got := snapshotCounts(&warnCounts)["count-test"]; got != before+2 {
		t.Fatalf("expected %d warns, got %d", before+2, got)
	}
}

func TestRedact(t *testing.T) {
	raw := "8=FIXT.1.1\x0135=A\x01553=key\x01554=secret-pass\x0196=c2ln\x0110=000\x01"
	out := Redact(raw)
	if strings.Contains(out, "secret-pass") || strings.Contains(out, "c2ln") {
		t.Fatalf("credentials leaked: %s", out)
	}
	if !strings.Contains(out, "553=key|") || !strings.Contains(out, "554=****") {
		t.Fatalf("unexpected redaction: %s", out)
	}
	if MsgTypeOf(raw) != "A" {
		t.Fatalf("unexpected msg type %q", MsgTypeOf(raw))
	}
}

func TestFIXLogFactoryWritesRedactedMessages(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	buf := &bytes.Buffer{}
	log := Logger()
	log.SetOutput(buf)
	if err := log.Configure("debug", "json", "", 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	log.SetOutput(buf)

	factory := NewFIXLogFactory(log, true)
	fl, err := factory.CreateSessionLog(quickfix.SessionID{BeginString: "FIXT.1.1", SenderCompID: "S", TargetCompID: "T"})
	if err != nil {
		t.Fatalf("CreateSessionLog: %v", err)
	}
	before := Counters()["fix_outbound"]
	fl.OnOutgoing([]byte("8=FIXT.1.1\x0135=A\x01554=pw\x0110=000\x01"))
	fl.OnEvent("Connected")
	if Counters()["fix_outbound"] != before+1 {
		t.Fatalf("outbound message not counted")
	}
	if strings.Contains(buf.String(), "554=pw") {
		t.Fatalf("password logged: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "Connected") {
		t.Fatalf("event not logged: %s", buf.String())
	}
}

func TestDashboardBodyNamesNamespace(t *testing.T) {
	if !strings.Contains(DashboardBody("ns-x"), `"ns-x","fix_inbound"`) {
		t.Fatalf("namespace missing from dashboard")
	}
}
