package fix

import (
	"strings"
	"testing"
)

// soh converts a pipe delimited message into wire form.
func soh(s string) string {
	return strings.ReplaceAll(s, "|", "\x01")
}

func TestSplitFieldsSkipsMalformedPairs(t *testing.T) {
	fields := SplitFields(soh("8=FIXT.1.1|junk|=x|abc=1|35=W|"))
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %+v", fields)
	}
	if fields[1].Tag != TagMsgType || fields[1].Value != "W" {
		t.Fatalf("unexpected field %+v", fields[1])
	}
}

func TestParseRawGroups(t *testing.T) {
	r := ParseRaw(soh("8=FIXT.1.1|35=W|55=BTC-USD|268=3|269=0|270=100|271=1|269=1|270=101|269=2|270=100.5|58=done|10=000|"))

	if r.String(TagSymbol) != "BTC-USD" {
		t.Fatalf("unexpected symbol %q", r.String(TagSymbol))
	}
	entries, ok := r.Group(TagNoMDEntries)
	if !ok || len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d (%v)", len(entries), ok)
	}
	if r.Count(TagNoMDEntries) != 3 {
		t.Fatalf("unexpected count %d", r.Count(TagNoMDEntries))
	}
	if px, _ := entries[1].Get(TagMDEntryPx); px != "101" {
		t.Fatalf("unexpected second entry price %q", px)
	}
	if r.String(TagText) != "done" {
		t.Fatalf("trailing field after group lost")
	}
}

func TestParseRawMissingGroup(t *testing.T) {
	r := ParseRaw(soh("35=W|55=BTC-USD|10=000|"))
	if _, ok := r.Group(TagNoMDEntries); ok {
		t.Fatalf("group reported present")
	}
}

func TestParseRawEmptyGroup(t *testing.T) {
	r := ParseRaw(soh("35=W|55=BTC-USD|268=0|10=000|"))
	entries, ok := r.Group(TagNoMDEntries)
	if !ok || len(entries) != 0 {
		t.Fatalf("expected present empty group, got %d (%v)", len(entries), ok)
	}
}

func TestParseRawUnknownTagInsideEntry(t *testing.T) {
	r := ParseRaw(soh("35=W|55=BTC-USD|268=3|269=0|270=100|271=1|5000=x|269=0|270=105|271=2|269=1|270=108|271=1|10=000|"))
	entries, _ := r.Group(TagNoMDEntries)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if v, _ := entries[0].Get(5000); v != "x" {
		t.Fatalf("unknown tag not kept with its entry: %+v", entries[0])
	}
	if px, _ := entries[2].Get(TagMDEntryPx); px != "108" {
		t.Fatalf("unexpected last entry %+v", entries[2])
	}
}

func TestParseRawMissingDelimiterStartsEntry(t *testing.T) {
	r := ParseRaw(soh("35=X|268=3|279=0|269=0|278=b1|270=100|269=0|278=b2|270=101|279=0|269=1|278=a1|270=102|10=000|"))
	entries, _ := r.Group(TagNoMDEntries)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if _, ok := entries[1].Get(TagMDUpdateAction); ok {
		t.Fatalf("second entry borrowed an action: %+v", entries[1])
	}
	if id, _ := entries[1].Get(TagMDEntryID); id != "b2" {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
}

func TestParseRawCount(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"35=W|268=2|269=0|270=1|269=1|270=2|10=000|", 2},
		{"35=W|268=x|269=0|270=1|10=000|", -1},
		{"35=W|268=0|10=000|", 0},
	}
	for _, c := range cases {
		if got := ParseRaw(soh(c.raw)).Count(TagNoMDEntries); got != c.want {
			t.Errorf("%q: count %d, want %d", c.raw, got, c.want)
		}
	}
}
