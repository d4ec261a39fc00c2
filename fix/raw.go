package fix

import (
	"strconv"
	"strings"
)

// Field is one tag=value pair in wire order.
type Field struct {
	Tag   int
	Value string
}

// Entry is one repeating group entry.
type Entry []Field

// Get returns the first value of tag within the entry.
func (e Entry) Get(tag int) (string, bool) {
	for _, f := range e {
		if f.Tag == tag {
			return f.Value, true
		}
	}
	return "", false
}

// groupMembers lists the tags known to belong to each repeating group we
// read. Inside the declared entry count any tag other than the trailer is a
// member; the list only decides where the last entry ends.
var groupMembers = map[int]map[int]bool{
	TagNoMDEntries: setOf(
		TagMDUpdateAction, TagMDEntryType, TagMDEntryID, TagMDEntryRefID, TagSymbol,
		48, 22, TagMDEntryPx, 15, TagMDEntrySize, TagMDEntryDate, TagMDEntryTime,
		274, 275, 276, 277, 282, 283, 284, 286, 290, 336, 346, 625, 1003, 1023, 1070, 2446,
	),
	TagNoMDEntryTypes: setOf(TagMDEntryType),
	TagNoRelatedSym:   setOf(TagSymbol, 22, 48, 107, 167, 207, 460, 15),
}

// afterGroup holds message level tags that close the last entry of a group.
var afterGroup = setOf(TagCheckSum, TagText, 89, 93, TagMDReqID)

func setOf(tags ...int) map[int]bool {
	m := make(map[int]bool, len(tags))
	for _, t := range tags {
		m[t] = true
	}
	return m
}

// delimiter returns the first tag of every entry of countTag.
func delimiter(msgType string, countTag int) int {
	switch countTag {
	case TagNoMDEntries:
		if msgType == MsgTypeIncremental {
			return TagMDUpdateAction
		}
		return TagMDEntryType
	case TagNoMDEntryTypes:
		return TagMDEntryType
	default:
		return TagSymbol
	}
}

// Raw is a tag=value message split into top level fields and the repeating
// groups listed in groupMembers.
type Raw struct {
	fields map[int]string
	groups map[int][]Entry
	counts map[int]int
}

// SplitFields parses an SOH delimited message. Pairs without a numeric tag
// are skipped.
func SplitFields(raw string) []Field {
	parts := strings.Split(raw, "\x01")
	out := make([]Field, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		eq := strings.IndexByte(p, '=')
		if eq <= 0 {
			continue
		}
		tag, err := strconv.Atoi(p[:eq])
		if err != nil {
			continue
		}
		out = append(out, Field{Tag: tag, Value: p[eq+1:]})
	}
	return out
}

// ParseRaw walks the message once. An entry starts at the group delimiter or
// at a tag the current entry already holds. The declared count bounds the
// group: the last entry ends at its first unknown repeat, at a message level
// tag or at the checksum. A count that is not a number is reported as -1.
func ParseRaw(raw string) *Raw {
	fields := SplitFields(raw)
	r := &Raw{
		fields: make(map[int]string),
		groups: make(map[int][]Entry),
		counts: make(map[int]int),
	}
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if _, seen := r.fields[f.Tag]; !seen {
			r.fields[f.Tag] = f.Value
		}
		members, isGroup := groupMembers[f.Tag]
		if !isGroup {
			continue
		}
		n, err := strconv.Atoi(f.Value)
		if err != nil || n < 0 {
			n = -1
		}
		entries, next := readGroup(fields, i+1, n, delimiter(r.fields[TagMsgType], f.Tag), members)
		if _, seen := r.groups[f.Tag]; !seen {
			r.groups[f.Tag] = entries
			r.counts[f.Tag] = n
		}
		i = next - 1
	}
	return r
}

func readGroup(fields []Field, start, declared, delim int, members map[int]bool) ([]Entry, int) {
	if declared == 0 {
		return nil, start
	}
	var (
		entries []Entry
		cur     Entry
	)
	i := start
	for ; i < len(fields); i++ {
		f := fields[i]
		if f.Tag == TagCheckSum {
			break
		}
		if _, nested := groupMembers[f.Tag]; nested {
			break
		}
		newEntry := cur == nil || f.Tag == delim || cur.has(f.Tag)
		last := declared < 0 || len(entries)+1 >= declared
		if last && !members[f.Tag] && (newEntry || afterGroup[f.Tag]) {
			break
		}
		if newEntry && cur != nil {
			entries = append(entries, cur)
			cur = nil
		}
		cur = append(cur, f)
	}
	if cur != nil {
		entries = append(entries, cur)
	}
	return entries, i
}

func (e Entry) has(tag int) bool {
	_, ok := e.Get(tag)
	return ok
}

// Get returns the first top level value of tag.
func (r *Raw) Get(tag int) (string, bool) {
	v, ok := r.fields[tag]
	return v, ok
}

// String returns the top level value of tag or "".
func (r *Raw) String(tag int) string {
	return r.fields[tag]
}

// Group returns the entries of the group started by countTag and whether the
// count tag was present.
func (r *Raw) Group(countTag int) ([]Entry, bool) {
	_, ok := r.fields[countTag]
	return r.groups[countTag], ok
}

// Count returns the declared entry count of a group, -1 when the count is
// not a number.
func (r *Raw) Count(countTag int) int {
	return r.counts[countTag]
}
