package schedule

import (
	"strings"
	"time"
)

// stoppageMarkers are the note substrings that record a stoppage event, in
// precedence order when a note matches more than one.
var stoppageMarkers = []struct {
	marker string
	status VisitStatus
}{
	{"screenfail", StatusScreenFail},
	{"withdrawn", StatusWithdrawn},
	{"died", StatusDied},
}

// NoteStatus scans free-text visit notes for a stoppage marker,
// case-insensitively, and returns the matching status.
func NoteStatus(notes string) (VisitStatus, bool) {
	n := strings.ToLower(notes)
	for _, m := range stoppageMarkers {
		if strings.Contains(n, m.marker) {
			return m.status, true
		}
	}
	return "", false
}

// StoppageDate returns the earliest date among a patient's visits whose notes
// record a screen failure, withdrawal or death. Stoppage is permanent and
// monotonic: the first qualifying event wins even when a later-dated record
// also qualifies. The second return is false when no stoppage exists.
func StoppageDate(visits []ActualVisit) (time.Time, bool) {
	var stop time.Time
	found := false
	for _, v := range visits {
		if v.ActualDate.IsZero() {
			continue
		}
		if _, ok := NoteStatus(v.Notes); !ok {
			continue
		}
		d := DateOf(v.ActualDate)
		if !found || d.Before(stop) {
			stop = d
			found = true
		}
	}
	return stop, found
}
