package schedule

// VisitStatus is the tagged status of a reconciled visit event. Logic always
// branches on this enum; the display label is derived from it by Label and is
// never parsed back.
type VisitStatus string

// Visit statuses.
const (
	StatusCompleted       VisitStatus = "completed"
	StatusPredicted       VisitStatus = "predicted"
	StatusProposed        VisitStatus = "proposed"
	StatusScreenFail      VisitStatus = "screen_fail"
	StatusWithdrawn       VisitStatus = "withdrawn"
	StatusDied            VisitStatus = "died"
	StatusOutOfProtocol   VisitStatus = "out_of_protocol"
	StatusDataError       VisitStatus = "data_error"
	StatusToleranceBefore VisitStatus = "tolerance_before"
	StatusToleranceAfter  VisitStatus = "tolerance_after"
)

// IsToleranceMarker reports whether the status is a tolerance-window marker.
// Markers carry no payment and are excluded from all financial rollups.
func (s VisitStatus) IsToleranceMarker() bool {
	return s == StatusToleranceBefore || s == StatusToleranceAfter
}

// IsStoppage reports whether the status records a stoppage event.
func (s VisitStatus) IsStoppage() bool {
	return s == StatusScreenFail || s == StatusWithdrawn || s == StatusDied
}

// Label renders the display string for a visit in the given status. It is the
// only place status text is produced; downstream consumers that need logic
// must use the status itself.
func Label(s VisitStatus, visitName string) string {
	switch s {
	case StatusToleranceBefore:
		return "-"
	case StatusToleranceAfter:
		return "+"
	case StatusDataError:
		return "DATA ERROR: " + visitName
	case StatusPredicted:
		return visitName + " (due)"
	case StatusProposed:
		return visitName + " (proposed)"
	case StatusScreenFail:
		return visitName + " (screen fail)"
	case StatusWithdrawn:
		return visitName + " (withdrawn)"
	case StatusDied:
		return visitName + " (died)"
	case StatusOutOfProtocol:
		return visitName + " (out of protocol)"
	default:
		return visitName
	}
}
