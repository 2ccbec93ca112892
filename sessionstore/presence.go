package sessionstore

// Presence is the result of Probe.
type Presence int

const (
	// ProbeFailed means the backend could not answer; existence is unknown.
	ProbeFailed Presence = iota
	Absent
	Present
)

func (p Presence) String() string {
	switch p {
	case Present:
		return "present"
	case Absent:
		return "absent"
	default:
		return "probe-failed"
	}
}
