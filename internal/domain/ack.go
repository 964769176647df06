package domain

// Status is the terminal outcome carried by an acknowledgment.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailure Status = "Failure"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusSuccess || s == StatusFailure
}

// StatusOf maps a boolean outcome to a Status.
func StatusOf(ok bool) Status {
	if ok {
		return StatusSuccess
	}
	return StatusFailure
}

// Ack is the acknowledgment for one filename.
type Ack struct {
	Filename string
	Status   Status
}

// String renders the ack without its line terminator.
func (a Ack) String() string {
	return a.Filename + "=" + string(a.Status)
}
