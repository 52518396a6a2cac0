package session

import "fmt"

// FaultKind classifies a session failure.
type FaultKind int

const (
	// FaultCapture covers opening, starting or reading the capture device.
	FaultCapture FaultKind = iota + 1
	// FaultClassification covers the speech gate, including malformed frames.
	FaultClassification
	// FaultDispatch covers remote API and local inference failures.
	FaultDispatch
	// FaultFilesystem covers creating, writing or removing the temporary WAV.
	FaultFilesystem
)

// String returns "capture", "classification", "dispatch" or "filesystem".
func (k FaultKind) String() string {
	switch k {
	case FaultCapture:
		return "capture"
	case FaultClassification:
		return "classification"
	case FaultDispatch:
		return "dispatch"
	case FaultFilesystem:
		return "filesystem"
	default:
		return "unknown"
	}
}

// Fault is the terminal error of a failed session. The session has already
// pushed an error status and produced no transcript.
type Fault struct {
	Kind FaultKind
	Err  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("session: %s fault: %v", f.Kind, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }
