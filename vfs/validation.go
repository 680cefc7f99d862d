package vfs

// Validation is ordered by severity, so the status of a folder is the
// maximum of its files.
type Validation int32

const (
	ValidationUnknown Validation = iota
	ValidationOk
	ValidationUnavailable
	ValidationIncomplete
	ValidationCorrupt
)

func (v Validation) String() string {
	switch v {
	case ValidationOk:
		return "OK"
	case ValidationUnavailable:
		return "Unavailable"
	case ValidationIncomplete:
		return "Incomplete"
	case ValidationCorrupt:
		return "Corrupt"
	default:
		return "Unknown"
	}
}

func (v Validation) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func MaxValidation(a, b Validation) Validation {
	if a > b {
		return a
	}
	return b
}
