package lpi2c

// Status is the failure kind reported by the controller driver. It is used as
// an error value and compared with errors.Is.
type Status int

const (
	ErrBusBusy Status = iota + 1
	ErrTimeout
	ErrNACK
	ErrArbitrationLost
	ErrFIFO
	ErrPinLowTimeout
	ErrInvalidSpeed
)

var statusNames = map[Status]string{
	ErrBusBusy:         "bus busy",
	ErrTimeout:         "timeout",
	ErrNACK:            "no acknowledge",
	ErrArbitrationLost: "arbitration lost",
	ErrFIFO:            "fifo error",
	ErrPinLowTimeout:   "pin low timeout",
	ErrInvalidSpeed:    "invalid bus speed",
}

func (s Status) Error() string {
	if name, ok := statusNames[s]; ok {
		return "lpi2c: " + name
	}
	return "lpi2c: unknown error"
}

// DecodeStatusError maps MSR error flags to a Status. Pin-low timeout has the
// highest priority, then arbitration lost, NACK and FIFO error. It returns
// nil when no error flag is set.
func DecodeStatusError(msr uint32) error {
	msr &= MSRErrorMask
	switch {
	case msr == 0:
		return nil
	case msr&MSRPLTF != 0:
		return ErrPinLowTimeout
	case msr&MSRALF != 0:
		return ErrArbitrationLost
	case msr&MSRNDF != 0:
		return ErrNACK
	default:
		return ErrFIFO
	}
}
