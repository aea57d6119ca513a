package ismtx

import (
	"errors"
	"fmt"
)

// ErrParameter is wrapped by every error caused by a caller-supplied value.
// Such errors are reported before the device is touched. Errors that do not
// match it come from the bus.
var ErrParameter = errors.New("parameter error")

var (
	ErrUnknownItem    = fmt.Errorf("%w: unknown config item", ErrParameter)
	ErrValueTooLarge  = fmt.Errorf("%w: value too large", ErrParameter)
	ErrFrequencyRange = fmt.Errorf("%w: frequency out of range (250-950 MHz)", ErrParameter)
	ErrBitrateRange   = fmt.Errorf("%w: bit rate out of range (195-200000 baud)", ErrParameter)
	ErrPredivider     = fmt.Errorf("%w: pre-divider below hardware minimum", ErrParameter)
	ErrPayloadTooLong = fmt.Errorf("%w: payload longer than 62 bytes", ErrParameter)
	ErrBufferTooLong  = fmt.Errorf("%w: raw buffer longer than 64 bytes", ErrParameter)
	ErrModulation     = fmt.Errorf("%w: modulation not selected", ErrParameter)
	ErrInvalidSymbol  = errors.New("invalid manchester symbol pair")
	ErrChipID         = errors.New("unexpected chip id")
)
