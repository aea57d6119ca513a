package ismtx

import "fmt"

// Frame size limits
const (
	MaxPayloadLength = 62
	MaxRawLength     = 64 // preamble and length bytes included
)

// Frame is a packet as sent by TransmitData: preamble byte, length byte,
// payload.
type Frame struct {
	Preamble byte
	Payload  []byte
}

// Bytes assembles the frame into a raw transmit buffer.
func (f Frame) Bytes() ([]byte, error) {
	if len(f.Payload) > MaxPayloadLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLong, len(f.Payload))
	}
	buf := make([]byte, 0, len(f.Payload)+2)
	buf = append(buf, f.Preamble, byte(len(f.Payload)))
	return append(buf, f.Payload...), nil
}

// TransmitData frames payload behind preamble and a length byte and sends it
// with TransmitRaw.
func (d *Device) TransmitData(preamble byte, payload []byte) error {
	buf, err := Frame{Preamble: preamble, Payload: payload}.Bytes()
	if err != nil {
		return err
	}
	return d.TransmitRaw(buf)
}
