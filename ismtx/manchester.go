package ismtx

import "fmt"

// Bits expands buf into one element per bit, most significant bit first.
func Bits(buf []byte) []uint8 {
	bits := make([]uint8, 0, len(buf)*8)
	for _, b := range buf {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (b>>uint(i))&1)
		}
	}
	return bits
}

// EncodeManchester turns every bit into a symbol pair: 0 becomes 1,0 (falling
// edge) and 1 becomes 0,1 (rising edge).
func EncodeManchester(bits []uint8) []uint8 {
	symbols := make([]uint8, 0, len(bits)*2)
	for _, b := range bits {
		if b == 0 {
			symbols = append(symbols, 1, 0)
		} else {
			symbols = append(symbols, 0, 1)
		}
	}
	return symbols
}

// DecodeManchester is the inverse of EncodeManchester followed by Bits. It
// works on whole symbols, not on line samples.
func DecodeManchester(symbols []uint8) ([]byte, error) {
	if len(symbols)%16 != 0 {
		return nil, fmt.Errorf("%w: %d symbols is not a whole number of bytes", ErrInvalidSymbol, len(symbols))
	}

	buf := make([]byte, len(symbols)/16)
	for i := 0; i < len(symbols); i += 2 {
		var bit byte
		switch {
		case symbols[i] == 1 && symbols[i+1] == 0:
			bit = 0
		case symbols[i] == 0 && symbols[i+1] == 1:
			bit = 1
		default:
			return nil, fmt.Errorf("%w: (%d,%d) at symbol %d", ErrInvalidSymbol, symbols[i], symbols[i+1], i)
		}
		n := i / 2
		buf[n/8] |= bit << (7 - uint(n%8))
	}
	return buf, nil
}
