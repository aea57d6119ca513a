package ismtx

import (
	"fmt"
	"math"
)

// Frequency synthesizer limits and reference
const (
	MinFrequency = 250_000_000
	MaxFrequency = 950_000_000

	crystalMHz = 16.0
	pllSteps   = 65536.0
)

// FrequencyStep is the carrier resolution in Hz (16 MHz / 65536).
const FrequencyStep = crystalMHz * 1e6 / pllSteps

// Deviation register scale, register units per MHz
const (
	deviationScale       = 8192 / crystalMHz * 2
	shapedDeviationScale = 819.2 / crystalMHz * 2
)

// FrequencyToRaw returns the 24-bit PLL value for freqHz. It does not check
// the range.
func FrequencyToRaw(freqHz uint32) uint32 {
	return uint32(math.Round(float64(freqHz)/1e6*pllSteps/crystalMHz)) & 0xFFFFFF
}

// RawToFrequency converts a PLL value back to Hz.
func RawToFrequency(raw uint32) uint32 {
	return uint32(math.Round(float64(raw) / pllSteps * crystalMHz * 1e6))
}

// DeviationValue is the deviation register content for deviationHz, rounded up.
func DeviationValue(deviationHz uint32, shaped bool) uint32 {
	scale := deviationScale
	if shaped {
		scale = shapedDeviationScale
	}
	return uint32(math.Ceil(float64(deviationHz) / 1e6 * scale))
}

// SetFrequency tunes the carrier. The value read back by GetFrequency is within
// one FrequencyStep of freqHz.
func (d *Device) SetFrequency(freqHz uint32) error {
	if freqHz < MinFrequency || freqHz > MaxFrequency {
		return fmt.Errorf("%w: %d Hz", ErrFrequencyRange, freqHz)
	}

	raw := FrequencyToRaw(freqHz)
	if err := d.WriteRegister(RegFreqHigh, uint8(raw>>16)); err != nil {
		return fmt.Errorf("failed to write frequency MSB: %w", err)
	}
	if err := d.WriteRegister(RegFreqMid, uint8(raw>>8)); err != nil {
		return fmt.Errorf("failed to write frequency mid: %w", err)
	}
	if err := d.WriteRegister(RegFreqLow, uint8(raw)); err != nil {
		return fmt.Errorf("failed to write frequency LSB: %w", err)
	}
	return nil
}

// GetFrequency reads the carrier back in Hz.
func (d *Device) GetFrequency() (uint32, error) {
	msb, err := d.ReadRegister(RegFreqHigh)
	if err != nil {
		return 0, fmt.Errorf("failed to read frequency MSB: %w", err)
	}
	mid, err := d.ReadRegister(RegFreqMid)
	if err != nil {
		return 0, fmt.Errorf("failed to read frequency mid: %w", err)
	}
	lsb, err := d.ReadRegister(RegFreqLow)
	if err != nil {
		return 0, fmt.Errorf("failed to read frequency LSB: %w", err)
	}

	raw := uint32(msb)<<16 | uint32(mid)<<8 | uint32(lsb)
	return RawToFrequency(raw), nil
}

// AdjustFrequencyDeviation moves the carrier down by deviationHz and then
// programs the deviation register that matches the current FSK shaping
// setting. The carrier is always written first.
func (d *Device) AdjustFrequencyDeviation(deviationHz uint32) error {
	shaped, err := d.GetConfig(ItemFSKShapeEnable)
	if err != nil {
		return err
	}
	item := ItemFSKDeviation
	if shaped == 1 {
		item = ItemFSKShapeDeviation
	}
	value := DeviationValue(deviationHz, shaped == 1)
	if f, _ := item.Field(); value > uint32(f.Max) {
		return fmt.Errorf("%w: deviation %d Hz needs %s = %d, max %d",
			ErrValueTooLarge, deviationHz, item, value, f.Max)
	}

	freq, err := d.GetFrequency()
	if err != nil {
		return err
	}
	if deviationHz > freq {
		return fmt.Errorf("%w: deviation %d Hz exceeds carrier", ErrFrequencyRange, deviationHz)
	}
	if err := d.SetFrequency(freq - deviationHz); err != nil {
		return err
	}
	return d.SetConfig(item, uint8(value))
}
