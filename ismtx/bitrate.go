package ismtx

import (
	"fmt"
	"math"
)

// Manchester bit rate limits in baud
const (
	MinBitrate = 195
	MaxBitrate = 200_000

	minPredivider = 3
)

// PostDivider is the register code of the bit rate post-divider. Each step
// halves the clock fed to the pre-divider.
type PostDivider uint8

const (
	PostDiv1 PostDivider = iota
	PostDiv2
	PostDiv3
	PostDiv4
	PostDiv5
)

func (p PostDivider) String() string {
	return fmt.Sprintf("div%d", uint8(p)+1)
}

// bitrateBands is ordered by upper limit; the last band has no limit.
var bitrateBands = []struct {
	below     uint32
	post      PostDivider
	numerator float64
}{
	{12_500, PostDiv5, 50_000},
	{25_000, PostDiv4, 100_000},
	{50_000, PostDiv3, 200_000},
	{100_000, PostDiv2, 400_000},
	{math.MaxUint32, PostDiv1, 800_000},
}

// BitrateDividers computes the post- and pre-divider register values for baud.
func BitrateDividers(baud uint32) (PostDivider, uint8, error) {
	if baud < MinBitrate || baud > MaxBitrate {
		return 0, 0, fmt.Errorf("%w: %d baud", ErrBitrateRange, baud)
	}

	band := bitrateBands[len(bitrateBands)-1]
	for _, b := range bitrateBands {
		if baud < b.below {
			band = b
			break
		}
	}

	prediv := math.Round(band.numerator/float64(baud)) - 1
	if prediv < minPredivider {
		return 0, 0, fmt.Errorf("%w: %d baud gives %v", ErrPredivider, baud, prediv)
	}
	if prediv > math.MaxUint8 {
		return 0, 0, fmt.Errorf("%w: %d baud gives pre-divider %v", ErrBitrateRange, baud, prediv)
	}
	return band.post, uint8(prediv), nil
}

// Bitrate is the Manchester bit rate produced by a divider pair.
func Bitrate(post PostDivider, prediv uint8) float64 {
	return 800_000 / float64(uint32(1)<<post) / (float64(prediv) + 1)
}

// AdjustManchesterBitrate programs the post-divider and then the pre-divider.
// If the second write fails the post-divider keeps its new value.
func (d *Device) AdjustManchesterBitrate(baud uint32) error {
	post, prediv, err := BitrateDividers(baud)
	if err != nil {
		return err
	}
	if err := d.SetConfig(ItemBitratePostdiv, uint8(post)); err != nil {
		return fmt.Errorf("bit rate post-divider: %w", err)
	}
	if err := d.SetConfig(ItemBitratePrediv, prediv); err != nil {
		return fmt.Errorf("bit rate pre-divider: %w", err)
	}
	return nil
}
