package ismtx

import (
	"fmt"
	"strings"
)

// Item identifies one configuration bitfield.
type Item uint8

// Configuration items
const (
	ItemModulation Item = iota
	ItemEncoding
	ItemDataInvert
	ItemFSKShapeEnable
	ItemPLLBandwidth
	ItemCrystalTrim
	ItemPowerLevel
	ItemPARamp
	ItemASKShapeEnable
	ItemPAMode
	ItemClkOutEnable
	ItemClkOutDivider
	ItemClkOutSource
	ItemFSKDeviation
	ItemFSKShapeDeviation
	ItemFSKShapeSteps
	ItemBitratePrediv
	ItemBitratePostdiv
	ItemBitrateSource
	ItemPreambleLength
	ItemSyncEnable
	ItemPreambleEnable
	ItemCRCEnable
	ItemPacketRepeat
	ItemSDIOMode
	ItemSDIOPullup
	ItemTxStatusOut
	ItemXtalStartup
	ItemAutoSleep

	itemCount
)

// Field locates a configuration item inside a register.
type Field struct {
	Reg   Register
	Max   uint8 // largest legal value, also the unshifted bit mask
	Shift uint8
}

// ClearMask has every bit of the register set except the field's bits.
func (f Field) ClearMask() uint8 {
	return ^(f.Max << f.Shift)
}

// Insert returns reg with the field replaced by v.
func (f Field) Insert(reg, v uint8) uint8 {
	return (reg & f.ClearMask()) | (v << f.Shift)
}

// Extract returns the field value held in reg.
func (f Field) Extract(reg uint8) uint8 {
	return (reg & ^f.ClearMask()) >> f.Shift
}

var fields = [itemCount]Field{
	ItemModulation:        {RegTxCfg0, 0x01, 7},
	ItemEncoding:          {RegTxCfg0, 0x03, 5},
	ItemDataInvert:        {RegTxCfg0, 0x01, 4},
	ItemFSKShapeEnable:    {RegTxCfg0, 0x01, 3},
	ItemPLLBandwidth:      {RegTxCfg0, 0x03, 1},
	ItemCrystalTrim:       {RegTxCfg0, 0x01, 0},
	ItemPowerLevel:        {RegTxCfg1, 0x07, 5},
	ItemPARamp:            {RegTxCfg1, 0x03, 3},
	ItemASKShapeEnable:    {RegTxCfg1, 0x01, 2},
	ItemPAMode:            {RegTxCfg1, 0x03, 0},
	ItemClkOutEnable:      {RegClkOutCfg, 0x01, 7},
	ItemClkOutDivider:     {RegClkOutCfg, 0x0F, 3},
	ItemClkOutSource:      {RegClkOutCfg, 0x07, 0},
	ItemFSKDeviation:      {RegFSKDev, 0xFF, 0},
	ItemFSKShapeDeviation: {RegFSKShape, 0x7F, 0},
	ItemFSKShapeSteps:     {RegFSKShape, 0x01, 7},
	ItemBitratePrediv:     {RegBitratePrediv, 0xFF, 0},
	ItemBitratePostdiv:    {RegBitrateCfg, 0x07, 5},
	ItemBitrateSource:     {RegBitrateCfg, 0x01, 4},
	ItemPreambleLength:    {RegBitrateCfg, 0x0F, 0},
	ItemSyncEnable:        {RegPacketCfg, 0x01, 7},
	ItemPreambleEnable:    {RegPacketCfg, 0x01, 6},
	ItemCRCEnable:         {RegPacketCfg, 0x01, 5},
	ItemPacketRepeat:      {RegPacketCfg, 0x0F, 0},
	ItemSDIOMode:          {RegSDIOCfg, 0x03, 6},
	ItemSDIOPullup:        {RegSDIOCfg, 0x01, 5},
	ItemTxStatusOut:       {RegSDIOCfg, 0x01, 4},
	ItemXtalStartup:       {RegPowerCfg, 0x03, 6},
	ItemAutoSleep:         {RegPowerCfg, 0x01, 5},
}

var itemNames = [itemCount]string{
	ItemModulation:        "modulation",
	ItemEncoding:          "encoding",
	ItemDataInvert:        "data_invert",
	ItemFSKShapeEnable:    "fsk_shape_enable",
	ItemPLLBandwidth:      "pll_bandwidth",
	ItemCrystalTrim:       "crystal_trim",
	ItemPowerLevel:        "power_level",
	ItemPARamp:            "pa_ramp",
	ItemASKShapeEnable:    "ask_shape_enable",
	ItemPAMode:            "pa_mode",
	ItemClkOutEnable:      "clkout_enable",
	ItemClkOutDivider:     "clkout_divider",
	ItemClkOutSource:      "clkout_source",
	ItemFSKDeviation:      "fsk_deviation",
	ItemFSKShapeDeviation: "fsk_shape_deviation",
	ItemFSKShapeSteps:     "fsk_shape_steps",
	ItemBitratePrediv:     "bitrate_prediv",
	ItemBitratePostdiv:    "bitrate_postdiv",
	ItemBitrateSource:     "bitrate_source",
	ItemPreambleLength:    "preamble_length",
	ItemSyncEnable:        "sync_enable",
	ItemPreambleEnable:    "preamble_enable",
	ItemCRCEnable:         "crc_enable",
	ItemPacketRepeat:      "packet_repeat",
	ItemSDIOMode:          "sdio_mode",
	ItemSDIOPullup:        "sdio_pullup",
	ItemTxStatusOut:       "tx_status_out",
	ItemXtalStartup:       "xtal_startup",
	ItemAutoSleep:         "auto_sleep",
}

// Items returns every configuration item in register order.
func Items() []Item {
	items := make([]Item, itemCount)
	for i := range items {
		items[i] = Item(i)
	}
	return items
}

// Field returns the register location of the item.
func (i Item) Field() (Field, error) {
	if i >= itemCount {
		return Field{}, fmt.Errorf("%w: %d", ErrUnknownItem, uint8(i))
	}
	return fields[i], nil
}

func (i Item) String() string {
	if i >= itemCount {
		return fmt.Sprintf("Item(%d)", uint8(i))
	}
	return itemNames[i]
}

// ParseItem maps an item name as returned by Item.String back to the item.
func ParseItem(name string) (Item, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range itemNames {
		if n == name {
			return Item(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownItem, name)
}

// SetConfig writes value into the item's bitfield, preserving the other bits
// of the register.
func (d *Device) SetConfig(item Item, value uint8) error {
	f, err := item.Field()
	if err != nil {
		return err
	}
	if value > f.Max {
		return fmt.Errorf("%w: %s = %d, max %d", ErrValueTooLarge, item, value, f.Max)
	}

	reg, err := d.ReadRegister(f.Reg)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", item, err)
	}
	if err := d.WriteRegister(f.Reg, f.Insert(reg, value)); err != nil {
		return fmt.Errorf("failed to set %s: %w", item, err)
	}
	return nil
}

// GetConfig reads the item's bitfield.
func (d *Device) GetConfig(item Item) (uint8, error) {
	f, err := item.Field()
	if err != nil {
		return 0, err
	}

	reg, err := d.ReadRegister(f.Reg)
	if err != nil {
		return 0, fmt.Errorf("failed to get %s: %w", item, err)
	}
	return f.Extract(reg), nil
}
