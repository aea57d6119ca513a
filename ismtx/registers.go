package ismtx

// Register is an ISM-TX register address.
type Register uint8

// Register addresses
const (
	RegTxCfg0        Register = 0x00 // Modulation, encoding and PLL loop settings
	RegTxCfg1        Register = 0x01 // PA power level, ramp and ASK shaping
	RegClkOutCfg     Register = 0x02 // CLKOUT pin configuration
	RegFreqHigh      Register = 0x03 // PLL frequency MSB
	RegFreqMid       Register = 0x04 // PLL frequency middle byte
	RegFreqLow       Register = 0x05 // PLL frequency LSB
	RegFSKDev        Register = 0x06 // FSK deviation, shaping disabled
	RegFSKShape      Register = 0x07 // FSK deviation, shaping enabled
	RegBitratePrediv Register = 0x08 // Manchester bit rate pre-divider
	RegBitrateCfg    Register = 0x09 // Bit rate post-divider and preamble length
	RegPacketCfg     Register = 0x0A // Packet handler options
	RegSDIOCfg       Register = 0x0B // SDIO pin function
	RegPowerCfg      Register = 0x0C // Crystal start-up and sleep behaviour
	RegCommand       Register = 0x0D // Command strobe
	RegReset         Register = 0x0E // Soft reset
	RegChipID        Register = 0x0F // Chip identification

	lastRegister = RegChipID
)

// SPI address byte flags
const (
	writeFlag = 0x80
	readMask  = 0x7F
)

// Command strobes written to RegCommand
const (
	CmdIdle        = 0x00
	CmdTxEnable    = 0x01 // Power up PLL and PA
	CmdTransparent = 0x02 // Take transmit data from SDIO instead of the FIFO
	CmdTxStart     = 0x03
	CmdReleaseSDIO = 0x04 // Stop driving SDIO so the host can use it as data input
)

// RegSDIOCfg values
const (
	SDIOSpiData = 0x00
	SDIODataIn  = 0x40
)

// RegReset values
const (
	ResetAssert  = 0x01
	ResetRelease = 0x00
)

// ChipIDValue is the content of RegChipID on a responsive part.
const ChipIDValue = 0x51

// Register descriptions for UI
var RegisterDescriptions = map[Register]string{
	RegTxCfg0:        "TXCFG0 - Modulation, encoding, PLL",
	RegTxCfg1:        "TXCFG1 - PA level and ramp",
	RegClkOutCfg:     "CLKOUTCFG - Clock output",
	RegFreqHigh:      "FREQH - PLL frequency MSB",
	RegFreqMid:       "FREQM - PLL frequency middle",
	RegFreqLow:       "FREQL - PLL frequency LSB",
	RegFSKDev:        "FSKDEV - FSK deviation",
	RegFSKShape:      "FSKSHAPE - Shaped FSK deviation",
	RegBitratePrediv: "BRPREDIV - Bit rate pre-divider",
	RegBitrateCfg:    "BRCFG - Post-divider, preamble",
	RegPacketCfg:     "PKTCFG - Packet options",
	RegSDIOCfg:       "SDIOCFG - SDIO pin function",
	RegPowerCfg:      "PWRCFG - Crystal and sleep",
	RegCommand:       "CMD - Command strobe",
	RegReset:         "RESET - Soft reset",
	RegChipID:        "CHIPID - Chip identification",
}

// regValue is one raw register write in a fixed programming sequence.
type regValue struct {
	reg   Register
	value uint8
}

// Power-on programming per modulation, written by DefaultConfig before the
// carrier is set. Both select Manchester encoding, PLL bandwidth 1, full PA
// power with ramp 1, CLKOUT off and preamble on; ASK also enables PA shaping.
var (
	askDefaults = []regValue{
		{RegTxCfg0, 0x22},
		{RegTxCfg1, 0xEC},
		{RegClkOutCfg, 0x00},
		{RegPacketCfg, 0x40},
		{RegSDIOCfg, SDIOSpiData},
		{RegPowerCfg, 0x40},
	}
	fskDefaults = []regValue{
		{RegTxCfg0, 0xA2},
		{RegTxCfg1, 0xE8},
		{RegClkOutCfg, 0x00},
		{RegPacketCfg, 0x40},
		{RegSDIOCfg, SDIOSpiData},
		{RegPowerCfg, 0x40},
	}
)
