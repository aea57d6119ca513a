package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/linht/ismtx-manager/ismtx"
)

// ISMTXPlugin exposes the ISM-TX transmitter over HTTP and WebSocket
type ISMTXPlugin struct {
	station *Station
}

// NewISMTXPlugin creates a new ISM-TX plugin instance
func NewISMTXPlugin(station *Station) (*ISMTXPlugin, error) {
	if station == nil {
		return nil, fmt.Errorf("station cannot be nil")
	}
	return &ISMTXPlugin{station: station}, nil
}

// Name returns the plugin identifier
func (p *ISMTXPlugin) Name() string {
	return "ismtx"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *ISMTXPlugin) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/ismtx")

	// Device control endpoints
	api.Post("/init", p.handleInit)
	api.Post("/reset", p.handleReset)
	api.Get("/status", p.handleStatus)
	api.Get("/info", p.handleInfo)

	// Register access endpoints
	api.Get("/register/:addr", p.handleReadRegister)
	api.Post("/register/:addr", p.handleWriteRegister)
	api.Get("/registers", p.handleReadAllRegisters)

	// Configuration items
	api.Get("/config", p.handleListConfig)
	api.Get("/config/:item", p.handleGetConfig)
	api.Post("/config/:item", p.handleSetConfig)

	// Synthesizer and bit rate
	api.Get("/frequency", p.handleGetFrequency)
	api.Post("/frequency", p.handleSetFrequency)
	api.Post("/deviation", p.handleAdjustDeviation)
	api.Post("/bitrate", p.handleAdjustBitrate)

	// Transmission
	api.Post("/transmit", p.handleTransmit)
	api.Post("/transmit/raw", p.handleTransmitRaw)
	api.Get("/history", p.handleHistory)
	api.Post("/decode", p.handleDecode)
	api.Get("/ws", websocket.New(p.handleWebSocket))

	slog.Info("ISM-TX plugin routes registered")
}

// Shutdown performs cleanup
func (p *ISMTXPlugin) Shutdown() error {
	// No persistent resources to clean up
	return nil
}

// Device control handlers

func (p *ISMTXPlugin) handleInit(c *fiber.Ctx) error {
	err := p.station.Do(func(d *ismtx.Device) error {
		if err := d.CheckDevice(); err != nil {
			return err
		}
		return d.DefaultConfig()
	})
	if err != nil {
		return SendDriverError(c, err)
	}

	slog.Info("ISM-TX initialized", "modulation", p.station.Modulation(), "frequency", ismtx.DefaultFrequency)
	return SendSuccess(c, map[string]interface{}{
		"version":    fmt.Sprintf("0x%02X", ismtx.ChipIDValue),
		"modulation": p.station.Modulation().String(),
	}, "Default configuration applied")
}

func (p *ISMTXPlugin) handleReset(c *fiber.Ctx) error {
	err := p.station.Do(func(d *ismtx.Device) error {
		return d.SoftReset()
	})
	if err != nil {
		return SendDriverError(c, err)
	}

	slog.Info("ISM-TX soft reset successful")
	return SendSuccess(c, nil, "Soft reset successful")
}

func (p *ISMTXPlugin) handleStatus(c *fiber.Ctx) error {
	var (
		version  uint8
		freq     uint32
		shaped   uint8
		post     uint8
		pre      uint8
		modField uint8
	)

	err := p.station.Do(func(d *ismtx.Device) error {
		var err error
		if version, err = d.Version(); err != nil {
			return err
		}
		if freq, err = d.GetFrequency(); err != nil {
			return err
		}
		if modField, err = d.GetConfig(ismtx.ItemModulation); err != nil {
			return err
		}
		if shaped, err = d.GetConfig(ismtx.ItemFSKShapeEnable); err != nil {
			return err
		}
		if post, err = d.GetConfig(ismtx.ItemBitratePostdiv); err != nil {
			return err
		}
		pre, err = d.GetConfig(ismtx.ItemBitratePrediv)
		return err
	})
	if err != nil {
		return SendDriverError(c, err)
	}

	programmed := ismtx.ModulationASK
	if modField == 1 {
		programmed = ismtx.ModulationFSK
	}

	return SendSuccess(c, map[string]interface{}{
		"version":    fmt.Sprintf("0x%02X", version),
		"frequency":  freq,
		"modulation": programmed.String(),
		"fsk_shape":  shaped == 1,
		"bitrate":    ismtx.Bitrate(ismtx.PostDivider(post), pre),
	}, "")
}

func (p *ISMTXPlugin) handleInfo(c *fiber.Ctx) error {
	info := map[string]interface{}{
		"config":          p.station.Config(),
		"mode":            "transient",
		"frequency_step":  ismtx.FrequencyStep,
		"max_payload":     ismtx.MaxPayloadLength,
		"max_raw":         ismtx.MaxRawLength,
		"symbol_width_us": ismtx.SymbolWidth.Microseconds(),
	}

	hw, err := p.station.AdapterInfo()
	if err != nil {
		info["hardware_error"] = err.Error()
	} else {
		info["hardware"] = hw
	}
	return SendSuccess(c, info, "")
}

// Register access handlers

func registerParam(c *fiber.Ctx) (ismtx.Register, bool) {
	addr, err := c.ParamsInt("addr")
	if err != nil || addr < 0 || addr > 0x7F {
		return 0, false
	}
	return ismtx.Register(addr), true
}

func (p *ISMTXPlugin) handleReadRegister(c *fiber.Ctx) error {
	reg, ok := registerParam(c)
	if !ok {
		return SendErrorMessage(c, 400, "Invalid register address")
	}

	var value uint8
	err := p.station.Do(func(d *ismtx.Device) error {
		var err error
		value, err = d.ReadRegister(reg)
		return err
	})
	if err != nil {
		return SendDriverError(c, err)
	}

	desc := ismtx.RegisterDescriptions[reg]
	if desc == "" {
		desc = "Unknown register"
	}

	return SendSuccess(c, map[string]interface{}{
		"address":     fmt.Sprintf("0x%02X", uint8(reg)),
		"value":       fmt.Sprintf("0x%02X", value),
		"value_dec":   value,
		"description": desc,
	}, "")
}

func (p *ISMTXPlugin) handleWriteRegister(c *fiber.Ctx) error {
	reg, ok := registerParam(c)
	if !ok {
		return SendErrorMessage(c, 400, "Invalid register address")
	}

	var req struct {
		Value uint8 `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}

	err := p.station.Do(func(d *ismtx.Device) error {
		return d.WriteRegister(reg, req.Value)
	})
	if err != nil {
		return SendDriverError(c, err)
	}

	slog.Info("Register write", "address", fmt.Sprintf("0x%02X", uint8(reg)), "value", fmt.Sprintf("0x%02X", req.Value))
	return SendSuccess(c, nil, "Register written successfully")
}

func (p *ISMTXPlugin) handleReadAllRegisters(c *fiber.Ctx) error {
	var registers map[ismtx.Register]uint8

	err := p.station.Do(func(d *ismtx.Device) error {
		var err error
		registers, err = d.ReadAll()
		return err
	})
	if err != nil {
		return SendDriverError(c, err)
	}

	// Format for JSON response
	regList := make([]map[string]interface{}, 0, len(registers))
	for reg := ismtx.RegTxCfg0; reg <= ismtx.RegChipID; reg++ {
		value, ok := registers[reg]
		if !ok {
			continue
		}
		regList = append(regList, map[string]interface{}{
			"address":     fmt.Sprintf("0x%02X", uint8(reg)),
			"value":       fmt.Sprintf("0x%02X", value),
			"value_dec":   value,
			"description": ismtx.RegisterDescriptions[reg],
		})
	}

	return SendSuccess(c, map[string]interface{}{
		"registers": regList,
		"count":     len(regList),
	}, "")
}

// Configuration item handlers

func (p *ISMTXPlugin) handleListConfig(c *fiber.Ctx) error {
	items := make([]map[string]interface{}, 0)

	err := p.station.Do(func(d *ismtx.Device) error {
		for _, item := range ismtx.Items() {
			v, err := d.GetConfig(item)
			if err != nil {
				return err
			}
			f, _ := item.Field()
			items = append(items, map[string]interface{}{
				"name":     item.String(),
				"value":    v,
				"max":      f.Max,
				"register": fmt.Sprintf("0x%02X", uint8(f.Reg)),
				"shift":    f.Shift,
			})
		}
		return nil
	})
	if err != nil {
		return SendDriverError(c, err)
	}

	return SendSuccess(c, map[string]interface{}{
		"items": items,
		"count": len(items),
	}, "")
}

func (p *ISMTXPlugin) handleGetConfig(c *fiber.Ctx) error {
	item, err := ismtx.ParseItem(c.Params("item"))
	if err != nil {
		return SendDriverError(c, err)
	}

	var value uint8
	err = p.station.Do(func(d *ismtx.Device) error {
		var err error
		value, err = d.GetConfig(item)
		return err
	})
	if err != nil {
		return SendDriverError(c, err)
	}

	return SendSuccess(c, map[string]interface{}{
		"name":  item.String(),
		"value": value,
	}, "")
}

func (p *ISMTXPlugin) handleSetConfig(c *fiber.Ctx) error {
	item, err := ismtx.ParseItem(c.Params("item"))
	if err != nil {
		return SendDriverError(c, err)
	}

	var req struct {
		Value uint8 `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}

	err = p.station.Do(func(d *ismtx.Device) error {
		return d.SetConfig(item, req.Value)
	})
	if err != nil {
		return SendDriverError(c, err)
	}

	slog.Info("Config item set", "item", item, "value", req.Value)
	return SendSuccess(c, map[string]interface{}{
		"name":  item.String(),
		"value": req.Value,
	}, "Config item set successfully")
}

// Synthesizer and bit rate handlers

func (p *ISMTXPlugin) handleGetFrequency(c *fiber.Ctx) error {
	var freq uint32

	err := p.station.Do(func(d *ismtx.Device) error {
		var err error
		freq, err = d.GetFrequency()
		return err
	})
	if err != nil {
		return SendDriverError(c, err)
	}

	return SendSuccess(c, map[string]interface{}{
		"frequency": freq,
	}, "")
}

func (p *ISMTXPlugin) handleSetFrequency(c *fiber.Ctx) error {
	var req struct {
		Frequency uint32 `json:"frequency"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}

	err := p.station.Do(func(d *ismtx.Device) error {
		return d.SetFrequency(req.Frequency)
	})
	if err != nil {
		return SendDriverError(c, err)
	}

	slog.Info("Frequency set", "frequency", req.Frequency)
	return SendSuccess(c, map[string]interface{}{
		"frequency": req.Frequency,
	}, "Frequency set successfully")
}

func (p *ISMTXPlugin) handleAdjustDeviation(c *fiber.Ctx) error {
	var req struct {
		Deviation uint32 `json:"deviation"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}

	var freq uint32
	err := p.station.Do(func(d *ismtx.Device) error {
		if err := d.AdjustFrequencyDeviation(req.Deviation); err != nil {
			return err
		}
		var err error
		freq, err = d.GetFrequency()
		return err
	})
	if err != nil {
		return SendDriverError(c, err)
	}

	slog.Info("FSK deviation adjusted", "deviation", req.Deviation, "frequency", freq)
	return SendSuccess(c, map[string]interface{}{
		"deviation": req.Deviation,
		"frequency": freq,
	}, "Deviation adjusted successfully")
}

func (p *ISMTXPlugin) handleAdjustBitrate(c *fiber.Ctx) error {
	var req struct {
		Bitrate uint32 `json:"bitrate"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}

	post, pre, err := ismtx.BitrateDividers(req.Bitrate)
	if err != nil {
		return SendDriverError(c, err)
	}

	err = p.station.Do(func(d *ismtx.Device) error {
		return d.AdjustManchesterBitrate(req.Bitrate)
	})
	if err != nil {
		return SendDriverError(c, err)
	}

	slog.Info("Manchester bit rate set", "bitrate", req.Bitrate, "postdiv", post, "prediv", pre)
	return SendSuccess(c, map[string]interface{}{
		"bitrate":  req.Bitrate,
		"actual":   ismtx.Bitrate(post, pre),
		"post_div": post.String(),
		"pre_div":  pre,
	}, "Bit rate set successfully")
}

// Transmission handlers

func (p *ISMTXPlugin) transmit(c *fiber.Ctx, raw bool) error {
	var req TxRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	req.Raw = raw

	t, err := p.station.Transmit(c.UserContext(), "http", req)
	if err != nil {
		return SendDriverError(c, err)
	}

	slog.Info("Transmission sent", "id", t.ID, "bytes", t.Bytes, "duration", t.Duration)
	return SendSuccess(c, t, "Transmission sent")
}

func (p *ISMTXPlugin) handleTransmit(c *fiber.Ctx) error {
	return p.transmit(c, false)
}

func (p *ISMTXPlugin) handleTransmitRaw(c *fiber.Ctx) error {
	return p.transmit(c, true)
}

func (p *ISMTXPlugin) handleHistory(c *fiber.Ctx) error {
	entries, err := p.station.History().Recent(c.UserContext(), c.QueryInt("limit", 20))
	if err != nil {
		return SendError(c, 500, err)
	}
	return SendSuccess(c, entries, "")
}

// handleDecode turns a string of '0'/'1' Manchester symbols back into bytes
func (p *ISMTXPlugin) handleDecode(c *fiber.Ctx) error {
	var req struct {
		Symbols string `json:"symbols"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}

	symbols := make([]uint8, 0, len(req.Symbols))
	for _, r := range strings.TrimSpace(req.Symbols) {
		switch r {
		case '0':
			symbols = append(symbols, 0)
		case '1':
			symbols = append(symbols, 1)
		case ' ':
		default:
			return SendErrorMessage(c, 400, "Symbols must be 0 or 1")
		}
	}

	data, err := ismtx.DecodeManchester(symbols)
	if err != nil {
		return SendError(c, 400, err)
	}
	return SendSuccess(c, map[string]interface{}{
		"data":  fmt.Sprintf("%x", data),
		"bytes": len(data),
	}, "")
}

// handleWebSocket sends every TxRequest received on the socket and answers
// with the resulting Transmission
func (p *ISMTXPlugin) handleWebSocket(c *websocket.Conn) {
	for {
		var req TxRequest
		if err := c.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("WebSocket read failed", "error", err)
			}
			return
		}

		t, err := p.station.Transmit(context.Background(), "ws", req)
		resp := APIResponse{Success: err == nil, Data: t}
		if err != nil {
			resp.Error = err.Error()
		}
		if err := c.WriteJSON(resp); err != nil {
			slog.Warn("WebSocket write failed", "error", err)
			return
		}
	}
}

// Register the plugin
func init() {
	Register("ismtx", func(config interface{}) (Plugin, error) {
		station, ok := config.(*Station)
		if !ok {
			return nil, fmt.Errorf("invalid config for ismtx plugin: expected *Station")
		}
		return NewISMTXPlugin(station)
	})
}
