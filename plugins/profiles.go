package plugins

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/linht/ismtx-manager/ismtx"
	"gopkg.in/yaml.v3"
)

var validProfileName = regexp.MustCompile(`^[a-zA-Z0-9_@-]+$`)

// Profile is a named transmitter setup stored as YAML. Frequency is the
// nominal carrier; a non-zero Deviation shifts it down by the deviation.
type Profile struct {
	Name       string           `yaml:"name" json:"name"`
	Modulation string           `yaml:"modulation" json:"modulation"`
	Frequency  uint32           `yaml:"frequency,omitempty" json:"frequency,omitempty"`
	Deviation  uint32           `yaml:"deviation,omitempty" json:"deviation,omitempty"`
	Bitrate    uint32           `yaml:"bitrate,omitempty" json:"bitrate,omitempty"`
	Items      map[string]uint8 `yaml:"items,omitempty" json:"items,omitempty"`
}

// Validate checks every value against the driver limits without touching
// the hardware
func (p *Profile) Validate() error {
	if !validProfileName.MatchString(p.Name) {
		return fmt.Errorf("%w: invalid profile name %q", ismtx.ErrParameter, p.Name)
	}

	m, err := ismtx.ParseModulation(p.Modulation)
	if err != nil {
		return err
	}
	if m == ismtx.ModulationNone {
		return ismtx.ErrModulation
	}

	if p.Frequency != 0 && (p.Frequency < ismtx.MinFrequency || p.Frequency > ismtx.MaxFrequency) {
		return fmt.Errorf("%w: %d Hz", ismtx.ErrFrequencyRange, p.Frequency)
	}

	for name, value := range p.Items {
		item, err := ismtx.ParseItem(name)
		if err != nil {
			return err
		}
		f, _ := item.Field()
		if value > f.Max {
			return fmt.Errorf("%w: %s=%d (max %d)", ismtx.ErrValueTooLarge, item, value, f.Max)
		}
	}

	if p.Bitrate != 0 {
		if _, _, err := ismtx.BitrateDividers(p.Bitrate); err != nil {
			return err
		}
	}

	if p.Deviation != 0 {
		shaped := m == ismtx.ModulationFSK
		if v, ok := p.item(ismtx.ItemFSKShapeEnable); ok {
			shaped = v == 1
		}
		item := ismtx.ItemFSKDeviation
		if shaped {
			item = ismtx.ItemFSKShapeDeviation
		}
		f, _ := item.Field()
		if ismtx.DeviationValue(p.Deviation, shaped) > uint32(f.Max) {
			return fmt.Errorf("%w: deviation %d Hz", ismtx.ErrValueTooLarge, p.Deviation)
		}
		carrier := p.carrier()
		if p.Deviation > carrier || carrier-p.Deviation < ismtx.MinFrequency {
			return fmt.Errorf("%w: carrier %d Hz shifted by %d Hz", ismtx.ErrFrequencyRange, carrier, p.Deviation)
		}
	}

	return nil
}

// carrier is the nominal carrier the deviation is applied to
func (p *Profile) carrier() uint32 {
	if p.Frequency != 0 {
		return p.Frequency
	}
	return ismtx.DefaultFrequency
}

func (p *Profile) item(want ismtx.Item) (uint8, bool) {
	for name, v := range p.Items {
		if item, err := ismtx.ParseItem(name); err == nil && item == want {
			return v, true
		}
	}
	return 0, false
}

// Apply programs the profile: default configuration for its modulation,
// carrier, items in name order, bit rate and finally the deviation
func (p *Profile) Apply(d *ismtx.Device) error {
	if err := p.Validate(); err != nil {
		return err
	}

	m, _ := ismtx.ParseModulation(p.Modulation)
	d.SetModulation(m)
	if err := d.DefaultConfig(); err != nil {
		return fmt.Errorf("default config: %w", err)
	}

	// DefaultConfig leaves an FSK carrier already shifted by the default
	// deviation, so the nominal carrier is written back before shifting again
	if p.Frequency != 0 || p.Deviation != 0 {
		if err := d.SetFrequency(p.carrier()); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(p.Items))
	for name := range p.Items {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		item, _ := ismtx.ParseItem(name)
		if err := d.SetConfig(item, p.Items[name]); err != nil {
			return fmt.Errorf("item %s: %w", item, err)
		}
	}

	if p.Bitrate != 0 {
		if err := d.AdjustManchesterBitrate(p.Bitrate); err != nil {
			return err
		}
	}

	if p.Deviation != 0 {
		if err := d.AdjustFrequencyDeviation(p.Deviation); err != nil {
			return err
		}
	}

	return nil
}

// LoadProfile reads a profile from path
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	return &p, nil
}

// SaveProfile validates p and writes it to path
func SaveProfile(path string, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to serialize profile: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ProfilesPlugin stores transmitter profiles in a directory and applies them
type ProfilesPlugin struct {
	dir     string
	station *Station
}

// NewProfilesPlugin creates a new profiles plugin instance
func NewProfilesPlugin(dir string, station *Station) (*ProfilesPlugin, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required in profiles plugin configuration")
	}
	if station == nil {
		return nil, fmt.Errorf("station cannot be nil")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	return &ProfilesPlugin{dir: dir, station: station}, nil
}

// Name returns the plugin identifier
func (p *ProfilesPlugin) Name() string {
	return "profiles"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *ProfilesPlugin) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/profiles")

	api.Get("/", p.listProfiles)
	api.Get("/:name", p.getProfile)
	api.Put("/:name", p.saveProfile)
	api.Delete("/:name", p.deleteProfile)
	api.Post("/:name/apply", p.applyProfile)
}

// Shutdown performs cleanup
func (p *ProfilesPlugin) Shutdown() error {
	return nil
}

func (p *ProfilesPlugin) path(name string) (string, error) {
	if !validProfileName.MatchString(name) {
		return "", fmt.Errorf("invalid profile name")
	}
	return filepath.Join(p.dir, name+".yaml"), nil
}

// load resolves name and reads the profile, answering the request on failure
func (p *ProfilesPlugin) load(c *fiber.Ctx) (*Profile, error) {
	path, err := p.path(c.Params("name"))
	if err != nil {
		return nil, SendError(c, 400, err)
	}

	profile, err := LoadProfile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, SendErrorMessage(c, 404, "Profile not found")
	}
	if err != nil {
		return nil, SendError(c, 500, err)
	}
	return profile, nil
}

// listProfiles handles GET /api/profiles
func (p *ProfilesPlugin) listProfiles(c *fiber.Ctx) error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return SendError(c, 500, fmt.Errorf("failed to read profile directory: %w", err))
	}

	profiles := make([]*Profile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		profile, err := LoadProfile(filepath.Join(p.dir, e.Name()))
		if err != nil {
			slog.Warn("Skipping unreadable profile", "file", e.Name(), "error", err)
			continue
		}
		profiles = append(profiles, profile)
	}

	return SendSuccess(c, profiles, "")
}

// getProfile handles GET /api/profiles/:name
func (p *ProfilesPlugin) getProfile(c *fiber.Ctx) error {
	profile, err := p.load(c)
	if profile == nil {
		return err
	}
	return SendSuccess(c, profile, "")
}

// saveProfile handles PUT /api/profiles/:name
func (p *ProfilesPlugin) saveProfile(c *fiber.Ctx) error {
	path, err := p.path(c.Params("name"))
	if err != nil {
		return SendError(c, 400, err)
	}

	var profile Profile
	if err := c.BodyParser(&profile); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	profile.Name = c.Params("name")

	if err := SaveProfile(path, &profile); err != nil {
		return SendDriverError(c, err)
	}

	slog.Info("Profile saved", "name", profile.Name)
	return SendSuccess(c, profile, "Profile saved successfully")
}

// deleteProfile handles DELETE /api/profiles/:name
func (p *ProfilesPlugin) deleteProfile(c *fiber.Ctx) error {
	path, err := p.path(c.Params("name"))
	if err != nil {
		return SendError(c, 400, err)
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return SendErrorMessage(c, 404, "Profile not found")
		}
		return SendError(c, 500, err)
	}

	slog.Info("Profile deleted", "name", c.Params("name"))
	return SendSuccess(c, nil, "Profile deleted successfully")
}

// applyProfile handles POST /api/profiles/:name/apply
func (p *ProfilesPlugin) applyProfile(c *fiber.Ctx) error {
	profile, err := p.load(c)
	if profile == nil {
		return err
	}

	if err := p.station.Do(profile.Apply); err != nil {
		return SendDriverError(c, err)
	}

	slog.Info("Profile applied", "name", profile.Name, "modulation", profile.Modulation, "frequency", profile.Frequency)
	return SendSuccess(c, profile, "Profile applied successfully")
}

// Register the plugin
func init() {
	Register("profiles", func(config interface{}) (Plugin, error) {
		var (
			dir     string
			station *Station
		)

		if configMap, ok := config.(map[string]interface{}); ok {
			if d, ok := configMap["dir"].(string); ok {
				dir = d
			}
			station, _ = configMap["station"].(*Station)
		}

		return NewProfilesPlugin(dir, station)
	})
}
