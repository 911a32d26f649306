package camera

// Preset names for common configurations
const (
	PresetDefault    = "default"
	Preset720p       = "720p"
	PresetLowLatency = "low-latency"
	PresetLowCPU     = "low-cpu"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault:    DefaultConfig(),
		Preset720p:       HD720Config(),
		PresetLowLatency: LowLatencyConfig(),
		PresetLowCPU:     LowCPUConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		Preset720p,
		PresetLowLatency,
		PresetLowCPU,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// HD720Config returns 720p. Landmarks are steadier at the cost of
// slower detector cycles.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	return cfg
}

// LowLatencyConfig keeps a single driver buffer.
func LowLatencyConfig() Config {
	cfg := DefaultConfig()
	cfg.BufferSize = 1
	return cfg
}

// LowCPUConfig lowers resolution and framerate for weak machines.
func LowCPUConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 320
	cfg.Height = 240
	cfg.Framerate = 15
	cfg.Quality = 75
	return cfg
}
