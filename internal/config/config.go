// Package config loads proctor settings. Values come from the environment
// (a .env file is read when present) and are then overlaid by the YAML file
// named in PROCTOR_CONFIG.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-proctor/pkg/camera"
	"github.com/teslashibe/go-proctor/pkg/monitor"
	"github.com/teslashibe/go-proctor/pkg/monitor/detection"
	"github.com/teslashibe/go-proctor/pkg/report"
)

// ConfigEnv names the optional YAML override file
const ConfigEnv = "PROCTOR_CONFIG"

// Monitor presets
const (
	PresetDefault = "default"
	PresetStrict  = "strict"
	PresetLenient = "lenient"
)

// Settings is the full process configuration
type Settings struct {
	Port      string `yaml:"port"`
	StaticDir string `yaml:"static_dir"`

	Camera  CameraSettings  `yaml:"camera"`
	Models  ModelSettings   `yaml:"models"`
	Monitor MonitorSettings `yaml:"monitor"`
	Storage StorageSettings `yaml:"storage"`
	Log     LogSettings     `yaml:"log"`
	Google  GoogleSettings  `yaml:"google"`
}

// CameraSettings selects and sizes the local webcam
type CameraSettings struct {
	Device  int `yaml:"device"`
	Width   int `yaml:"width"`
	Height  int `yaml:"height"`
	FPS     int `yaml:"fps"`
	Quality int `yaml:"quality"`
}

// ModelSettings are the ONNX model paths
type ModelSettings struct {
	Face   string `yaml:"face"`
	Object string `yaml:"object"`
}

// MonitorSettings picks the monitor tuning
type MonitorSettings struct {
	Preset             string        `yaml:"preset"`              // default, strict, lenient
	ViolationThreshold time.Duration `yaml:"violation_threshold"` // Overrides the preset when set
	ReportLimit        int           `yaml:"report_limit"`
}

// StorageSettings locate the database and evidence files
type StorageSettings struct {
	DBPath            string        `yaml:"db_path"`
	EvidenceDir       string        `yaml:"evidence_dir"`
	EvidenceRetention time.Duration `yaml:"evidence_retention"` // Zero keeps evidence forever
}

// LogSettings configure internal/log
type LogSettings struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// GoogleSettings are the OAuth client for Docs export
type GoogleSettings struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	TokenPath    string `yaml:"token_path"`
}

// Default returns settings for a local install
func Default() Settings {
	cam := camera.DefaultConfig()
	models := detection.DefaultModels()
	return Settings{
		Port: "8080",
		Camera: CameraSettings{
			Device:  cam.Device,
			Width:   cam.Width,
			Height:  cam.Height,
			FPS:     cam.Framerate,
			Quality: cam.Quality,
		},
		Models: ModelSettings{Face: models.Face, Object: models.Object},
		Monitor: MonitorSettings{
			Preset:      PresetDefault,
			ReportLimit: report.DefaultLimit,
		},
		Storage: StorageSettings{
			DBPath:      "data/proctor.db",
			EvidenceDir: "data/evidence",
		},
		Log: LogSettings{Level: "info"},
		Google: GoogleSettings{
			RedirectURL: "http://localhost:8080/api/google/callback",
			TokenPath:   "data/google_token.json",
		},
	}
}

// Load reads .env (if any), the environment and the PROCTOR_CONFIG file
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("load .env: %w", err)
	}
	return LoadFrom(os.LookupEnv, os.Getenv(ConfigEnv))
}

// LookupFunc reads one environment variable
type LookupFunc func(key string) (string, bool)

// LoadFrom builds settings from defaults, lookup and an optional YAML file
func LoadFrom(lookup LookupFunc, path string) (Settings, error) {
	s := Default()
	if err := s.applyEnv(lookup); err != nil {
		return Settings{}, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if problems := s.Validate(); len(problems) > 0 {
		return Settings{}, fmt.Errorf("invalid configuration: %v", problems)
	}
	return s, nil
}

func (s *Settings) applyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("PROCTOR_PORT", &s.Port)
	str("PROCTOR_STATIC_DIR", &s.StaticDir)

	num("PROCTOR_CAMERA_DEVICE", &s.Camera.Device)
	num("PROCTOR_CAMERA_WIDTH", &s.Camera.Width)
	num("PROCTOR_CAMERA_HEIGHT", &s.Camera.Height)
	num("PROCTOR_CAMERA_FPS", &s.Camera.FPS)
	num("PROCTOR_CAMERA_QUALITY", &s.Camera.Quality)

	str("PROCTOR_FACE_MODEL", &s.Models.Face)
	str("PROCTOR_OBJECT_MODEL", &s.Models.Object)

	str("PROCTOR_MONITOR_PRESET", &s.Monitor.Preset)
	dur("PROCTOR_VIOLATION_THRESHOLD", &s.Monitor.ViolationThreshold)
	num("PROCTOR_REPORT_LIMIT", &s.Monitor.ReportLimit)

	str("PROCTOR_DB", &s.Storage.DBPath)
	str("PROCTOR_EVIDENCE_DIR", &s.Storage.EvidenceDir)
	dur("PROCTOR_EVIDENCE_RETENTION", &s.Storage.EvidenceRetention)

	str("PROCTOR_LOG_LEVEL", &s.Log.Level)
	str("PROCTOR_LOG_FILE", &s.Log.File)

	str("GOOGLE_CLIENT_ID", &s.Google.ClientID)
	str("GOOGLE_CLIENT_SECRET", &s.Google.ClientSecret)
	str("GOOGLE_REDIRECT_URL", &s.Google.RedirectURL)
	str("PROCTOR_GOOGLE_TOKEN", &s.Google.TokenPath)

	return errors.Join(errs...)
}

// Validate returns a list of problems, or nil if valid
func (s Settings) Validate() []string {
	var problems []string
	if s.Port == "" {
		problems = append(problems, "port is required")
	}
	if s.Storage.DBPath == "" {
		problems = append(problems, "database path is required")
	}
	if s.Storage.EvidenceDir == "" {
		problems = append(problems, "evidence directory is required")
	}
	if s.Storage.EvidenceRetention < 0 {
		problems = append(problems, "evidence retention must not be negative")
	}
	switch s.Monitor.Preset {
	case "", PresetDefault, PresetStrict, PresetLenient:
	default:
		problems = append(problems, fmt.Sprintf("unknown monitor preset %q", s.Monitor.Preset))
	}
	cam := s.CameraConfig()
	problems = append(problems, cam.Validate()...)
	problems = append(problems, s.MonitorConfig().Validate()...)
	return problems
}

// CameraConfig applies the camera settings to the camera defaults
func (s Settings) CameraConfig() camera.Config {
	cfg := camera.DefaultConfig()
	cfg.Device = s.Camera.Device
	cfg.Width = s.Camera.Width
	cfg.Height = s.Camera.Height
	cfg.Framerate = s.Camera.FPS
	cfg.Quality = s.Camera.Quality
	return cfg
}

// MonitorConfig returns the preset with overrides applied
func (s Settings) MonitorConfig() monitor.Config {
	var cfg monitor.Config
	switch s.Monitor.Preset {
	case PresetStrict:
		cfg = monitor.StrictConfig()
	case PresetLenient:
		cfg = monitor.LenientConfig()
	default:
		cfg = monitor.DefaultConfig()
	}
	if s.Monitor.ViolationThreshold > 0 {
		cfg.ViolationThreshold = s.Monitor.ViolationThreshold
	}
	if s.Monitor.ReportLimit > 0 {
		cfg.ReportLimit = s.Monitor.ReportLimit
	}
	return cfg
}

// DetectionModels returns the model paths for detection.Load
func (s Settings) DetectionModels() detection.Models {
	return detection.Models{Face: s.Models.Face, Object: s.Models.Object}
}

// GoogleConfig returns the Docs export client config. ok is false when no
// OAuth client is configured.
func (s Settings) GoogleConfig() (cfg report.GoogleConfig, ok bool) {
	cfg = report.GoogleConfig{
		ClientID:     s.Google.ClientID,
		ClientSecret: s.Google.ClientSecret,
		RedirectURL:  s.Google.RedirectURL,
		TokenPath:    s.Google.TokenPath,
	}
	return cfg, cfg.ClientID != "" && cfg.ClientSecret != ""
}
