package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dragondrop-dev/dragondrop/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "dragondrop.json"

	// EnvPrefix prefixes environment overrides, e.g. DRAGONDROP_SERVER_PORT.
	EnvPrefix = "DRAGONDROP"

	// DefaultPort is the default server port.
	DefaultPort = 8780

	// DefaultHost is the default server host.
	DefaultHost = "localhost"

	// DefaultUploadDir is where the disk store keeps temp files.
	DefaultUploadDir = ".dragondrop/uploads"

	// DefaultMaxFileSize is the default upload size limit (10MB).
	DefaultMaxFileSize = 10 << 20
)

// Config represents the complete dragondrop.json configuration.
type Config struct {
	// Server contains the upload server settings.
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Storage selects and configures the upload store.
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Upload contains limits enforced by the upload receivers.
	Upload UploadConfig `json:"upload" mapstructure:"upload"`

	// Widget configures the headless widget used by `dragondrop push`.
	Widget WidgetConfig `json:"widget" mapstructure:"widget"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains upload server settings.
type ServerConfig struct {
	// Host is the host to bind to.
	Host string `json:"host,omitempty" mapstructure:"host"`

	// Port is the port to listen on.
	Port int `json:"port,omitempty" mapstructure:"port"`

	// UploadPath receives widget uploads (JSON body with a data URL).
	UploadPath string `json:"uploadPath,omitempty" mapstructure:"uploadPath"`

	// ManualPath receives manual fallback form submissions.
	ManualPath string `json:"manualPath,omitempty" mapstructure:"manualPath"`

	// RelayPath serves the notification relay WebSocket.
	RelayPath string `json:"relayPath,omitempty" mapstructure:"relayPath"`

	// MetricsPath serves Prometheus metrics. Empty disables it.
	MetricsPath string `json:"metricsPath,omitempty" mapstructure:"metricsPath"`

	// CleanupInterval is how often expired temp files are removed (e.g. "5m").
	CleanupInterval string `json:"cleanupInterval,omitempty" mapstructure:"cleanupInterval"`

	// AllowedOrigins lists origins allowed to open the relay WebSocket.
	// Empty means same-origin only.
	AllowedOrigins []string `json:"allowedOrigins,omitempty" mapstructure:"allowedOrigins"`
}

// StorageConfig contains upload store settings.
type StorageConfig struct {
	// Driver is "disk" or "s3".
	Driver string `json:"driver,omitempty" mapstructure:"driver"`

	// Dir is the disk store directory.
	Dir string `json:"dir,omitempty" mapstructure:"dir"`

	// Bucket is the S3 bucket.
	Bucket string `json:"bucket,omitempty" mapstructure:"bucket"`

	// Prefix is the S3 key prefix.
	Prefix string `json:"prefix,omitempty" mapstructure:"prefix"`

	// Region is the AWS region. Empty uses the SDK default chain.
	Region string `json:"region,omitempty" mapstructure:"region"`

	// Endpoint is a custom S3 endpoint for S3-compatible providers.
	Endpoint string `json:"endpoint,omitempty" mapstructure:"endpoint"`

	// UsePathStyle addresses buckets by path instead of host.
	UsePathStyle bool `json:"usePathStyle,omitempty" mapstructure:"usePathStyle"`

	// URLExpiry is how long presigned S3 URLs stay valid (e.g. "24h").
	URLExpiry string `json:"urlExpiry,omitempty" mapstructure:"urlExpiry"`
}

// UploadConfig contains receiver limits.
type UploadConfig struct {
	// MaxFileSize is the maximum decoded file size in bytes.
	MaxFileSize int64 `json:"maxFileSize,omitempty" mapstructure:"maxFileSize"`

	// AllowedTypes restricts accepted MIME types. Empty allows all.
	AllowedTypes []string `json:"allowedTypes,omitempty" mapstructure:"allowedTypes"`

	// TempExpiry is how long unclaimed temp files live (e.g. "1h").
	TempExpiry string `json:"tempExpiry,omitempty" mapstructure:"tempExpiry"`
}

// WidgetConfig mirrors the widget's host attributes.
type WidgetConfig struct {
	ID        string   `json:"id,omitempty" mapstructure:"id"`
	Accepts   []string `json:"accepts,omitempty" mapstructure:"accepts"`
	Multiple  bool     `json:"multiple,omitempty" mapstructure:"multiple"`
	URL       string   `json:"url,omitempty" mapstructure:"url"`
	ManualURL string   `json:"manualUrl,omitempty" mapstructure:"manualUrl"`
	Method    string   `json:"method,omitempty" mapstructure:"method"`
	OnClass   string   `json:"onClass,omitempty" mapstructure:"onClass"`
	BusyClass string   `json:"busyClass,omitempty" mapstructure:"busyClass"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			UploadPath:      "/upload",
			ManualPath:      "/upload/manual",
			RelayPath:       "/ws",
			MetricsPath:     "/metrics",
			CleanupInterval: "5m",
		},
		Storage: StorageConfig{
			Driver:    "disk",
			Dir:       DefaultUploadDir,
			Prefix:    "uploads/",
			URLExpiry: "24h",
		},
		Upload: UploadConfig{
			MaxFileSize: DefaultMaxFileSize,
			TempExpiry:  "1h",
		},
		Widget: WidgetConfig{
			Method:    "POST",
			OnClass:   "dragon",
			BusyClass: "busy",
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for dragondrop.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
// Environment variables prefixed with DRAGONDROP_ override file values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("D010").
				WithDetail("No " + ConfigFileName + " found in " + filepath.Dir(path)).
				WithSuggestion("Run 'dragondrop init' to create one")
		}
		return nil, errors.New("D011").Wrap(err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		de := errors.New("D011").
			WithSuggestion("Check that " + ConfigFileName + " is valid JSON").
			Wrap(err)
		var syntaxErr *json.SyntaxError
		if stderrors.As(err, &syntaxErr) {
			de.WithOffset(path, syntaxErr.Offset)
		}
		return nil, de
	}

	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

// LoadOrDefault is Load, falling back to defaults (plus environment
// overrides) when no config file exists in dir.
func LoadOrDefault(dir string) (*Config, error) {
	cfg, err := Load(dir)
	if err == nil {
		return cfg, nil
	}
	if !errors.HasCode(err, "D010") {
		return nil, err
	}
	cfg, err = decode(nil)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// decode layers defaults, file data, and environment through viper.
func decode(data []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v, New())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if data != nil {
		v.SetConfigType("json")
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, errors.New("D011").Wrap(err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.New("D011").Wrap(err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.uploadPath", d.Server.UploadPath)
	v.SetDefault("server.manualPath", d.Server.ManualPath)
	v.SetDefault("server.relayPath", d.Server.RelayPath)
	v.SetDefault("server.metricsPath", d.Server.MetricsPath)
	v.SetDefault("server.cleanupInterval", d.Server.CleanupInterval)
	v.SetDefault("server.allowedOrigins", []string{})

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.dir", d.Storage.Dir)
	v.SetDefault("storage.bucket", d.Storage.Bucket)
	v.SetDefault("storage.prefix", d.Storage.Prefix)
	v.SetDefault("storage.region", d.Storage.Region)
	v.SetDefault("storage.endpoint", d.Storage.Endpoint)
	v.SetDefault("storage.usePathStyle", d.Storage.UsePathStyle)
	v.SetDefault("storage.urlExpiry", d.Storage.URLExpiry)

	v.SetDefault("upload.maxFileSize", d.Upload.MaxFileSize)
	v.SetDefault("upload.allowedTypes", []string{})
	v.SetDefault("upload.tempExpiry", d.Upload.TempExpiry)

	v.SetDefault("widget.id", d.Widget.ID)
	v.SetDefault("widget.accepts", []string{})
	v.SetDefault("widget.multiple", d.Widget.Multiple)
	v.SetDefault("widget.url", d.Widget.URL)
	v.SetDefault("widget.manualUrl", d.Widget.ManualURL)
	v.SetDefault("widget.method", d.Widget.Method)
	v.SetDefault("widget.onClass", d.Widget.OnClass)
	v.SetDefault("widget.busyClass", d.Widget.BusyClass)
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("D016").Wrap(err)
	}

	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("D016").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for fields left empty.
func (c *Config) applyDefaults() {
	d := New()

	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.UploadPath == "" {
		c.Server.UploadPath = d.Server.UploadPath
	}
	if c.Server.ManualPath == "" {
		c.Server.ManualPath = d.Server.ManualPath
	}
	if c.Server.RelayPath == "" {
		c.Server.RelayPath = d.Server.RelayPath
	}
	if c.Server.CleanupInterval == "" {
		c.Server.CleanupInterval = d.Server.CleanupInterval
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = d.Storage.Driver
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = d.Storage.Dir
	}
	if c.Storage.URLExpiry == "" {
		c.Storage.URLExpiry = d.Storage.URLExpiry
	}

	if c.Upload.MaxFileSize <= 0 {
		c.Upload.MaxFileSize = d.Upload.MaxFileSize
	}
	if c.Upload.TempExpiry == "" {
		c.Upload.TempExpiry = d.Upload.TempExpiry
	}

	if c.Widget.Method == "" {
		c.Widget.Method = d.Widget.Method
	}
	c.Widget.Method = strings.ToUpper(c.Widget.Method)
	if c.Widget.OnClass == "" {
		c.Widget.OnClass = d.Widget.OnClass
	}
	if c.Widget.BusyClass == "" {
		c.Widget.BusyClass = d.Widget.BusyClass
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.New("D012").
			WithDetail("Port must be between 0 and 65535, got " + strconv.Itoa(c.Server.Port))
	}

	switch c.Storage.Driver {
	case "disk":
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("D014")
		}
	default:
		return errors.New("D013").
			WithSuggestion(`Use "disk" or "s3", got "` + c.Storage.Driver + `"`)
	}

	for name, value := range map[string]string{
		"server.cleanupInterval": c.Server.CleanupInterval,
		"storage.urlExpiry":      c.Storage.URLExpiry,
		"upload.tempExpiry":      c.Upload.TempExpiry,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return errors.New("D015").
				WithSuggestion("Fix " + name).
				Wrap(err)
		}
	}
	return nil
}

// Address returns the listen address for the server.
func (c *Config) Address() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// URL returns the base URL of the server.
func (c *Config) URL() string {
	return "http://" + c.Address()
}

// StoragePath returns the disk store directory, resolved against the
// config file's directory when relative.
func (c *Config) StoragePath() string {
	if filepath.IsAbs(c.Storage.Dir) {
		return c.Storage.Dir
	}
	return filepath.Join(c.Dir(), c.Storage.Dir)
}

// CleanupInterval returns the parsed cleanup interval.
func (c *Config) CleanupInterval() time.Duration {
	return parseDuration(c.Server.CleanupInterval, 5*time.Minute)
}

// TempExpiry returns the parsed temp file lifetime.
func (c *Config) TempExpiry() time.Duration {
	return parseDuration(c.Upload.TempExpiry, time.Hour)
}

// URLExpiry returns the parsed presigned URL lifetime.
func (c *Config) URLExpiry() time.Duration {
	return parseDuration(c.Storage.URLExpiry, 24*time.Hour)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}

// FindProjectRoot walks up directories to find the directory containing
// dragondrop.json.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("D010").
				WithDetail("No " + ConfigFileName + " found in " + startDir + " or any parent directory").
				WithSuggestion("Run 'dragondrop init' to create one")
		}
		dir = parent
	}
}
