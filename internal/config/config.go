// Package config loads the startup record shared by every command.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/kythours/modelvol/internal/data"
	"github.com/kythours/modelvol/internal/downloader"
)

// EnvPrefix namespaces environment overrides: volume.root is MODELVOL_VOLUME_ROOT.
const EnvPrefix = "MODELVOL"

// TokenEnv is the platform secret that carries the hub credential.
const TokenEnv = "HF_TOKEN"

// Backend selects the fetch transport.
type Backend string

const (
	BackendHTTP  Backend = downloader.BackendHTTP
	BackendAria2 Backend = downloader.BackendAria2
	// BackendNone never touches the network.
	BackendNone Backend = downloader.BackendNone
)

// ParseBackend maps s to a Backend. Unknown values fall back to http; the
// boolean reports whether s was recognised.
func ParseBackend(s string) (Backend, bool) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case BackendHTTP, "":
		return BackendHTTP, true
	case BackendAria2:
		return BackendAria2, true
	case BackendNone:
		return BackendNone, true
	default:
		return BackendHTTP, false
	}
}

var ErrInvalidConfig = errors.New("invalid config")

type Volume struct {
	Root                string `mapstructure:"root"`
	SizeFloorBytes      int64  `mapstructure:"size_floor_bytes"`
	ExistenceFloorBytes int64  `mapstructure:"existence_floor_bytes"`
	// KnownMinimums holds "filename=MB" entries. A list rather than a map
	// because viper folds key case and splits keys on dots.
	KnownMinimums []string `mapstructure:"known_minimums"`
	Dirs          []string `mapstructure:"dirs"`
}

type Fetch struct {
	Backend     string `mapstructure:"backend"`
	TrustedHost string `mapstructure:"trusted_host"`
	UserAgent   string `mapstructure:"user_agent"`
	// Token is the hub credential. Never logged.
	Token string `mapstructure:"token"`
}

type Aria2 struct {
	RPCURL    string `mapstructure:"rpc_url"`
	Secret    string `mapstructure:"secret"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
	PollMS    int    `mapstructure:"poll_ms"`
}

type Manifest struct {
	File string `mapstructure:"file"`
}

type App struct {
	Dir       string `mapstructure:"dir"`
	Command   string `mapstructure:"command"`
	Port      int    `mapstructure:"port"`
	OutputDir string `mapstructure:"output_dir"`
}

type Ops struct {
	Listen string `mapstructure:"listen"`
	Token  string `mapstructure:"token"`
}

type Log struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type Postgres struct {
	DSN string `mapstructure:"dsn"`
}

// Config is the explicit startup record.
type Config struct {
	BuildID  string   `mapstructure:"build_id"`
	Volume   Volume   `mapstructure:"volume"`
	Fetch    Fetch    `mapstructure:"fetch"`
	Aria2    Aria2    `mapstructure:"aria2"`
	Manifest Manifest `mapstructure:"manifest"`
	App      App      `mapstructure:"app"`
	Ops      Ops      `mapstructure:"ops"`
	Log      Log      `mapstructure:"log"`
	Postgres Postgres `mapstructure:"postgres"`
}

// DefaultKnownMinimumsMB lists the files large enough that a size below these
// values can only mean a truncated download.
func DefaultKnownMinimumsMB() map[string]int64 {
	return map[string]int64{
		"qwen_3_4b.safetensors":                              6000,
		"Qwen_3_4b-Q8_0.gguf":                                3000,
		"Qwen_3_4b-imatrix-IQ4_XS.gguf":                      1500,
		"z_image_turbo_bf16.safetensors":                     5000,
		"z-image-turbo_fp8_scaled_e4m3fn_KJ.safetensors":     3000,
		"Z-Image-Turbo-Fun-Controlnet-Union-2.1.safetensors": 500,
	}
}

// DefaultDirs are the volume subdirectories ensured before scrubbing.
func DefaultDirs() []string {
	return []string{
		"loras",
		"loras/FERPHOTO",
		"checkpoints",
		"vae",
		"diffusion_models",
		"text_encoders",
		"controlnet",
		"model_patches",
	}
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	const appDir = "/root/ComfyUI"
	return Config{
		Volume: Volume{
			Root:                filepath.Join(appDir, "models"),
			SizeFloorBytes:      data.MiB,
			ExistenceFloorBytes: data.MiB,
			KnownMinimums:       formatMinimums(DefaultKnownMinimumsMB()),
			Dirs:                DefaultDirs(),
		},
		Fetch: Fetch{
			Backend:     string(BackendHTTP),
			TrustedHost: "huggingface.co",
			UserAgent:   "modelvol",
		},
		Aria2: Aria2{
			RPCURL:    "http://127.0.0.1:6800/jsonrpc",
			TimeoutMS: 3000,
			PollMS:    1000,
		},
		App: App{
			Dir:       appDir,
			Command:   "python main.py --listen 0.0.0.0 --port $PORT --preview-method auto",
			Port:      8188,
			OutputDir: filepath.Join(appDir, "output"),
		},
		Ops: Ops{Listen: ":9090"},
		Log: Log{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("build_id", d.BuildID)
	v.SetDefault("volume.root", d.Volume.Root)
	v.SetDefault("volume.size_floor_bytes", d.Volume.SizeFloorBytes)
	v.SetDefault("volume.existence_floor_bytes", d.Volume.ExistenceFloorBytes)
	v.SetDefault("volume.known_minimums", d.Volume.KnownMinimums)
	v.SetDefault("volume.dirs", d.Volume.Dirs)
	v.SetDefault("fetch.backend", d.Fetch.Backend)
	v.SetDefault("fetch.trusted_host", d.Fetch.TrustedHost)
	v.SetDefault("fetch.user_agent", d.Fetch.UserAgent)
	v.SetDefault("fetch.token", "")
	v.SetDefault("aria2.rpc_url", d.Aria2.RPCURL)
	v.SetDefault("aria2.secret", "")
	v.SetDefault("aria2.timeout_ms", d.Aria2.TimeoutMS)
	v.SetDefault("aria2.poll_ms", d.Aria2.PollMS)
	v.SetDefault("manifest.file", "")
	v.SetDefault("app.dir", d.App.Dir)
	v.SetDefault("app.command", d.App.Command)
	v.SetDefault("app.port", d.App.Port)
	v.SetDefault("app.output_dir", d.App.OutputDir)
	v.SetDefault("ops.listen", d.Ops.Listen)
	v.SetDefault("ops.token", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("postgres.dsn", "")
}

// Load reads defaults, then the optional file at path, then the environment.
// The hub credential also binds to HF_TOKEN.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("fetch.token", EnvPrefix+"_FETCH_TOKEN", TokenEnv); err != nil {
		return nil, err
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize replaces out-of-range numeric values with defaults.
func (c *Config) normalize() {
	d := Default()
	if c.Volume.SizeFloorBytes <= 0 {
		c.Volume.SizeFloorBytes = d.Volume.SizeFloorBytes
	}
	if c.Volume.ExistenceFloorBytes <= 0 {
		c.Volume.ExistenceFloorBytes = d.Volume.ExistenceFloorBytes
	}
	if c.Aria2.TimeoutMS <= 0 {
		c.Aria2.TimeoutMS = d.Aria2.TimeoutMS
	}
	if c.Aria2.PollMS <= 0 {
		c.Aria2.PollMS = d.Aria2.PollMS
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		c.App.Port = d.App.Port
	}
	if c.App.OutputDir == "" {
		c.App.OutputDir = filepath.Join(c.App.Dir, "output")
	}
	c.Fetch.Token = strings.TrimSpace(c.Fetch.Token)
	c.Fetch.TrustedHost = strings.ToLower(strings.TrimSpace(c.Fetch.TrustedHost))
	c.Log.Format = strings.ToLower(c.Log.Format)
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Volume.Root) == "" || !filepath.IsAbs(c.Volume.Root) {
		return fmt.Errorf("%w: volume.root must be an absolute path", ErrInvalidConfig)
	}
	if _, ok := ParseBackend(c.Fetch.Backend); !ok {
		return fmt.Errorf("%w: unknown fetch.backend %q", ErrInvalidConfig, c.Fetch.Backend)
	}
	switch c.Log.Format {
	case "text", "json", "pretty":
	default:
		return fmt.Errorf("%w: unknown log.format %q", ErrInvalidConfig, c.Log.Format)
	}
	if _, err := parseMinimums(c.Volume.KnownMinimums); err != nil {
		return fmt.Errorf("%w: volume.known_minimums: %v", ErrInvalidConfig, err)
	}
	return nil
}

// BackendKind returns the parsed fetch backend.
func (c *Config) BackendKind() Backend {
	b, _ := ParseBackend(c.Fetch.Backend)
	return b
}

// KnownMinimums converts the configured minimums to bytes. Entries are
// checked by Validate; a bad one here is skipped.
func (c *Config) KnownMinimums() data.KnownMinimums {
	mb, _ := parseMinimums(c.Volume.KnownMinimums)
	return data.FromMB(mb)
}

func formatMinimums(mb map[string]int64) []string {
	out := make([]string, 0, len(mb))
	for _, name := range slices.Sorted(maps.Keys(mb)) {
		out = append(out, name+"="+strconv.FormatInt(mb[name], 10))
	}
	return out
}

func parseMinimums(entries []string) (map[string]int64, error) {
	out := make(map[string]int64, len(entries))
	var errs []error
	for _, e := range entries {
		name, val, ok := strings.Cut(strings.TrimSpace(e), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			errs = append(errs, fmt.Errorf("entry %q: want filename=MB", e))
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("entry %q: bad size", e))
			continue
		}
		out[name] = n
	}
	return out, errors.Join(errs...)
}

// VolumeDirs returns the absolute directories to ensure: each configured
// subdirectory of the volume root, then the app output directory.
func (c *Config) VolumeDirs() []string {
	out := make([]string, 0, len(c.Volume.Dirs)+1)
	for _, d := range c.Volume.Dirs {
		if filepath.IsAbs(d) {
			out = append(out, filepath.Clean(d))
			continue
		}
		out = append(out, filepath.Join(c.Volume.Root, d))
	}
	if c.App.OutputDir != "" {
		out = append(out, c.App.OutputDir)
	}
	return out
}
