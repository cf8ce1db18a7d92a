package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	Server     ServerConfig  `mapstructure:"server"`
	Device     DeviceConfig  `mapstructure:"device"`
	AdminToken string        `mapstructure:"admin_token"`
	Storage    StorageConfig `mapstructure:"storage"`
	FS         FSConfig      `mapstructure:"fs"`
	Audio      AudioConfig   `mapstructure:"audio"`
	Input      InputConfig   `mapstructure:"input"`
	Loop       LoopConfig    `mapstructure:"loop"`
	Notify     NotifyConfig  `mapstructure:"notify"`
	MQTT       MQTTConfig    `mapstructure:"mqtt"`
	Log        LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type DeviceConfig struct {
	ID       string `mapstructure:"id"`
	Timezone string `mapstructure:"timezone"`
}

type StorageConfig struct {
	Backend  string      `mapstructure:"backend"`
	FilePath string      `mapstructure:"file_path"`
	Redis    RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// FSConfig roots the device filesystem. An empty root keeps it in memory.
// Capacity is the size reported as total by the files space endpoint.
type FSConfig struct {
	Root     string `mapstructure:"root"`
	Capacity int64  `mapstructure:"capacity"`
}

type AudioConfig struct {
	PWMBits       uint          `mapstructure:"pwm_bits"`
	RingCapacity  int           `mapstructure:"ring_capacity"`
	DefaultPath   string        `mapstructure:"default_path"`
	StreamTimeout time.Duration `mapstructure:"stream_timeout"`
}

type InputConfig struct {
	Debounce  time.Duration `mapstructure:"debounce"`
	LongPress time.Duration `mapstructure:"long_press"`
}

type LoopConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type NotifyConfig struct {
	Capacity int           `mapstructure:"capacity"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("device.id", "")
	v.SetDefault("device.timezone", "Europe/Stockholm")
	v.SetDefault("admin_token", "")
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.file_path", "data/alarms.json")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("fs.root", "data/fs")
	v.SetDefault("fs.capacity", 1441792)
	v.SetDefault("audio.pwm_bits", 8)
	v.SetDefault("audio.ring_capacity", 16384)
	v.SetDefault("audio.default_path", "/audio/default.wav")
	v.SetDefault("audio.stream_timeout", 3*time.Second)
	v.SetDefault("input.debounce", 50*time.Millisecond)
	v.SetDefault("input.long_press", 1200*time.Millisecond)
	v.SetDefault("loop.interval", 10*time.Millisecond)
	v.SetDefault("notify.capacity", 12)
	v.SetDefault("notify.timeout", 5*time.Second)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "goodmornin")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads path if it exists, then applies GOODMORNIN_ environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GOODMORNIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Device.ID == "" {
		cfg.Device.ID = DefaultDeviceID()
	}
	return &cfg, nil
}

// DefaultDeviceID is stable per host.
func DefaultDeviceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "goodmornin"
	}
	id := uuid.NewSHA1(uuid.NameSpaceDNS, []byte(host)).String()
	return "gm-" + id[:8]
}
