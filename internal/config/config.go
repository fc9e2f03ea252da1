package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type PomodoroConfig struct {
	WorkMinutes      int `mapstructure:"work_minutes"`
	BreakMinutes     int `mapstructure:"break_minutes"`
	SessionsPerCycle int `mapstructure:"sessions_per_cycle"` // work sessions before COMPLETED_ALL_SESSIONS
}

type NotificationsConfig struct {
	Backend      string `mapstructure:"backend"` // "dbus", "log" or "none"
	SoundEnabled bool   `mapstructure:"sound_enabled"`
}

type WakeConfig struct {
	NATSURL string        `mapstructure:"nats_url"` // empty disables NATS
	Subject string        `mapstructure:"subject"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"` // empty disables the endpoint
}

type ForegroundConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	WindowClass  string        `mapstructure:"window_class"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type Config struct {
	DatabasePath  string              `mapstructure:"database_path"`
	SocketPath    string              `mapstructure:"socket_path"`
	TickInterval  time.Duration       `mapstructure:"tick_interval"`
	Pomodoro      PomodoroConfig      `mapstructure:"pomodoro"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Wake          WakeConfig          `mapstructure:"wake"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Foreground    ForegroundConfig    `mapstructure:"foreground"`

	v *viper.Viper
}

func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/pomotimer")
		v.AddConfigPath("/etc/pomotimer/")
	}

	v.SetEnvPrefix("POMOTIMER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("Config file not found, using defaults.")
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	log.Printf("Configuration loaded: %+v", *cfg)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_path", "pomotimer.db")
	v.SetDefault("socket_path", "/tmp/pomotimer.sock")
	v.SetDefault("tick_interval", "1s")
	v.SetDefault("pomodoro.work_minutes", 25)
	v.SetDefault("pomodoro.break_minutes", 5)
	v.SetDefault("pomodoro.sessions_per_cycle", 4)
	v.SetDefault("notifications.backend", "dbus")
	v.SetDefault("notifications.sound_enabled", true)
	v.SetDefault("wake.nats_url", "")
	v.SetDefault("wake.subject", "pomotimer.session_end")
	v.SetDefault("wake.timeout", "2s")
	v.SetDefault("metrics.listen", "")
	v.SetDefault("foreground.enabled", false)
	v.SetDefault("foreground.window_class", "pomotimer-ui")
	v.SetDefault("foreground.poll_interval", "2s")
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.v = v
	cfg.sanitize()
	return &cfg, nil
}

func (c *Config) sanitize() {
	if c.TickInterval < 100*time.Millisecond {
		log.Printf("Warning: tick_interval %s too low, setting to 1s", c.TickInterval)
		c.TickInterval = time.Second
	}
	if c.Pomodoro.WorkMinutes < 1 {
		log.Println("Warning: pomodoro.work_minutes too low, setting to 25")
		c.Pomodoro.WorkMinutes = 25
	}
	if c.Pomodoro.BreakMinutes < 1 {
		log.Println("Warning: pomodoro.break_minutes too low, setting to 5")
		c.Pomodoro.BreakMinutes = 5
	}
	if c.Pomodoro.SessionsPerCycle < 0 {
		log.Println("Warning: pomodoro.sessions_per_cycle negative, disabling cycles")
		c.Pomodoro.SessionsPerCycle = 0
	}
	switch c.Notifications.Backend {
	case "dbus", "log", "none":
	default:
		log.Printf("Warning: invalid notifications.backend '%s', defaulting to 'dbus'", c.Notifications.Backend)
		c.Notifications.Backend = "dbus"
	}
	if c.Wake.Subject == "" {
		c.Wake.Subject = "pomotimer.session_end"
	}
	if c.Wake.Timeout <= 0 {
		c.Wake.Timeout = 2 * time.Second
	}
	if c.Foreground.PollInterval < 100*time.Millisecond {
		log.Printf("Warning: foreground.poll_interval %s too low, setting to 2s", c.Foreground.PollInterval)
		c.Foreground.PollInterval = 2 * time.Second
	}
}

// Watch calls onChange with the re-decoded config whenever the config file
// changes. It does nothing when no file was loaded.
func (c *Config) Watch(onChange func(*Config)) bool {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return false
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		log.Printf("Config file changed: %s", e.Name)
		next, err := decode(c.v)
		if err != nil {
			log.Printf("Warning: ignoring config change: %v", err)
			return
		}
		onChange(next)
	})
	c.v.WatchConfig()
	return true
}

func (p PomodoroConfig) WorkSeconds() int  { return p.WorkMinutes * 60 }
func (p PomodoroConfig) BreakSeconds() int { return p.BreakMinutes * 60 }
