package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	CaptureRTP    = "rtp"
	CaptureFile   = "file"
	CaptureDevice = "device"
	CaptureNone   = "none"
)

type ClientConfig struct {
	Server string `mapstructure:"server"`
	Name   string `mapstructure:"name"`

	STUN       []string `mapstructure:"stun"`
	TURN       []string `mapstructure:"turn"`
	TURNUser   string   `mapstructure:"turn_user"`
	TURNPass   string   `mapstructure:"turn_pass"`
	ForceRelay bool     `mapstructure:"force_relay"`

	OpenTimeout        time.Duration `mapstructure:"open_timeout"`
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`

	Video     bool   `mapstructure:"video"`
	Audio     bool   `mapstructure:"audio"`
	Capture   string `mapstructure:"capture"`
	VideoRTP  string `mapstructure:"video_rtp"`
	AudioRTP  string `mapstructure:"audio_rtp"`
	VideoFile string `mapstructure:"video_file"`
	AudioFile string `mapstructure:"audio_file"`
	FileLoop  bool   `mapstructure:"file_loop"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

func setClientDefaults(v *viper.Viper) {
	v.SetDefault("server", "http://localhost:8080")
	v.SetDefault("stun", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("open_timeout", "10s")
	v.SetDefault("negotiation_timeout", "30s")
	v.SetDefault("video", true)
	v.SetDefault("audio", true)
	v.SetDefault("capture", CaptureNone)
	v.SetDefault("file_loop", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", filepath.Join(os.TempDir(), "meshcall.log"))
}

// LoadClient merges, lowest first: defaults, meshcall.yaml, MESHCALL_*
// environment variables and the flags the user actually set.
func LoadClient(flags *pflag.FlagSet) (*ClientConfig, error) {
	v := viper.New()
	v.SetConfigName("meshcall")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "meshcall"))
	}
	v.SetEnvPrefix("MESHCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	setClientDefaults(v)

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if err := v.BindPFlag(key, f); err != nil {
				bindErr = errors.Join(bindErr, err)
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read client config: %w", err)
		}
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ClientConfig) Validate() error {
	switch c.Capture {
	case CaptureRTP, CaptureFile, CaptureDevice, CaptureNone:
	default:
		return fmt.Errorf("unknown capture %q (want rtp, file, device or none)", c.Capture)
	}
	if !c.Video && !c.Audio {
		return errors.New("at least one of video or audio must be enabled")
	}
	if c.OpenTimeout <= 0 || c.NegotiationTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if _, err := c.BaseURL(); err != nil {
		return err
	}
	return nil
}

// BaseURL is the server's http(s) root. A bare host:port means http.
func (c *ClientConfig) BaseURL() (*url.URL, error) {
	raw := strings.TrimRight(c.Server, "/")
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid server %q: %w", c.Server, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, fmt.Errorf("invalid server scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server %q: missing host", c.Server)
	}
	return u, nil
}

// SignalURL is the websocket endpoint on the server.
func (c *ClientConfig) SignalURL() (string, error) {
	u, err := c.BaseURL()
	if err != nil {
		return "", err
	}
	ws := *u
	switch u.Scheme {
	case "https", "wss":
		ws.Scheme = "wss"
	default:
		ws.Scheme = "ws"
	}
	ws.Path = strings.TrimRight(u.Path, "/") + "/api/ws/signal"
	return ws.String(), nil
}

// APIURL joins path onto the server's http root.
func (c *ClientConfig) APIURL(path string) (string, error) {
	u, err := c.BaseURL()
	if err != nil {
		return "", err
	}
	h := *u
	switch u.Scheme {
	case "wss":
		h.Scheme = "https"
	case "ws":
		h.Scheme = "http"
	}
	h.Path = strings.TrimRight(u.Path, "/") + path
	return h.String(), nil
}
