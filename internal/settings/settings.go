// Package settings reads the JSON settings file.
//
// Every key has a default, so a file only needs the keys that differ.  Any key can also be
// set from the environment with an RSUDP_ prefix, for example RSUDP_SETTINGS_PORT=8888
// or RSUDP_ALERT_THRESHOLD=4.
package settings

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Unknown is the station name used when the station is not configured.
const Unknown = "Z0000"

type Settings struct {
	Settings   General    `mapstructure:"settings"`
	PrintData  PrintData  `mapstructure:"printdata"`
	Write      Write      `mapstructure:"write"`
	Plot       Plot       `mapstructure:"plot"`
	Forward    Forward    `mapstructure:"forward"`
	Alert      Alert      `mapstructure:"alert"`
	Process    Process    `mapstructure:"process"`
	AlertSound AlertSound `mapstructure:"alertsound"`
	Custom     Custom     `mapstructure:"custom"`
	Tweets     Tweets     `mapstructure:"tweets"`
	Telegram   Telegram   `mapstructure:"telegram"`
	RSAM       RSAM       `mapstructure:"rsam"`
	EventDB    EventDB    `mapstructure:"eventdb"`
	Redis      Redis      `mapstructure:"redis"`
}

type General struct {
	Port      int    `mapstructure:"port"`
	Station   string `mapstructure:"station"`
	OutputDir string `mapstructure:"output_dir"`
	Debug     bool   `mapstructure:"debug"`
	// SOH is the listen address of the state of health service, none when empty.
	SOH string `mapstructure:"soh"`
}

type PrintData struct {
	Enabled bool `mapstructure:"enabled"`
}

type Write struct {
	Enabled  bool     `mapstructure:"enabled"`
	Channels []string `mapstructure:"channels"`
}

// Plot is accepted so existing settings files load.  There is no plotting.
type Plot struct {
	Enabled       bool     `mapstructure:"enabled"`
	Duration      int      `mapstructure:"duration"`
	Spectrogram   bool     `mapstructure:"spectrogram"`
	Fullscreen    bool     `mapstructure:"fullscreen"`
	Kiosk         bool     `mapstructure:"kiosk"`
	EqScreenshots bool     `mapstructure:"eq_screenshots"`
	Channels      []string `mapstructure:"channels"`
	Deconvolve    bool     `mapstructure:"deconvolve"`
	Units         string   `mapstructure:"units"`
}

// Forward destinations are Address[i]:Port[i].
type Forward struct {
	Enabled   bool     `mapstructure:"enabled"`
	Address   []string `mapstructure:"address"`
	Port      []int    `mapstructure:"port"`
	Channels  []string `mapstructure:"channels"`
	FwdData   bool     `mapstructure:"fwd_data"`
	FwdAlarms bool     `mapstructure:"fwd_alarms"`
}

type Alert struct {
	Enabled    bool    `mapstructure:"enabled"`
	Channel    string  `mapstructure:"channel"`
	STA        float64 `mapstructure:"sta"`
	LTA        float64 `mapstructure:"lta"`
	Threshold  float64 `mapstructure:"threshold"`
	Reset      float64 `mapstructure:"reset"`
	Highpass   float64 `mapstructure:"highpass"`
	Lowpass    float64 `mapstructure:"lowpass"`
	Deconvolve bool    `mapstructure:"deconvolve"`
	Units      string  `mapstructure:"units"`
}

// Process is the peak motion processor.  It only runs with the alert enabled.
type Process struct {
	Enabled bool `mapstructure:"enabled"`
	// Delay and Window are in seconds.
	Delay  float64 `mapstructure:"delay"`
	Window float64 `mapstructure:"window"`
}

// AlertSound is accepted so existing settings files load.  There is no sound output.
type AlertSound struct {
	Enabled bool   `mapstructure:"enabled"`
	MP3File string `mapstructure:"mp3file"`
}

type Custom struct {
	Enabled     bool   `mapstructure:"enabled"`
	Codefile    string `mapstructure:"codefile"`
	WinOverride bool   `mapstructure:"win_override"`
}

// Tweets is accepted so existing settings files load.
type Tweets struct {
	Enabled      bool   `mapstructure:"enabled"`
	TweetImages  bool   `mapstructure:"tweet_images"`
	APIKey       string `mapstructure:"api_key"`
	APISecret    string `mapstructure:"api_secret"`
	AccessToken  string `mapstructure:"access_token"`
	AccessSecret string `mapstructure:"access_secret"`
	ExtraText    string `mapstructure:"extra_text"`
}

// Telegram is accepted so existing settings files load.
type Telegram struct {
	Enabled    bool   `mapstructure:"enabled"`
	SendImages bool   `mapstructure:"send_images"`
	Token      string `mapstructure:"token"`
	ChatID     string `mapstructure:"chat_id"`
	ExtraText  string `mapstructure:"extra_text"`
}

type RSAM struct {
	Enabled    bool    `mapstructure:"enabled"`
	Quiet      bool    `mapstructure:"quiet"`
	FwAddr     string  `mapstructure:"fwaddr"`
	FwPort     int     `mapstructure:"fwport"`
	FwFormat   string  `mapstructure:"fwformat"`
	Channel    string  `mapstructure:"channel"`
	Interval   float64 `mapstructure:"interval"`
	Deconvolve bool    `mapstructure:"deconvolve"`
	Units      string  `mapstructure:"units"`
}

type EventDB struct {
	Enabled bool   `mapstructure:"enabled"`
	Table   string `mapstructure:"table"`
}

type Redis struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Channel string `mapstructure:"channel"`
}

var defaults = map[string]interface{}{
	"settings.port":       8888,
	"settings.station":    Unknown,
	"settings.output_dir": "~/rsudp",
	"settings.debug":      true,
	"settings.soh":        "",

	"printdata.enabled": false,

	"write.enabled":  false,
	"write.channels": []string{"all"},

	"plot.enabled":        false,
	"plot.duration":       90,
	"plot.spectrogram":    true,
	"plot.fullscreen":     false,
	"plot.kiosk":          false,
	"plot.eq_screenshots": false,
	"plot.channels":       []string{"HZ", "HDF"},
	"plot.deconvolve":     true,
	"plot.units":          "CHAN",

	"forward.enabled":    false,
	"forward.address":    []string{"192.168.1.254"},
	"forward.port":       []int{8888},
	"forward.channels":   []string{"all"},
	"forward.fwd_data":   true,
	"forward.fwd_alarms": false,

	"alert.enabled":    true,
	"alert.channel":    "HZ",
	"alert.sta":        6,
	"alert.lta":        30,
	"alert.threshold":  3.95,
	"alert.reset":      0.9,
	"alert.highpass":   0.8,
	"alert.lowpass":    9,
	"alert.deconvolve": false,
	"alert.units":      "VEL",

	"process.enabled": true,
	"process.delay":   10,
	"process.window":  90,

	"alertsound.enabled": false,
	"alertsound.mp3file": "doorbell",

	"custom.enabled":      false,
	"custom.codefile":     "n/a",
	"custom.win_override": false,

	"tweets.enabled":       false,
	"tweets.tweet_images":  true,
	"tweets.api_key":       "n/a",
	"tweets.api_secret":    "n/a",
	"tweets.access_token":  "n/a",
	"tweets.access_secret": "n/a",
	"tweets.extra_text":    "",

	"telegram.enabled":     false,
	"telegram.send_images": true,
	"telegram.token":       "n/a",
	"telegram.chat_id":     "n/a",
	"telegram.extra_text":  "",

	"rsam.enabled":    false,
	"rsam.quiet":      true,
	"rsam.fwaddr":     "192.168.1.254",
	"rsam.fwport":     8887,
	"rsam.fwformat":   "LITE",
	"rsam.channel":    "HZ",
	"rsam.interval":   10,
	"rsam.deconvolve": false,
	"rsam.units":      "VEL",

	"eventdb.enabled": false,
	"eventdb.table":   "rsudp_event",

	"redis.enabled": false,
	"redis.address": "localhost:6379",
	"redis.channel": "",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("RSUDP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	return v
}

// Default returns the settings with no file.
func Default() (Settings, error) {
	return unmarshal(newViper())
}

// Load reads and validates the settings file at path.
func Load(path string) (Settings, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Settings{}, errors.Wrapf(err, "reading settings %s", path)
	}

	return unmarshal(v)
}

// Read reads and validates settings from r.
func Read(r io.Reader) (Settings, error) {
	v := newViper()

	if err := v.ReadConfig(r); err != nil {
		return Settings{}, errors.Wrap(err, "reading settings")
	}

	return unmarshal(v)
}

// WriteDefault writes a settings file with every default value.  An existing file is
// not overwritten.
func WriteDefault(path string) error {
	v := newViper()

	if err := v.SafeWriteConfigAs(path); err != nil {
		return errors.Wrapf(err, "writing settings %s", path)
	}

	return nil
}

func unmarshal(v *viper.Viper) (Settings, error) {
	var s Settings

	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, errors.Wrap(err, "decoding settings")
	}

	s.Settings.OutputDir = expandHome(s.Settings.OutputDir)
	s.Alert.Units = strings.ToUpper(s.Alert.Units)
	s.RSAM.Units = strings.ToUpper(s.RSAM.Units)
	s.RSAM.FwFormat = strings.ToUpper(s.RSAM.FwFormat)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}

	return s, nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}

	h, err := os.UserHomeDir()
	if err != nil {
		return p
	}

	return filepath.Join(h, strings.TrimPrefix(p, "~"))
}
