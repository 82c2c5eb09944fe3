// cineshorts/config/config.go
package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Port       string `mapstructure:"PORT"`
	BaseURL    string `mapstructure:"BASE"`
	AuthEnable bool   `mapstructure:"AUTH_ENABLE"`
	AuthKey    string `mapstructure:"AUTH_KEY"`
	CORSOrigin string `mapstructure:"CORS_ORIGIN"`

	FFBin       string `mapstructure:"FF_BIN"`
	FFprobeBin  string `mapstructure:"FFPROBE_BIN"`
	FFExtraArgs string `mapstructure:"FF_EXTRA_ARGS"`

	UploadDir     string `mapstructure:"UPLOAD_DIR"`
	CacheDir      string `mapstructure:"CACHE_DIR"`
	ThumbDir      string `mapstructure:"THUMB_DIR"`
	MaxUploadSize int64  `mapstructure:"MAX_UPLOAD_SIZE"`

	MaxConcurrency   int     `mapstructure:"MAX_CONCURRENCY"`
	SceneThreshold   float64 `mapstructure:"SCENE_THRESHOLD"`
	DefaultFrameRate float64 `mapstructure:"DEFAULT_FRAME_RATE"`

	TaskRetention    time.Duration `mapstructure:"TASK_RETENTION"`
	ProgressInterval time.Duration `mapstructure:"PROGRESS_INTERVAL"`
	ProbeTimeout     time.Duration `mapstructure:"PROBE_TIMEOUT"`
	AnalyzeTimeout   time.Duration `mapstructure:"ANALYZE_TIMEOUT"`
	ThumbTimeout     time.Duration `mapstructure:"THUMB_TIMEOUT"`

	ThrottleCPU      float64 `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem  int64   `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk int64   `mapstructure:"THROTTLE_FREEDISK"`
}

// stringToDurationHookFunc parses Go duration strings like "30m" or "400ms".
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc parses human-readable size strings like "2GB".
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		err := size.UnmarshalText([]byte(data.(string)))
		if err != nil {
			// Not a valid size string, let other parsers handle it.
			return data, nil
		}

		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	vp := viper.New()

	// Defaults are strings where a decode hook applies.
	vp.SetDefault("PORT", "8000")
	vp.SetDefault("BASE", "")
	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "")
	vp.SetDefault("CORS_ORIGIN", "http://localhost:3000")

	vp.SetDefault("FF_BIN", "ffmpeg")
	vp.SetDefault("FFPROBE_BIN", "ffprobe")
	vp.SetDefault("FF_EXTRA_ARGS", "")

	vp.SetDefault("UPLOAD_DIR", "uploads")
	vp.SetDefault("CACHE_DIR", "scene_cache")
	vp.SetDefault("THUMB_DIR", "thumbnails")
	vp.SetDefault("MAX_UPLOAD_SIZE", "2GB")

	vp.SetDefault("MAX_CONCURRENCY", 2)
	vp.SetDefault("SCENE_THRESHOLD", 0.4)
	vp.SetDefault("DEFAULT_FRAME_RATE", 25.0)

	vp.SetDefault("TASK_RETENTION", "30m")
	vp.SetDefault("PROGRESS_INTERVAL", "400ms")
	vp.SetDefault("PROBE_TIMEOUT", "30s")
	vp.SetDefault("ANALYZE_TIMEOUT", "45m")
	vp.SetDefault("THUMB_TIMEOUT", "20s")

	vp.SetDefault("THROTTLE_CPU", 0.0)
	vp.SetDefault("THROTTLE_FREEMEM", "0B")
	vp.SetDefault("THROTTLE_FREEDISK", "0B")

	vp.SetConfigName("cineshorts_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/cineshorts/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	vp.SetEnvPrefix("CINESHORTS")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
