package common

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
)

const (
	ConfigPathEnv = "CONFIG_PATH" // yaml or json file layered over the defaults
	ConfigJSONEnv = "CONFIG_JSON" // inline json layered last
	configTag     = "key"
)

//go:embed config.default.yaml
var defaultConfig []byte

// ConfigManager loads a typed config from the embedded defaults, an optional
// config file and an optional inline JSON override, in that order.
type ConfigManager[T any] struct {
	kf     *koanf.Koanf
	config T
}

func NewConfigManager[T any]() (*ConfigManager[T], error) {
	cm := &ConfigManager[T]{kf: koanf.New(".")}

	if err := cm.kf.Load(rawbytes.Provider(defaultConfig), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load default config: %w", err)
	}

	if path := os.Getenv(ConfigPathEnv); path != "" {
		if err := cm.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if raw := os.Getenv(ConfigJSONEnv); raw != "" {
		if err := cm.kf.Load(rawbytes.Provider([]byte(raw)), json.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", ConfigJSONEnv, err)
		}
	}

	if err := cm.unmarshal(); err != nil {
		return nil, err
	}
	return cm, nil
}

// LoadFile merges a yaml or json file over the current config.
func (cm *ConfigManager[T]) LoadFile(path string) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		parser = json.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	default:
		return fmt.Errorf("unsupported config format: %s", path)
	}

	if err := cm.kf.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("load config file %s: %w", path, err)
	}
	log.Debug().Str("path", path).Msg("loaded config file")
	return cm.unmarshal()
}

func (cm *ConfigManager[T]) unmarshal() error {
	var config T
	err := cm.kf.UnmarshalWithConf("", &config, koanf.UnmarshalConf{
		Tag: configTag,
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &config,
			TagName:          configTag,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	cm.config = config
	return nil
}

func (cm *ConfigManager[T]) GetConfig() T {
	return cm.config
}
