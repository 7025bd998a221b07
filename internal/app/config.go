package app

import (
	"fmt"
	"os"
	"time"

	"github.com/sinefunc/imagery/internal/asset"
	"gopkg.in/yaml.v2"
)

const (
	BackendLocal  = "local"
	BackendRemote = "remote"
	BackendNull   = "null"

	EngineMagick  = "magick"
	EngineImaging = "imaging"

	ProviderS3  = "s3"
	ProviderGCS = "gcs"

	LogFormatText = "text"
	LogFormatJSON = "json"
)

type Config struct {
	// Root falls back to IMAGERY_ROOT.
	Root           string                    `yaml:"root"`
	Directory      string                    `yaml:"directory"`
	DefaultVariant string                    `yaml:"default_variant"`
	Sizes          map[string]asset.Geometry `yaml:"sizes"`
	Backend        string                    `yaml:"backend"`
	Converter      struct {
		Engine  string        `yaml:"engine"`
		Bin     string        `yaml:"bin"`
		Timeout time.Duration `yaml:"timeout"`
		Workers int           `yaml:"workers"`
	} `yaml:"converter"`
	Remote struct {
		Provider           string        `yaml:"provider"`
		Bucket             string        `yaml:"bucket"`
		DistributionDomain string        `yaml:"distribution_domain"`
		Host               string        `yaml:"host"`
		Endpoint           string        `yaml:"endpoint"`
		Region             string        `yaml:"region"`
		CredentialsFile    string        `yaml:"credentials_file"`
		Timeout            time.Duration `yaml:"timeout"`
	} `yaml:"remote"`
	Missing struct {
		Enabled bool   `yaml:"enabled"`
		Prefix  string `yaml:"prefix"`
	} `yaml:"missing"`
	HTTP struct {
		Address   string `yaml:"address"`
		BodyLimit string `yaml:"body_limit"`
	} `yaml:"http"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func DefaultConfig() Config {
	var c Config
	c.Backend = BackendLocal
	c.Converter.Engine = EngineMagick
	c.Converter.Workers = 1
	c.Remote.Provider = ProviderS3
	c.HTTP.Address = ":8080"
	c.Log.Level = "info"
	c.Log.Format = LogFormatText

	return c
}

// Load decodes the YAML file at path over DefaultConfig. An empty path yields
// the defaults.
func Load(path string) (Config, error) {
	c := DefaultConfig()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendLocal, BackendRemote, BackendNull:
	default:
		return fmt.Errorf("unknown backend `%s`", c.Backend)
	}

	switch c.Converter.Engine {
	case EngineMagick, EngineImaging:
	default:
		return fmt.Errorf("unknown converter engine `%s`", c.Converter.Engine)
	}

	if c.Backend == BackendRemote {
		switch c.Remote.Provider {
		case ProviderS3, ProviderGCS:
		default:
			return fmt.Errorf("unknown remote provider `%s`", c.Remote.Provider)
		}
	}

	switch c.Log.Format {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("unknown log format `%s`", c.Log.Format)
	}

	if err := asset.NewSizes(c.Sizes).Validate(); err != nil {
		return fmt.Errorf("sizes: %w", err)
	}

	return nil
}
