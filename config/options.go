package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/mogaika/hlpack/stream"
)

const DefaultConfigFile = "hlextract.yaml"

const envPrefix = "HLEXTRACT_"

// Options are the tool defaults. Precedence: built-in defaults, then the
// YAML file, then HLEXTRACT_* environment variables (a .env file in the
// working directory is loaded first), then command line flags.
type Options struct {
	LogLevel         string `yaml:"log_level"`
	Encoding         string `yaml:"encoding"`
	Overwrite        bool   `yaml:"overwrite"`
	FileMapping      bool   `yaml:"file_mapping"`
	QuickFileMapping bool   `yaml:"quick_file_mapping"`
	Volatile         bool   `yaml:"volatile"`
	ViewSize         int64  `yaml:"view_size"`
	CopyBufferSize   int    `yaml:"copy_buffer_size"`
	NCFRoot          string `yaml:"ncf_root"`
	Workers          int    `yaml:"workers"`
	StopOnError      bool   `yaml:"stop_on_error"`
}

func DefaultOptions() Options {
	return Options{
		LogLevel:       "info",
		Encoding:       DefaultEncodingName,
		Overwrite:      true,
		ViewSize:       131072,
		CopyBufferSize: 131072,
		Workers:        4,
	}
}

// Load reads path (missing file is not an error) and applies environment
// overrides.
func Load(path string) (Options, error) {
	opts := DefaultOptions()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &opts); err != nil {
				return opts, errors.Wrapf(err, "[config] Cannot parse '%s'", path)
			}
		case os.IsNotExist(err):
			log.Debugf("[config] No config file '%s', using defaults", path)
		default:
			return opts, errors.Wrapf(err, "[config] Cannot read '%s'", path)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Debugf("[config] .env not loaded: %v", err)
	}
	if err := opts.applyEnv(os.LookupEnv); err != nil {
		return opts, err
	}
	return opts, nil
}

func (o *Options) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		if v, ok := lookup(envPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return errors.Wrapf(err, "[config] %s%s", envPrefix, key)
			}
			*dst = b
		}
		return nil
	}
	integer := func(key string, dst *int64) error {
		if v, ok := lookup(envPrefix + key); ok {
			i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return errors.Wrapf(err, "[config] %s%s", envPrefix, key)
			}
			*dst = i
		}
		return nil
	}

	str("LOG_LEVEL", &o.LogLevel)
	str("ENCODING", &o.Encoding)
	str("NCF_ROOT", &o.NCFRoot)
	for key, dst := range map[string]*bool{
		"OVERWRITE":          &o.Overwrite,
		"FILE_MAPPING":       &o.FileMapping,
		"QUICK_FILE_MAPPING": &o.QuickFileMapping,
		"VOLATILE":           &o.Volatile,
		"STOP_ON_ERROR":      &o.StopOnError,
	} {
		if err := boolean(key, dst); err != nil {
			return err
		}
	}
	if err := integer("VIEW_SIZE", &o.ViewSize); err != nil {
		return err
	}
	copyBuf, workers := int64(o.CopyBufferSize), int64(o.Workers)
	if err := integer("COPY_BUFFER_SIZE", &copyBuf); err != nil {
		return err
	}
	if err := integer("WORKERS", &workers); err != nil {
		return err
	}
	o.CopyBufferSize, o.Workers = int(copyBuf), int(workers)
	return nil
}

// SetupLogging applies the configured level to the global logger.
func (o Options) SetupLogging() error {
	level, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		return errors.Wrapf(err, "[config] log level")
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	return nil
}

func (o Options) GetEncoding() (Encoding, error) {
	return EncodingByName(o.Encoding)
}

// StreamMode translates the mapping options to stream open flags.
func (o Options) StreamMode() stream.Mode {
	mode := stream.ModeRead
	if !o.FileMapping {
		mode |= stream.ModeNoMapping
	}
	if o.QuickFileMapping {
		mode |= stream.ModeQuickMapping
	}
	if o.Volatile {
		mode |= stream.ModeVolatile
	}
	return mode
}
