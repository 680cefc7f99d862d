package config

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mogaika/hlpack/stream"
)

func TestLoadDefaults(t *testing.T) {
	opts, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), opts)
}

func TestLoadYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
encoding: "Windows 1251"
overwrite: false
file_mapping: true
workers: 8
ncf_root: /games/common
`), 0644))
	t.Setenv(envPrefix+"WORKERS", "2")

	opts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", opts.LogLevel)
	assert.False(t, opts.Overwrite)
	assert.True(t, opts.FileMapping)
	assert.Equal(t, "/games/common", opts.NCFRoot)
	assert.Equal(t, 2, opts.Workers, "environment overrides the file")
	assert.Equal(t, 131072, opts.CopyBufferSize)

	enc, err := opts.GetEncoding()
	require.NoError(t, err)
	assert.Equal(t, "Windows 1251", enc.String())
}

func TestLoadBadYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [1, 2"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"HLEXTRACT_LOG_LEVEL":        "warn",
		"HLEXTRACT_VOLATILE":         " true ",
		"HLEXTRACT_STOP_ON_ERROR":    "1",
		"HLEXTRACT_VIEW_SIZE":        "65536",
		"HLEXTRACT_COPY_BUFFER_SIZE": "4096",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	opts := DefaultOptions()
	require.NoError(t, opts.applyEnv(lookup))
	assert.Equal(t, "warn", opts.LogLevel)
	assert.True(t, opts.Volatile)
	assert.True(t, opts.StopOnError)
	assert.Equal(t, int64(65536), opts.ViewSize)
	assert.Equal(t, 4096, opts.CopyBufferSize)
	assert.Equal(t, 4, opts.Workers)

	env["HLEXTRACT_OVERWRITE"] = "perhaps"
	assert.Error(t, opts.applyEnv(lookup))

	delete(env, "HLEXTRACT_OVERWRITE")
	env["HLEXTRACT_WORKERS"] = "many"
	assert.Error(t, opts.applyEnv(lookup))
}

func TestSetupLogging(t *testing.T) {
	defer log.SetLevel(log.GetLevel())

	opts := DefaultOptions()
	opts.LogLevel = "error"
	require.NoError(t, opts.SetupLogging())
	assert.Equal(t, log.ErrorLevel, log.GetLevel())

	opts.LogLevel = "loud"
	assert.Error(t, opts.SetupLogging())
}

func TestStreamMode(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts Options
		want stream.Mode
	}{
		{"default", Options{}, stream.ModeRead | stream.ModeNoMapping},
		{"mapping", Options{FileMapping: true}, stream.ModeRead},
		{"quick", Options{FileMapping: true, QuickFileMapping: true}, stream.ModeRead | stream.ModeQuickMapping},
		{"volatile", Options{Volatile: true}, stream.ModeRead | stream.ModeNoMapping | stream.ModeVolatile},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.opts.StreamMode())
		})
	}
}

func TestEncodings(t *testing.T) {
	enc, err := EncodingByName("")
	require.NoError(t, err)
	assert.Equal(t, DefaultEncodingName, enc.String())
	assert.Equal(t, DefaultEncodingName, Encoding{}.String())

	_, err = EncodingByName("Klingon")
	assert.Error(t, err)

	names := ListEncodings()
	assert.Contains(t, names, DefaultEncodingName)
	assert.Contains(t, names, "IBM Code Page 437")
	for _, name := range names {
		_, err := EncodingByName(name)
		assert.NoError(t, err, name)
	}
}
