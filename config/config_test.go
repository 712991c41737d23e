package config_test

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysante/scatha-sub006/config"
)

func TestResolveDefaults(t *testing.T) {
	fs := pflag.NewFlagSet("scatha", pflag.ContinueOnError)
	v, err := config.New(fs, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fs.Parse(nil))

	p, err := config.Resolve(v)
	require.NoError(t, err)
	assert.False(t, p.Optimize)
	assert.Equal(t, config.DefaultOutput, p.Output)
	assert.Equal(t, config.TargetExec, p.Target)
	assert.Empty(t, p.LibSearchPaths)
}

func TestResolveFlagsOverrideDefaults(t *testing.T) {
	fs := pflag.NewFlagSet("scatha", pflag.ContinueOnError)
	v, err := config.New(fs, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fs.Parse([]string{
		"-O",
		"-L", "/usr/lib:/opt/lib",
		"--output", "a.out",
		"-T", "staticlib",
	}))

	p, err := config.Resolve(v)
	require.NoError(t, err)
	assert.True(t, p.Optimize)
	assert.Equal(t, []string{"/usr/lib", "/opt/lib"}, p.LibSearchPaths)
	assert.Equal(t, "a.out", p.Output)
	assert.Equal(t, config.TargetStaticLib, p.Target)
}

func TestResolveRejectsUnknownTarget(t *testing.T) {
	fs := pflag.NewFlagSet("scatha", pflag.ContinueOnError)
	v, err := config.New(fs, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fs.Parse([]string{"-T", "jit"}))

	_, err = config.Resolve(v)
	assert.Error(t, err)
}
