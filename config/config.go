// Package config binds the scatha CLI's flags, SCATHA_* environment
// variables, and an optional scatha.toml project file into one
// Pipeline struct, per spec.md §6's CLI surface and SPEC_FULL.md §1's
// ambient configuration stack. Grounded on the pack's CLI/server-style
// repos that layer spf13/viper under spf13/pflag-backed cobra flags,
// since the teacher (falcon) has no configuration layer of its own to
// generalize from.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// TargetType is the `-T, --target-type` CLI choice.
type TargetType string

const (
	TargetExec      TargetType = "exec"
	TargetStaticLib TargetType = "staticlib"
)

// Pipeline is the fully-resolved configuration for one `scatha`
// invocation, after flags/env/scatha.toml have all been merged by
// viper's precedence order (flag > env > file > default).
type Pipeline struct {
	// Optimize mirrors `-O, --optimize`: run opt.DefaultPipeline over
	// every function before lowering to mir.
	Optimize bool
	// Debug mirrors `-d, --debug`: emit a `.scdsym` debug-symbol file
	// alongside the binary. Not yet produced by this module's asm
	// package (see DESIGN.md); the flag is threaded through so a
	// caller can detect the request and warn rather than silently
	// drop it.
	Debug bool
	// LibSearchPaths mirrors `-L, --libsearchpaths`, a colon-separated
	// list split into link.Options.Libraries.
	LibSearchPaths []string
	// Target mirrors `-T, --target-type`.
	Target TargetType
	// Output mirrors the long-form `--output` path; default "out".
	// spec.md's own CLI surface table lists both `--optimize` and
	// `--output` under the short flag `-O` (almost certainly a
	// transcription slip upstream); this module resolves the
	// collision by giving `--optimize` the short flag and leaving
	// `--output` reachable only by its long name, recorded in
	// DESIGN.md as an Open Question resolution.
	Output string
	// BinaryOnly mirrors `-b, --binary-only`: write a bare `.sbin`
	// instead of a self-executing wrapper.
	BinaryOnly bool
	// Time mirrors `-t, --time`: print per-stage wall-clock times.
	Time bool

	// HostSearch enables link.Options.HostSearch; not exposed as a
	// flag in spec.md §6, left env/file-only (SCATHA_HOSTSEARCH,
	// host_search) for parity with the original's internal dynamic
	// library fallback.
	HostSearch bool
}

// DefaultOutput is Pipeline.Output's value absent any flag, env var,
// or scatha.toml entry.
const DefaultOutput = "out"

// BindFlags registers every §6 root-command flag onto fs and binds
// each to v, so v.Unmarshal can later populate a Pipeline regardless
// of whether the value came from the flag, a SCATHA_* environment
// variable, or scatha.toml.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	fs.BoolP("optimize", "O", false, "enable default optimization pipeline")
	fs.BoolP("debug", "d", false, "emit a .scdsym debug-symbol file alongside the binary")
	fs.StringP("libsearchpaths", "L", "", "colon-separated foreign-library search paths")
	fs.StringP("target-type", "T", string(TargetExec), "exec or staticlib")
	fs.String("output", DefaultOutput, "output path")
	fs.BoolP("binary-only", "b", false, "write .sbin instead of a self-executing wrapper")
	fs.BoolP("time", "t", false, "print per-stage wall-clock times")
	fs.Bool("host-search", false, "search the host process's own dynamic symbols as a last resort")

	v.BindPFlag("optimize", fs.Lookup("optimize"))
	v.BindPFlag("debug", fs.Lookup("debug"))
	v.BindPFlag("libsearchpaths", fs.Lookup("libsearchpaths"))
	v.BindPFlag("target-type", fs.Lookup("target-type"))
	v.BindPFlag("output", fs.Lookup("output"))
	v.BindPFlag("binary-only", fs.Lookup("binary-only"))
	v.BindPFlag("time", fs.Lookup("time"))
	v.BindPFlag("host-search", fs.Lookup("host-search"))
}

// New builds a viper instance reading scatha.toml (if present in the
// working directory or any configPaths entry) and SCATHA_*-prefixed
// environment variables, with fs's flags bound on top.
func New(fs *pflag.FlagSet, configPaths ...string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("scatha")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("SCATHA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	BindFlags(fs, v)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: reading scatha.toml: %w", err)
		}
	}
	return v, nil
}

// Resolve unmarshals v's merged flag/env/file state into a Pipeline,
// splitting the colon-separated libsearchpaths string.
func Resolve(v *viper.Viper) (*Pipeline, error) {
	p := &Pipeline{
		Optimize:   v.GetBool("optimize"),
		Debug:      v.GetBool("debug"),
		Target:     TargetType(v.GetString("target-type")),
		Output:     v.GetString("output"),
		BinaryOnly: v.GetBool("binary-only"),
		Time:       v.GetBool("time"),
		HostSearch: v.GetBool("host-search"),
	}
	if p.Target != TargetExec && p.Target != TargetStaticLib {
		return nil, fmt.Errorf("config: invalid target-type %q, want %q or %q", p.Target, TargetExec, TargetStaticLib)
	}
	if raw := v.GetString("libsearchpaths"); raw != "" {
		p.LibSearchPaths = strings.Split(raw, ":")
	}
	if p.Output == "" {
		p.Output = DefaultOutput
	}
	return p, nil
}
