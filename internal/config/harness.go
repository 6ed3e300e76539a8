// Package config loads the harness configuration file and suite
// configuration documents.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/sempr/studenttester-go/internal/sandbox"
	pkgerrors "github.com/sempr/studenttester-go/pkg/errors"
)

type CompilerConfig struct {
	// Command is the compiler executable; empty disables compilation.
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	// Options are appended to every invocation, split shell-style.
	Options    string `toml:"options"`
	Separately bool   `toml:"separately"`
	OutDir     string `toml:"out_dir"`
}

type RunConfig struct {
	DefaultTimeout string   `toml:"default_timeout"`
	Policies       []string `toml:"policies"`
	MuteOverall    bool     `toml:"mute_overall"`
	SourceExts     []string `toml:"source_exts"`
	// ArtifactExts name the compiled forms of a test source that are
	// protected alongside it.
	ArtifactExts []string `toml:"artifact_exts"`
}

// Harness is the TOML harness configuration.
type Harness struct {
	Compiler CompilerConfig `toml:"compiler"`
	Run      RunConfig      `toml:"run"`
}

func DefaultHarness() *Harness {
	return &Harness{
		Compiler: CompilerConfig{
			Args: []string{"{options}", "{sources}"},
		},
		Run: RunConfig{
			DefaultTimeout: "10s",
			SourceExts:     []string{".go"},
			ArtifactExts:   []string{".o", ".a"},
		},
	}
}

// LoadHarness reads path over the defaults. An empty path returns the
// defaults.
func LoadHarness(path string) (*Harness, error) {
	h := DefaultHarness()
	if path == "" {
		return h, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.ConfigurationError, "could not read %s", path)
	}
	if err := toml.Unmarshal(data, h); err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.ConfigurationError, "could not parse %s", path)
	}
	if _, err := h.Timeout(); err != nil {
		return nil, err
	}
	if _, err := h.PolicyKinds(); err != nil {
		return nil, err
	}
	return h, nil
}

// Timeout is the default per-test timeout; zero means none.
func (h *Harness) Timeout() (time.Duration, error) {
	if h.Run.DefaultTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(h.Run.DefaultTimeout)
	if err != nil || d < 0 {
		return 0, pkgerrors.Newf(pkgerrors.ConfigurationError, "invalid default_timeout %q", h.Run.DefaultTimeout)
	}
	return d, nil
}

// PolicyKinds resolves the configured policy names. No names means the
// default policy set.
func (h *Harness) PolicyKinds() ([]sandbox.PolicyKind, error) {
	if len(h.Run.Policies) == 0 {
		return sandbox.DefaultPolicies(), nil
	}
	kinds := make([]sandbox.PolicyKind, 0, len(h.Run.Policies))
	for _, name := range h.Run.Policies {
		k, ok := sandbox.ParsePolicy(name)
		if !ok {
			return nil, pkgerrors.Newf(pkgerrors.ConfigurationError, "unknown policy %q", name).
				WithDetail("known", fmt.Sprint(sandbox.KnownPolicies()))
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
