package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonathan/partner-intake/internal/config"
	"github.com/jonathan/partner-intake/internal/types"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// parsed runs the status command with its action replaced and returns the parsed command and flags.
func parsed(t *testing.T, args ...string) (*cobra.Command, *globals) {
	t.Helper()
	g := &globals{}
	root := buildRootCmd(g)
	var got *cobra.Command
	for _, c := range root.Commands() {
		if c.Name() == "status" {
			c.RunE = func(cmd *cobra.Command, _ []string) error {
				got = cmd
				return nil
			}
		}
	}
	root.SetArgs(append([]string{"status"}, args...))
	require.NoError(t, root.Execute())
	require.NotNil(t, got)
	return got, g
}

func TestResolveConfig_FlagsOverrideFile(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"runs_root": "from-file", "platform": "filed", "max_resume_attempts": 5}`), 0o644))

	cmd, g := parsed(t, "--config", cfgPath, "--runs-root", "from-flag")
	cfg, err := resolveConfig(cmd, g)
	require.NoError(t, err)

	assert.Equal(t, "from-flag", cfg.RunsRoot)
	assert.Equal(t, "filed", cfg.Platform)
	assert.Equal(t, 5, cfg.MaxResumeAttempts)
	assert.Equal(t, "sharepoint_simulation", cfg.SimulationRoot)
	assert.Equal(t, "event", cfg.Strategy)
}

func TestResolveConfig_InvalidFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"strategy": "sometimes"}`), 0o644))

	cmd, g := parsed(t, "--config", cfgPath)
	_, err := resolveConfig(cmd, g)
	assert.Error(t, err)
}

func TestResolveTargets(t *testing.T) {
	cfg := config.Defaults()
	cfg.Year = "2026"
	cfg.Runs = []config.RunTarget{{Partner: "acme", Quarter: "q1"}, {Partner: "globex", Quarter: "q2"}}

	targets, err := resolveTargets(cfg, &globals{})
	require.NoError(t, err)
	assert.Equal(t, []types.RunIdentity{
		{Partner: "acme", Quarter: "q1", Platform: "minimal", Year: "2026"},
		{Partner: "globex", Quarter: "q2", Platform: "minimal", Year: "2026"},
	}, targets)

	targets, err = resolveTargets(cfg, &globals{partner: "initech", quarter: "q3"})
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "initech-q3-minimal", targets[0].RunID())

	_, err = resolveTargets(cfg, &globals{quarter: "q3"})
	assert.Error(t, err)

	cfg.Platform = ""
	_, err = resolveTargets(cfg, &globals{partner: "acme", quarter: "q1"})
	assert.Error(t, err)
}

func TestLinkSettings(t *testing.T) {
	t.Setenv("ACCESS_CODE_BCRYPT_COST", "10")

	t.Setenv("SECURE_LINK_SECRET", "")
	first, codes, err := linkSettings(zap.NewNop())
	require.NoError(t, err)
	second, _, err := linkSettings(zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, first.Secret, 64)
	assert.NotEqual(t, first.Secret, second.Secret)
	assert.Equal(t, 168, first.ExpirationHours)
	assert.Equal(t, 10, codes.BcryptCost)

	t.Setenv("SECURE_LINK_SECRET", "a-shared-secret-of-some-length")
	shared, _, err := linkSettings(zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "a-shared-secret-of-some-length", shared.Secret)

	t.Setenv("SECURE_LINK_SECRET", "short")
	_, _, err = linkSettings(zap.NewNop())
	assert.Error(t, err)
}

func TestWatchTimeouts(t *testing.T) {
	cfg := config.Defaults()

	interval, debounce := watchTimeouts(cfg, 0, 0)
	assert.Equal(t, 30*time.Second, interval)
	assert.Equal(t, 500*time.Millisecond, debounce)

	interval, debounce = watchTimeouts(cfg, time.Minute, time.Second)
	assert.Equal(t, time.Minute, interval)
	assert.Equal(t, time.Second, debounce)
}
