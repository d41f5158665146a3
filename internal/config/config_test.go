package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nope.toml")

	_, _, err := Load(path, false)
	require.Error(t, err)

	cfg, used, err := Load(path, true)
	require.NoError(t, err)
	require.True(t, used)
	require.Equal(t, DefaultAutomod(), cfg.Automod)
	require.Equal(t, BackendBadger, cfg.DB.Backend)
}

func TestLoad_ParsesOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
[log]
level = "debug"
violation_levels = { banned_word = "info" }

[automod]
banned_words = ["bad1", "bad2"]
spam_interval = "3s"
mute_duration = "10m"

[automod.thresholds]
mute = 2
kick = 4
ban = 6

[guilds."1001"]
enabled = false
max_mentions = 2
spam_interval = "1s"
exempt_roles = ["r1"]
`)

	cfg, used, err := Load(path, false)
	require.NoError(t, err)
	require.False(t, used)

	require.Equal(t, DebugLevel, cfg.Log.Level)
	require.Equal(t, InfoLevel, cfg.Log.ViolationLevels["banned_word"])
	require.Equal(t, []string{"bad1", "bad2"}, cfg.Automod.BannedWords)
	require.Equal(t, 3*time.Second, cfg.Automod.SpamInterval)
	require.Equal(t, ThresholdsConfig{Mute: 2, Kick: 4, Ban: 6}, cfg.Automod.Thresholds)
	// Untouched keys keep their defaults.
	require.Equal(t, 70, cfg.Automod.MaxCapsPercent)

	g, ok := cfg.Guilds["1001"]
	require.True(t, ok)
	require.NotNil(t, g.Enabled)
	require.False(t, *g.Enabled)
	require.Equal(t, 2, *g.MaxMentions)
	require.Equal(t, time.Second, *g.SpamInterval)
	require.Equal(t, []string{"r1"}, *g.ExemptRoles)
	require.Nil(t, g.BannedWords)
}

func TestLoad_Validation(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"caps percent above 100", "[automod]\nmax_caps_percent = 120\n"},
		{"negative mentions", "[automod]\nmax_mentions = -1\n"},
		{"negative threshold", "[automod.thresholds]\nkick = -2\n"},
		{"spam without interval", "[automod]\nspam_threshold = 3\nspam_interval = \"0s\"\n"},
		{"redis without url", "[database]\nbackend = \"redis\"\n"},
		{"unknown backend", "[database]\nbackend = \"sqlite\"\n"},
		{"bad log level", "[log]\nlevel = \"loud\"\n"},
		{"delete days out of range", "[discord]\ndelete_message_days = 9\n"},
		{"zero notice burst", "[discord]\nnotice_burst = 0\n"},
		{"zero notice rate", "[discord]\nnotice_rate = 0.0\n"},
		{"negative notice rate", "[discord]\nnotice_rate = -1.0\n"},
		{"negative guild override", "[guilds.\"1\"]\nspam_threshold = -1\n"},
		{"guild caps above 100", "[guilds.\"1\"]\nmax_caps_percent = 101\n"},
		{"negative guild duration", "[guilds.\"1\"]\nmute_duration = \"-1m\"\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tc.body)
			_, _, err := Load(path, false)
			require.Error(t, err)
		})
	}
}

func TestLoad_NoticeLimiterErrors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "[discord]\nnotice_burst = 0\n")
	_, _, err := Load(path, false)
	require.EqualError(t, err, "discord.notice_burst must be at least 1")
}

func TestLoad_GuildErrorNamesPath(t *testing.T) {
	path := writeFile(t, t.TempDir(), "[guilds.\"42\"]\nban_threshold = -3\n")
	_, _, err := Load(path, false)
	require.EqualError(t, err, "guilds.42.ban_threshold must not be negative")
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "[automod]\nmax_mentions = 4\n")

	reloaded := make(chan *Config, 1)
	w := NewWatcher(path, 20*time.Millisecond, func(c *Config) { reloaded <- c })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Give fsnotify a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("[automod]\nmax_mentions = 9\n"), 0o644))

	select {
	case c := <-reloaded:
		require.Equal(t, 9, c.Automod.MaxMentions)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a reload after the config file changed")
	}
}
