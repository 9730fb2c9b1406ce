package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 0.3, cfg.MatchThreshold)
	assert.Equal(t, 3, cfg.StarvationMin)
	assert.Equal(t, 5*time.Second, cfg.PushConnectTimeout)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Empty(t, cfg.ArchiveDSN)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "0.55")
	t.Setenv("STARVATION_MIN", "5")
	t.Setenv("GRACE_WINDOW", "15s")
	t.Setenv("ADDR", ":9999")

	cfg := Load()
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 0.55, cfg.MatchThreshold)
	assert.Equal(t, 5, cfg.StarvationMin)
	assert.Equal(t, 15*time.Second, cfg.GraceWindow)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("STARVATION_MIN", "lots")
	t.Setenv("POLL_INTERVAL", "soon")

	cfg := Load()
	assert.Equal(t, 3, cfg.StarvationMin)
	assert.Equal(t, time.Second, cfg.PollInterval)
}
