package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"hivemind/internal/channel"
	"hivemind/internal/config"
	"hivemind/internal/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// pointConfigAt aims the global config flags at a path for one test.
func pointConfigAt(t *testing.T, path string) {
	t.Helper()
	oldCfg, oldEnv := cfgPath, envPath
	cfgPath, envPath = path, ""
	t.Cleanup(func() {
		cfgPath, envPath = oldCfg, oldEnv
	})
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("XAI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("HIVEMIND_COORDINATION_CHANNEL", "")
}

func TestLoadConfig_DefaultsChannelForLocalRuns(t *testing.T) {
	pointConfigAt(t, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, defaultChannelID, cfg.Coordination.Channel)
	assert.Len(t, cfg.Specialists, 3)
}

func TestLoadConfig_KeepsConfiguredChannel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hivemind.yaml")
	seed := config.DefaultConfig()
	seed.Coordination.Channel = "C_PROD"
	require.NoError(t, seed.Save(path))

	pointConfigAt(t, path)

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "C_PROD", cfg.Coordination.Channel)
}

func TestBuildStack_WiresEveryProfile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Coordination.Channel = "C_COORD"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := buildStack(ctx, cfg)
	require.NoError(t, err)

	assert.Len(t, st.specialists, len(cfg.Specialists))
	assert.Equal(t, len(cfg.Specialists), st.registry.Len())
	assert.Nil(t, st.scheduler, "no scheduler without an LLM provider")

	stop, err := st.Attach(ctx)
	require.NoError(t, err)
	defer stop()

	history := st.hub.History("C_COORD")
	var online []string
	for _, msg := range history {
		if strings.Contains(msg.Text, "online and ready") {
			online = append(online, msg.Text)
		}
	}
	require.Len(t, online, len(cfg.Specialists)+1)
	assert.Equal(t, protocol.ComposeOnline("Orchestrator"), online[0])
}

func TestEvaluateCommand_ReportsDirectAssignment(t *testing.T) {
	pointConfigAt(t, filepath.Join(t.TempDir(), "missing.yaml"))

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, runEvaluate(cmd, []string{"what's the weather in Boston"}))

	assert.Contains(t, out.String(), "Grok")
	assert.Contains(t, out.String(), "96%")
	assert.Contains(t, out.String(), "would assign Grok directly")
}

func TestEvaluateCommand_ReportsNegotiation(t *testing.T) {
	// A keyword-free task scores every default profile at the base 50, which
	// already meets the discussion threshold; drop the bases to force the
	// negotiation verdict.
	dir := t.TempDir()
	path := filepath.Join(dir, "hivemind.yaml")
	seed := config.DefaultConfig()
	seed.Coordination.Channel = "C_COORD"
	for i := range seed.Specialists {
		seed.Specialists[i].BaseConfidence = 40
	}
	require.NoError(t, seed.Save(path))
	pointConfigAt(t, path)

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, runEvaluate(cmd, []string{"tend the garden gnomes"}))

	assert.Contains(t, out.String(), "would negotiate")
	assert.Contains(t, out.String(), "40%")
}

func TestConsoleModel_SettlesCoordination(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Coordination.Channel = "C_COORD"
	m := consoleModel{cfg: cfg}

	cases := []struct {
		name string
		msg  channel.Message
		want bool
	}{
		{"terminal status", channel.Message{ChannelID: "C_COORD", Text: protocol.ComposeCompletedTask("Grok")}, true},
		{"process error", channel.Message{ChannelID: "C_COORD", Text: "❌ Grok error: boom"}, true},
		{"decline", channel.Message{ChannelID: "C_COORD", Text: protocol.ComposeDecline("Grok", 20, 30)}, true},
		{"no response", channel.Message{ChannelID: "C_COORD", Text: protocol.NoResponseText}, true},
		{"confidence report", channel.Message{ChannelID: "C_COORD", Text: protocol.ComposeConfidenceReport("Grok", 90, "t")}, false},
		{"assignment keeps waiting", channel.Message{ChannelID: "C_COORD", Text: protocol.ComposeAssignment("UGROK")}, false},
		{"other channel ignored", channel.Message{ChannelID: "C_ELSE", Text: protocol.ComposeCompletedTask("Grok")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, m.settles(tc.msg))
		})
	}
}

func TestConsoleModel_HumanizesMentions(t *testing.T) {
	m := consoleModel{names: map[string]string{
		"UGROK":  "Grok",
		"ULOCAL": "You",
	}}

	text := "ASSIGNED: <@UGROK> - Please handle this request from <@ULOCAL>."
	assert.Equal(t, "ASSIGNED: @Grok - Please handle this request from @You.", m.humanize(text))
}

func TestCategorySet(t *testing.T) {
	assert.Nil(t, categorySet(nil))
	assert.Equal(t, map[string]bool{"coordination": true, "llm": true},
		categorySet([]string{"coordination", "llm"}))
}
