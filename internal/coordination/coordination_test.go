package coordination

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"hivemind/internal/channel"
	"hivemind/internal/config"
	"hivemind/internal/protocol"
	"hivemind/internal/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	coordChannel = "C_COORD"
	orchUserID   = "UORCH"
	orchBotID    = "BORCH"
	humanUserID  = "UHUMAN"
)

var errBoom = errors.New("boom")

// =============================================================================
// FAKES
// =============================================================================

// fakeClock advances instantly on Sleep, so deadline arithmetic can be
// asserted exactly without wall-clock waits.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// scriptedNegotiator replays canned confidences turn by turn, holding the
// last score once the script runs out. It records the transcript it was
// shown on each call.
type scriptedNegotiator struct {
	name   string
	scores []int
	reason string
	err    error

	calls int
	seen  [][]protocol.NegotiationTurn
}

func (s *scriptedNegotiator) Name() string { return s.name }

func (s *scriptedNegotiator) CollaborativeEvaluate(ctx context.Context, task string, history []protocol.NegotiationTurn) (int, string, error) {
	s.seen = append(s.seen, append([]protocol.NegotiationTurn(nil), history...))
	s.calls++
	if s.err != nil {
		return 0, "", s.err
	}
	idx := s.calls - 1
	if idx >= len(s.scores) {
		idx = len(s.scores) - 1
	}
	return s.scores[idx], s.reason, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func defaultCfg() config.CoordinationConfig {
	cfg := config.DefaultCoordinationConfig()
	cfg.Channel = coordChannel
	return cfg
}

// fastCfg trims the tuned production delays so end-to-end tests run against
// the real clock without dragging.
func fastCfg() config.CoordinationConfig {
	cfg := defaultCfg()
	cfg.EvaluationTimeout = "3s"
	cfg.InitialDelay = "50ms"
	cfg.RoundPause = "20ms"
	return cfg
}

func mustRegistry(t *testing.T, profiles []config.SpecialistProfile) *registry.Registry {
	t.Helper()
	reg, err := registry.FromProfiles(profiles)
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}
	return reg
}

// seedRoot opens a coordination thread the way the orchestrator would and
// returns its timestamp.
func seedRoot(t *testing.T, hub *channel.Hub, task string) string {
	t.Helper()
	orch := hub.Client(orchUserID, orchBotID)
	text := protocol.ComposeCoordinationRequest(humanUserID, task, []string{"URESEARCH", "UWRITER", "UGROK"})
	ts, err := orch.Post(context.Background(), coordChannel, text, "")
	if err != nil {
		t.Fatalf("seeding coordination thread: %v", err)
	}
	return ts
}

// postReport drops one confidence report into a coordination thread under
// the given specialist identity.
func postReport(t *testing.T, hub *channel.Hub, userID, botID, name string, confidence int, task, rootTS string) {
	t.Helper()
	client := hub.Client(userID, botID)
	text := protocol.ComposeConfidenceReport(name, confidence, task)
	if _, err := client.Post(context.Background(), coordChannel, text, rootTS); err != nil {
		t.Fatalf("posting %s's report: %v", name, err)
	}
}

// channelContains reports whether any message in the channel carries substr.
func channelContains(hub *channel.Hub, channelID, substr string) bool {
	for _, m := range hub.History(channelID) {
		if strings.Contains(m.Text, substr) {
			return true
		}
	}
	return false
}

func countContains(hub *channel.Hub, channelID, substr string) int {
	n := 0
	for _, m := range hub.History(channelID) {
		if strings.Contains(m.Text, substr) {
			n++
		}
	}
	return n
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// settle gives async handlers a moment when asserting something did NOT
// happen.
func settle() {
	time.Sleep(150 * time.Millisecond)
}
