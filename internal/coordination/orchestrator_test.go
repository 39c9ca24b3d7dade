package coordination

import (
	"context"
	"strings"
	"testing"

	"hivemind/internal/channel"
	"hivemind/internal/config"
	"hivemind/internal/specialist"
)

func newTestOrchestrator(t *testing.T, hub *channel.Hub, cfg config.CoordinationConfig) *Orchestrator {
	t.Helper()
	orch, err := New(Options{
		Adapter:  hub.Client(orchUserID, orchBotID),
		UserID:   orchUserID,
		Channel:  coordChannel,
		Registry: mustRegistry(t, config.DefaultSpecialistProfiles()),
		Config:   cfg,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return orch
}

// newStack wires a full deployment onto one hub: the orchestrator plus one
// live specialist per profile, all attached and ready.
func newStack(t *testing.T, cfg config.CoordinationConfig, profiles []config.SpecialistProfile) (*channel.Hub, *Orchestrator, func()) {
	t.Helper()
	hub := channel.NewHub()
	orch, err := New(Options{
		Adapter:  hub.Client(orchUserID, orchBotID),
		UserID:   orchUserID,
		Channel:  coordChannel,
		Registry: mustRegistry(t, profiles),
		Config:   cfg,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	var stops []func()
	negotiators := make([]Negotiator, 0, len(profiles))
	for _, p := range profiles {
		sp, err := specialist.New(specialist.Options{
			Profile:      p,
			Adapter:      hub.Client(p.UserID, p.BotID),
			Channel:      coordChannel,
			Orchestrator: orchUserID,
			Directory:    orch,
		})
		if err != nil {
			t.Fatalf("building specialist %s: %v", p.Name, err)
		}
		negotiators = append(negotiators, sp)
		stops = append(stops, sp.Attach(ctx))
	}
	orch.SetNegotiators(negotiators)
	stops = append(stops, orch.Attach(ctx))

	cleanup := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
		hub.Close()
	}
	return hub, orch, cleanup
}

// lowProfiles builds a keyword-free roster whose every evaluation lands on
// the given base confidence, forcing the low-confidence paths.
func lowProfiles(base int) []config.SpecialistProfile {
	names := []string{"Alpha", "Beta", "Gamma"}
	profiles := make([]config.SpecialistProfile, 0, len(names))
	for _, name := range names {
		upper := strings.ToUpper(name)
		profiles = append(profiles, config.SpecialistProfile{
			AgentIdentity:  config.AgentIdentity{Name: name, UserID: "U" + upper, BotID: "B" + upper},
			BaseConfidence: base,
		})
	}
	return profiles
}

func TestNew_ValidatesOptions(t *testing.T) {
	hub := channel.NewHub()
	defer hub.Close()
	reg := mustRegistry(t, config.DefaultSpecialistProfiles())

	valid := func() Options {
		return Options{
			Adapter:  hub.Client(orchUserID, orchBotID),
			UserID:   orchUserID,
			Channel:  coordChannel,
			Registry: reg,
			Config:   defaultCfg(),
		}
	}
	if _, err := New(valid()); err != nil {
		t.Fatalf("valid options rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Options)
	}{
		{"missing adapter", func(o *Options) { o.Adapter = nil }},
		{"missing user ID", func(o *Options) { o.UserID = "" }},
		{"missing channel", func(o *Options) { o.Channel = "" }},
		{"missing registry", func(o *Options) { o.Registry = nil }},
		{"bad config", func(o *Options) { o.Config.MinConfidence = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := valid()
			tc.mutate(&opts)
			if _, err := New(opts); err == nil {
				t.Fatal("New accepted broken options")
			}
		})
	}
}

func TestOrchestrator_Online(t *testing.T) {
	hub := channel.NewHub()
	defer hub.Close()

	orch := newTestOrchestrator(t, hub, defaultCfg())
	if err := orch.Online(context.Background()); err != nil {
		t.Fatalf("Online failed: %v", err)
	}
	if !channelContains(hub, coordChannel, "🤖 Orchestrator online and ready!") {
		t.Fatal("online announcement missing")
	}
}

func TestHandleMention_OpensCoordinationThread(t *testing.T) {
	hub := channel.NewHub()
	defer hub.Close()

	orch := newTestOrchestrator(t, hub, defaultCfg())
	ctx, cancel := context.WithCancel(context.Background())
	stop := orch.Attach(ctx)

	human := hub.Client(humanUserID, "")
	mentionTS, err := human.Post(context.Background(), "C_GENERAL", "<@UORCH> ask <@UGROK> about the forecast", "")
	if err != nil {
		t.Fatalf("posting mention: %v", err)
	}

	waitFor(t, func() bool { return len(hub.History(coordChannel)) > 0 }, "coordination thread")
	root := hub.History(coordChannel)[0]

	if !strings.Contains(root.Text, "Request from <@UHUMAN>") {
		t.Fatalf("root lacks the requester: %q", root.Text)
	}
	// The orchestrator's own mention is stripped and the specialist mention
	// reads as a display name.
	if !strings.Contains(root.Text, `Task: "ask Grok about the forecast"`) {
		t.Fatalf("root lacks the cleaned task: %q", root.Text)
	}
	if !strings.Contains(root.Text, "<@URESEARCH> <@UWRITER> <@UGROK> please evaluate.") {
		t.Fatalf("root lacks the evaluation summons: %q", root.Text)
	}
	if root.ThreadTS != "" {
		t.Fatal("coordination request must open a new thread")
	}

	reacted := false
	for _, emoji := range hub.Reactions("C_GENERAL", mentionTS) {
		if emoji == "thinking_face" {
			reacted = true
		}
	}
	if !reacted {
		t.Fatal("mention did not get the thinking reaction")
	}

	if got := orch.PendingCount(); got != 1 {
		t.Fatalf("PendingCount = %d, want 1", got)
	}
	ref, ok := orch.Lookup(root.TS)
	if !ok || ref.ChannelID != "C_GENERAL" || ref.ThreadTS != mentionTS {
		t.Fatalf("Lookup = %+v %v, want the mention's thread", ref, ok)
	}
	task, ok := orch.Request(root.TS)
	if !ok || task.UserID != humanUserID || task.Text != "ask Grok about the forecast" {
		t.Fatalf("Request = %+v %v", task, ok)
	}

	cancel()
	stop()
	if got := orch.PendingCount(); got != 0 {
		t.Fatalf("PendingCount = %d after shutdown, want 0", got)
	}
}

func TestHandleMention_IgnoresEmptyRequest(t *testing.T) {
	hub := channel.NewHub()
	defer hub.Close()

	orch := newTestOrchestrator(t, hub, defaultCfg())
	orch.HandleMention(context.Background(), channel.Message{
		TS:        "1.000001",
		ChannelID: "C_GENERAL",
		Text:      "<@UORCH>   ",
		UserID:    humanUserID,
	})

	if got := len(hub.History(coordChannel)); got != 0 {
		t.Fatalf("coordination messages = %d, want none", got)
	}
	if got := len(hub.Reactions("C_GENERAL", "1.000001")); got != 0 {
		t.Fatal("empty mention must not be reacted to")
	}
	if got := orch.PendingCount(); got != 0 {
		t.Fatalf("PendingCount = %d, want 0", got)
	}
}

func TestOrchestrator_IgnoresBotMentions(t *testing.T) {
	hub := channel.NewHub()
	defer hub.Close()

	orch := newTestOrchestrator(t, hub, defaultCfg())
	stop := orch.Attach(context.Background())
	defer stop()

	impostor := hub.Client("UIMPOSTOR", "BIMPOSTOR")
	if _, err := impostor.Post(context.Background(), "C_GENERAL", "<@UORCH> do something", ""); err != nil {
		t.Fatalf("posting bot mention: %v", err)
	}

	settle()
	if got := len(hub.History(coordChannel)); got != 0 {
		t.Fatalf("coordination messages = %d, want bots ignored", got)
	}
}

func TestHandleMention_GathersThreadContext(t *testing.T) {
	hub := channel.NewHub()
	defer hub.Close()

	orch := newTestOrchestrator(t, hub, defaultCfg())
	ctx, cancel := context.WithCancel(context.Background())
	stop := orch.Attach(ctx)

	human := hub.Client(humanUserID, "")
	rootTS, err := human.Post(context.Background(), "C_GENERAL", "planning the offsite", "")
	if err != nil {
		t.Fatalf("posting thread root: %v", err)
	}
	if _, err := human.Post(context.Background(), "C_GENERAL", "we picked Boston", rootTS); err != nil {
		t.Fatalf("posting reply: %v", err)
	}
	if _, err := human.Post(context.Background(), "C_GENERAL", "<@UORCH> summarize the plan so far", rootTS); err != nil {
		t.Fatalf("posting threaded mention: %v", err)
	}

	waitFor(t, func() bool { return len(hub.History(coordChannel)) > 0 }, "coordination thread")
	coordTS := hub.History(coordChannel)[0].TS

	task, ok := orch.Request(coordTS)
	if !ok {
		t.Fatal("no task recorded")
	}
	if task.Text != "summarize the plan so far" {
		t.Fatalf("task.Text = %q", task.Text)
	}
	// A threaded mention anchors the origin at the enclosing thread's root.
	if task.Origin.ChannelID != "C_GENERAL" || task.Origin.ThreadTS != rootTS {
		t.Fatalf("task.Origin = %+v, want the enclosing thread", task.Origin)
	}
	if len(task.Context) != 3 || task.Context[0].Text != "planning the offsite" {
		t.Fatalf("task.Context = %d messages, first %q; want the whole thread", len(task.Context), task.Context[0].Text)
	}

	cancel()
	stop()
}

func TestOrchestrator_RetiresTaskOnTerminalStatus(t *testing.T) {
	hub := channel.NewHub()
	defer hub.Close()

	orch := newTestOrchestrator(t, hub, defaultCfg())
	ctx, cancel := context.WithCancel(context.Background())
	stop := orch.Attach(ctx)

	human := hub.Client(humanUserID, "")
	if _, err := human.Post(context.Background(), "C_GENERAL", "<@UORCH> tend the garden", ""); err != nil {
		t.Fatalf("posting mention: %v", err)
	}
	waitFor(t, func() bool { return len(hub.History(coordChannel)) > 0 }, "coordination thread")
	coordTS := hub.History(coordChannel)[0].TS
	if got := orch.PendingCount(); got != 1 {
		t.Fatalf("PendingCount = %d, want 1", got)
	}

	// A specialist's error marker in the thread retires the task record even
	// while the coordination run is still polling.
	grok := hub.Client("UGROK", "BGROK")
	if _, err := grok.Post(context.Background(), coordChannel, "❌ Grok error: something broke", coordTS); err != nil {
		t.Fatalf("posting terminal status: %v", err)
	}
	waitFor(t, func() bool { return orch.PendingCount() == 0 }, "task record retirement")

	cancel()
	stop()
}

// =============================================================================
// END TO END
// =============================================================================

func TestCoordination_AssignsConfidentSpecialist(t *testing.T) {
	hub, orch, cleanup := newStack(t, fastCfg(), config.DefaultSpecialistProfiles())
	defer cleanup()

	human := hub.Client(humanUserID, "")
	if _, err := human.Post(context.Background(), "C_GENERAL", "<@UORCH> what's the weather in Boston", ""); err != nil {
		t.Fatalf("posting mention: %v", err)
	}

	waitFor(t, func() bool {
		return channelContains(hub, coordChannel, "ASSIGNED: <@UGROK> - Please handle this request.")
	}, "assignment to Grok")

	if !channelContains(hub, coordChannel, "🧠 Researcher reporting: Confidence 50%") {
		t.Fatal("Researcher's report missing")
	}
	if !channelContains(hub, coordChannel, "🧠 Writer reporting: Confidence 50%") {
		t.Fatal("Writer's report missing")
	}
	if !channelContains(hub, coordChannel, "🧠 Grok reporting: Confidence 96%") {
		t.Fatal("Grok's report missing")
	}
	// 96% clears the discussion threshold, so nobody negotiated.
	if got := countContains(hub, coordChannel, "🤔"); got != 0 {
		t.Fatalf("negotiation updates = %d, want none", got)
	}

	waitFor(t, func() bool {
		return channelContains(hub, coordChannel, "✅ Grok completed task")
	}, "Grok's completion")
	if !channelContains(hub, coordChannel, "Grok working on task...") {
		t.Fatal("working status missing")
	}
	if !channelContains(hub, humanUserID, "Regarding 'what's the weather in Boston':") {
		t.Fatal("result was not delivered to the requester")
	}

	waitFor(t, func() bool { return orch.PendingCount() == 0 }, "task record retirement")
}

func TestCoordination_NegotiationAssignsSoftWinner(t *testing.T) {
	hub, orch, cleanup := newStack(t, fastCfg(), lowProfiles(40))
	defer cleanup()

	human := hub.Client(humanUserID, "")
	if _, err := human.Post(context.Background(), "C_GENERAL", "<@UORCH> tend the garden gnomes", ""); err != nil {
		t.Fatalf("posting mention: %v", err)
	}

	waitFor(t, func() bool {
		return channelContains(hub, coordChannel, "ASSIGNED: <@UALPHA>")
	}, "assignment to Alpha")

	if got := countContains(hub, coordChannel, "reporting: Confidence 40%"); got != 3 {
		t.Fatalf("initial reports at 40%% = %d, want 3", got)
	}
	// Three rounds across three specialists, nobody reaching the target.
	if got := countContains(hub, coordChannel, "🤔"); got != 9 {
		t.Fatalf("negotiation updates = %d, want 9", got)
	}
	if !channelContains(hub, coordChannel, "Initial assessment based on my capability match.") {
		t.Fatal("opening negotiation reasoning missing")
	}
	if !channelContains(hub, coordChannel, "Holding my initial assessment.") {
		t.Fatal("holding reasoning missing")
	}

	waitFor(t, func() bool {
		return channelContains(hub, coordChannel, "✅ Alpha completed task")
	}, "Alpha's completion")
	if !channelContains(hub, humanUserID, "I'm Alpha, running without a language model") {
		t.Fatal("offline answer was not delivered to the requester")
	}

	waitFor(t, func() bool { return orch.PendingCount() == 0 }, "task record retirement")
}

func TestCoordination_NegotiationDeclines(t *testing.T) {
	hub, orch, cleanup := newStack(t, fastCfg(), lowProfiles(25))
	defer cleanup()

	human := hub.Client(humanUserID, "")
	if _, err := human.Post(context.Background(), "C_GENERAL", "<@UORCH> tend the garden gnomes", ""); err != nil {
		t.Fatalf("posting mention: %v", err)
	}

	waitFor(t, func() bool {
		return channelContains(hub, coordChannel, "(Highest: Alpha with 25%, threshold: 30%)")
	}, "decline notice")

	if got := countContains(hub, coordChannel, "🤔"); got != 9 {
		t.Fatalf("negotiation updates = %d, want 9", got)
	}
	waitFor(t, func() bool { return orch.PendingCount() == 0 }, "task record retirement")

	settle()
	if got := countContains(hub, coordChannel, "ASSIGNED:"); got != 0 {
		t.Fatal("nobody may be assigned on a decline")
	}
	if got := countContains(hub, coordChannel, "working on task"); got != 0 {
		t.Fatal("no specialist may execute on a decline")
	}
}
