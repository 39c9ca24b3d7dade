package specialist

import (
	"context"
	"strings"
	"testing"

	"hivemind/internal/channel"
	"hivemind/internal/protocol"
	"hivemind/internal/tools"
)

func postRequest(t *testing.T, hub *channel.Hub, task string, botIDs ...string) string {
	t.Helper()
	orch := hub.Client(orchUserID, orchBotID)
	ts, err := orch.Post(context.Background(), coordChannel,
		protocol.ComposeCoordinationRequest(humanUserID, task, botIDs), "")
	if err != nil {
		t.Fatalf("posting coordination request: %v", err)
	}
	return ts
}

func postAssignment(t *testing.T, hub *channel.Hub, botID, threadTS string) {
	t.Helper()
	orch := hub.Client(orchUserID, orchBotID)
	if _, err := orch.Post(context.Background(), coordChannel,
		protocol.ComposeAssignment(botID), threadTS); err != nil {
		t.Fatalf("posting assignment: %v", err)
	}
}

func TestAttach_EvaluationRequestPostsReport(t *testing.T) {
	hub := channel.NewHub()
	defer hub.Close()
	s := newTestSpecialist(t, hub, "Researcher", nil)
	stop := s.Attach(context.Background())
	defer stop()

	requestTS := postRequest(t, hub, "research quantum computing", s.UserID())

	want := `🧠 Researcher reporting: Confidence 90% for "research quantum computing"`
	waitFor(t, func() bool { return channelContains(hub, coordChannel, want) }, "confidence report")

	for _, m := range hub.History(coordChannel) {
		if strings.Contains(m.Text, "reporting:") && m.ThreadTS != requestTS {
			t.Errorf("Report threaded under %q, want the request %q", m.ThreadTS, requestTS)
		}
	}
}

// A request without the task marker is not answerable; it is dropped rather
// than evaluated against garbage.
func TestAttach_EvaluationRequestWithoutTaskIgnored(t *testing.T) {
	hub := channel.NewHub()
	defer hub.Close()
	s := newTestSpecialist(t, hub, "Researcher", nil)
	stop := s.Attach(context.Background())
	defer stop()

	orch := hub.Client(orchUserID, orchBotID)
	text := protocol.Mention(s.UserID()) + " please evaluate."
	if _, err := orch.Post(context.Background(), coordChannel, text, ""); err != nil {
		t.Fatalf("posting request: %v", err)
	}

	settle()
	if channelContains(hub, coordChannel, "reporting:") {
		t.Error("Markerless request should not produce a report")
	}
}

func TestAttach_IgnoresOtherChannelTraffic(t *testing.T) {
	hub := channel.NewHub()
	defer hub.Close()
	s := newTestSpecialist(t, hub, "Researcher", nil)
	stop := s.Attach(context.Background())
	defer stop()

	orch := hub.Client(orchUserID, orchBotID)
	text := protocol.ComposeCoordinationRequest(humanUserID, "research black holes", []string{s.UserID()})
	if _, err := orch.Post(context.Background(), "C_GENERAL", text, ""); err != nil {
		t.Fatalf("posting request: %v", err)
	}

	settle()
	if channelContains(hub, "C_GENERAL", "reporting:") {
		t.Error("Evaluation must only run in the coordination channel")
	}
}

func TestAttach_IgnoresNonOrchestratorBots(t *testing.T) {
	hub := channel.NewHub()
	defer hub.Close()
	s := newTestSpecialist(t, hub, "Researcher", nil)
	stop := s.Attach(context.Background())
	defer stop()

	impostor := hub.Client("UIMPOSTOR", "BIMPOSTOR")
	text := protocol.ComposeCoordinationRequest(humanUserID, "research black holes", []string{s.UserID()})
	if _, err := impostor.Post(context.Background(), coordChannel, text, ""); err != nil {
		t.Fatalf("posting request: %v", err)
	}

	settle()
	if channelContains(hub, coordChannel, "reporting:") {
		t.Error("Bot traffic from anyone but the orchestrator must be ignored")
	}
}

func TestAttach_AssignmentEndToEnd(t *testing.T) {
	hub := channel.NewHub()
	defer hub.Close()
	s := newTestSpecialist(t, hub, "Researcher", nil)
	stop := s.Attach(context.Background())
	defer stop()

	rootTS := postRequest(t, hub, "30c to f", s.UserID())
	postAssignment(t, hub, s.UserID(), rootTS)

	waitFor(t, func() bool {
		return channelContains(hub, coordChannel, "✅ Researcher completed – result sent to <@UHUMAN>")
	}, "completion marker")

	if !channelContains(hub, humanUserID, "🌡️ 30°C = 86.0°F") {
		t.Error("Requesting user never got the result DM")
	}
	for _, m := range hub.History(coordChannel) {
		if strings.Contains(m.Text, "working on task") && m.ThreadTS != rootTS {
			t.Errorf("Working status threaded under %q, want the root %q", m.ThreadTS, rootTS)
		}
	}
	if !s.Accepted(rootTS) {
		t.Error("Thread should be recorded as accepted")
	}
}

// A replayed assignment for a thread already taken must not run the task
// twice.
func TestAttach_DuplicateAssignmentIgnored(t *testing.T) {
	hub := channel.NewHub()
	defer hub.Close()
	s := newTestSpecialist(t, hub, "Researcher", nil)
	stop := s.Attach(context.Background())
	defer stop()

	rootTS := postRequest(t, hub, "30c to f", s.UserID())
	postAssignment(t, hub, s.UserID(), rootTS)
	postAssignment(t, hub, s.UserID(), rootTS)

	waitFor(t, func() bool {
		return channelContains(hub, coordChannel, "✅ Researcher completed – result sent to <@UHUMAN>")
	}, "completion marker")
	settle()

	if n := countContains(hub, coordChannel, "working on task"); n != 1 {
		t.Errorf("Task ran %d times, want exactly once", n)
	}
	if n := countContains(hub, coordChannel, "completed – result sent"); n != 1 {
		t.Errorf("Got %d completion markers, want exactly one", n)
	}
}

func TestAttach_AssignmentForPeerIgnored(t *testing.T) {
	hub := channel.NewHub()
	defer hub.Close()
	s := newTestSpecialist(t, hub, "Researcher", nil)
	stop := s.Attach(context.Background())
	defer stop()

	writer := profileByName(t, "Writer")
	rootTS := postRequest(t, hub, "write a story", s.UserID(), writer.UserID)
	postAssignment(t, hub, writer.UserID, rootTS)

	settle()
	if channelContains(hub, coordChannel, "Researcher working on task") {
		t.Error("Specialist took a peer's assignment")
	}
	if s.Accepted(rootTS) {
		t.Error("Peer assignment must not mark the thread accepted")
	}
}

func TestAttach_RedirectsMentionsOutsideCoordination(t *testing.T) {
	hub := channel.NewHub()
	defer hub.Close()
	s := newTestSpecialist(t, hub, "Researcher", nil)
	stop := s.Attach(context.Background())
	defer stop()

	human := hub.Client(humanUserID, "")
	rootTS, err := human.Post(context.Background(), "C_GENERAL",
		"hey "+protocol.Mention(s.UserID())+" can you help?", "")
	if err != nil {
		t.Fatalf("posting mention: %v", err)
	}

	want := "Please mention <@UORCH> for assistance. I work through the orchestrator."
	waitFor(t, func() bool { return channelContains(hub, "C_GENERAL", want) }, "redirect")

	for _, m := range hub.History("C_GENERAL") {
		if strings.Contains(m.Text, "Please mention") && m.ThreadTS != rootTS {
			t.Errorf("Redirect threaded under %q, want the mention %q", m.ThreadTS, rootTS)
		}
	}

	// Mentions from bots never get a redirect.
	impostor := hub.Client("UIMPOSTOR", "BIMPOSTOR")
	if _, err := impostor.Post(context.Background(), "C_GENERAL",
		"ping "+protocol.Mention(s.UserID()), ""); err != nil {
		t.Fatalf("posting bot mention: %v", err)
	}
	settle()
	if n := countContains(hub, "C_GENERAL", "Please mention"); n != 1 {
		t.Errorf("Got %d redirects, want exactly one", n)
	}
}

// The origin conversation registered for the thread is folded into the
// model prompt.
func TestAttach_OriginContextReachesPrompt(t *testing.T) {
	hub := channel.NewHub()
	defer hub.Close()

	human := hub.Client(humanUserID, "")
	originTS, err := human.Post(context.Background(), "C_GENERAL", "remember I prefer Celsius", "")
	if err != nil {
		t.Fatalf("posting origin message: %v", err)
	}

	dir := &fakeDirectory{refs: make(map[string]channel.ThreadRef)}
	model := &fakeLLM{reply: "Done."}
	s := newTestSpecialist(t, hub, "Writer", func(o *Options) {
		o.LLM = model
		o.Directory = dir
	})
	stop := s.Attach(context.Background())
	defer stop()

	rootTS := postRequest(t, hub, "write a limerick about the sea", s.UserID())
	dir.refs[rootTS] = channel.ThreadRef{ChannelID: "C_GENERAL", ThreadTS: originTS}
	postAssignment(t, hub, s.UserID(), rootTS)

	waitFor(t, func() bool {
		return channelContains(hub, coordChannel, "✅ Writer completed task")
	}, "completion marker")

	if !strings.Contains(model.lastUser, "User: remember I prefer Celsius") {
		t.Errorf("Origin context missing from prompt:\n%s", model.lastUser)
	}
}

// When the coordination thread cannot be re-fetched there is nothing to
// execute and nobody to report to; the assignment is dropped quietly.
func TestAttach_ReconstructionFailureStaysQuiet(t *testing.T) {
	hub := channel.NewHub()
	defer hub.Close()
	s := newTestSpecialist(t, hub, "Researcher", nil)
	stop := s.Attach(context.Background())
	defer stop()

	rootTS := postRequest(t, hub, "research something", s.UserID())
	hub.SetRepliesHook(func(channelID, threadTS string) error { return errBoom })
	postAssignment(t, hub, s.UserID(), rootTS)

	waitFor(t, func() bool { return s.Accepted(rootTS) }, "assignment acceptance")
	settle()

	if channelContains(hub, coordChannel, "working on task") {
		t.Error("Task must not start without a reconstructed request")
	}
	if channelContains(hub, coordChannel, "❌") {
		t.Error("Reconstruction failures are logged, not posted")
	}
}

type panicForecaster struct{}

func (panicForecaster) Current(ctx context.Context, location string) (*tools.WeatherReport, error) {
	panic(errBoom)
}

// A panic inside execution is caught, logged, and surfaced in the thread
// with the error's type, instead of crashing the process.
func TestAttach_PanicDuringAssignmentPostsError(t *testing.T) {
	hub := channel.NewHub()
	defer hub.Close()
	s := newTestSpecialist(t, hub, "Grok", func(o *Options) { o.Weather = panicForecaster{} })
	stop := s.Attach(context.Background())
	defer stop()

	rootTS := postRequest(t, hub, "what's the weather in Boston", s.UserID())
	postAssignment(t, hub, s.UserID(), rootTS)

	want := "❌ Grok error: *errors.errorString: boom"
	waitFor(t, func() bool { return channelContains(hub, coordChannel, want) }, "panic report")

	if channelContains(hub, humanUserID, "Current weather") {
		t.Error("No result DM should follow a panic")
	}
}

func TestOnline_PostsAnnouncement(t *testing.T) {
	hub := channel.NewHub()
	defer hub.Close()
	s := newTestSpecialist(t, hub, "Researcher", nil)

	if err := s.Online(context.Background()); err != nil {
		t.Fatalf("Online failed: %v", err)
	}
	if !channelContains(hub, coordChannel, "🤖 Researcher online and ready!") {
		t.Error("Readiness announcement missing")
	}
}
