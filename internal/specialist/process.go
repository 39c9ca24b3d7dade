package specialist

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"hivemind/internal/channel"
	"hivemind/internal/logging"
	"hivemind/internal/protocol"
	"hivemind/internal/tools"
)

// =============================================================================
// TASK EXECUTION
// =============================================================================

const contextWindow = 10 // prior messages folded into the model prompt

var (
	tempRe     = regexp.MustCompile(`\b(\d+)\s*([cf])\s+to\s+([cf])\b`)
	dmRe       = regexp.MustCompile(`(?i)dm me\s*["']?(.*?)["']?$`)
	greetingRe = regexp.MustCompile(`\b(hello|hi|hey)\b`)
)

// searchCues are task words that send the responder through web search.
var searchCues = []string{
	"search", "research", "find", "look up", "latest", "news",
	"url", "http", "website", "summarize", "arxiv", "paper",
}

// Process executes an assigned task: it posts a working status, serves the
// quick deterministic requests (unit conversion, DMs, greetings) directly,
// and routes everything else through tools and the language model. The
// result is delivered to the requesting user as a direct message and a
// completion marker is posted to the coordination thread. Failures are
// posted to the thread so the channel never goes silent.
//
// Safe for concurrent invocation; every call is independent.
func (s *Specialist) Process(ctx context.Context, task, userID, threadTS string, history []channel.Message) {
	logging.Specialist("[%s] processing %q for <@%s> (thread %s, %d context messages)",
		s.Name(), task, userID, threadTS, len(history))

	if err := s.execute(ctx, task, userID, threadTS, history); err != nil {
		logging.SpecialistError("[%s] task execution failed: %v", s.Name(), err)
		if _, perr := s.adapter.Post(ctx, s.channelID, protocol.ComposeProcessError(s.Name(), err), threadTS); perr != nil {
			logging.SpecialistError("[%s] could not post execution error: %v", s.Name(), perr)
		}
		return
	}
	logging.Specialist("[%s] task complete (thread %s)", s.Name(), threadTS)
}

func (s *Specialist) execute(ctx context.Context, task, userID, threadTS string, history []channel.Message) error {
	if _, err := s.adapter.Post(ctx, s.channelID, protocol.ComposeWorking(s.Name()), threadTS); err != nil {
		return fmt.Errorf("posting status: %w", err)
	}

	lower := strings.ToLower(task)

	if m := tempRe.FindStringSubmatch(lower); m != nil {
		return s.convertTemperature(ctx, m, userID, threadTS)
	}
	if strings.Contains(lower, "dm me") {
		return s.relayDM(ctx, task, userID, threadTS)
	}
	if greetingRe.MatchString(lower) {
		return s.greet(ctx, userID, threadTS)
	}

	answer := s.respond(ctx, task, history)
	dm := fmt.Sprintf("Regarding '%s':\n\n%s\n\n— %s", task, answer, s.Name())
	if _, err := s.adapter.Post(ctx, userID, dm, ""); err != nil {
		return fmt.Errorf("sending result: %w", err)
	}
	if _, err := s.adapter.Post(ctx, s.channelID, protocol.ComposeCompletedTask(s.Name()), threadTS); err != nil {
		return fmt.Errorf("posting completion: %w", err)
	}
	return nil
}

// convertTemperature serves "<N> c to f" style requests without any model.
// m is the tempRe match against the lowercased task.
func (s *Specialist) convertTemperature(ctx context.Context, m []string, userID, threadTS string) error {
	value, err := strconv.Atoi(m[1])
	if err != nil {
		return fmt.Errorf("parsing temperature value: %w", err)
	}
	from, to := strings.ToUpper(m[2]), strings.ToUpper(m[3])

	var line string
	switch {
	case from == "C" && to == "F":
		line = fmt.Sprintf("🌡️ %d°C = %.1f°F", value, float64(value)*9/5+32)
	case from == "F" && to == "C":
		line = fmt.Sprintf("🌡️ %d°F = %.1f°C", value, (float64(value)-32)*5/9)
	default:
		line = fmt.Sprintf("Same unit: %d°%s", value, from)
	}

	dm := fmt.Sprintf("Here is the conversion you requested:\n\n%s\n\n— %s", line, s.Name())
	if _, err := s.adapter.Post(ctx, userID, dm, ""); err != nil {
		return fmt.Errorf("sending conversion: %w", err)
	}
	_, err = s.adapter.Post(ctx, s.channelID, protocol.ComposeCompleted(s.Name(), "result", userID), threadTS)
	return err
}

// relayDM serves "dm me <text>" requests, defaulting to a hello when no text
// was given.
func (s *Specialist) relayDM(ctx context.Context, task, userID, threadTS string) error {
	message := fmt.Sprintf("Hello from %s!", s.Name())
	if m := dmRe.FindStringSubmatch(task); m != nil {
		if text := strings.TrimSpace(m[1]); text != "" {
			message = text
		}
	}

	dm := fmt.Sprintf("👋 %s\n\n— %s", message, s.Name())
	if _, err := s.adapter.Post(ctx, userID, dm, ""); err != nil {
		return fmt.Errorf("sending DM: %w", err)
	}
	_, err := s.adapter.Post(ctx, s.channelID, protocol.ComposeCompleted(s.Name(), "DM", userID), threadTS)
	return err
}

func (s *Specialist) greet(ctx context.Context, userID, threadTS string) error {
	dm := fmt.Sprintf("👋 Hello! I'm %s, your AI assistant. How can I help you today?\n\n— %s", s.Name(), s.Name())
	if _, err := s.adapter.Post(ctx, userID, dm, ""); err != nil {
		return fmt.Errorf("sending greeting: %w", err)
	}
	_, err := s.adapter.Post(ctx, s.channelID, protocol.ComposeCompleted(s.Name(), "greeting", userID), threadTS)
	return err
}

// respond produces the answer text for requests with no deterministic fast
// path: weather lookups answer from the forecast tool, informational
// requests pull web findings, and the language model writes the final reply.
// Tool and model failures degrade to an apologetic answer rather than an
// error, so the user still hears back.
func (s *Specialist) respond(ctx context.Context, task string, history []channel.Message) string {
	lower := strings.ToLower(task)

	if s.weather != nil && (strings.Contains(lower, "weather") || strings.Contains(lower, "forecast")) {
		report, err := s.weather.Current(ctx, tools.ExtractLocation(task))
		if err == nil {
			return report.Render()
		}
		logging.SpecialistError("[%s] weather lookup failed: %v", s.Name(), err)
	}

	var findings string
	if s.search != nil && containsAny(lower, searchCues) {
		results, err := s.search.Search(ctx, task, 3)
		if err != nil {
			logging.SpecialistError("[%s] web search failed: %v", s.Name(), err)
		} else if len(results) > 0 {
			findings = tools.FormatSearchResults(task, results)
		}
	}

	if s.llm == nil {
		if findings != "" {
			return "Here is what I found:\n\n" + findings
		}
		return fmt.Sprintf("I'm %s, running without a language model. I've noted your request: %q", s.Name(), task)
	}

	answer, err := s.llm.CompleteWithSystem(ctx, s.systemPrompt(), s.buildPrompt(task, history, findings))
	if err != nil {
		return fmt.Sprintf("I encountered an error while processing your request: %v", err)
	}
	answer = strings.TrimSpace(answer)
	if idx := strings.Index(strings.ToLower(answer), "the answer is"); idx >= 0 {
		answer = strings.TrimSpace(answer[idx+len("the answer is"):])
	}
	return answer
}

func (s *Specialist) systemPrompt() string {
	return fmt.Sprintf(
		"You are %s, a helpful AI assistant on a team of specialists. You were assigned this task because your specialties matched: %s. Reply directly and concisely; your reply is delivered to the requesting user as a direct message.",
		s.Name(), s.capabilities())
}

// buildPrompt folds the last few human messages and any web findings around
// the request.
func (s *Specialist) buildPrompt(task string, history []channel.Message, findings string) string {
	recent := history
	if len(recent) > contextWindow {
		recent = recent[len(recent)-contextWindow:]
	}
	var context strings.Builder
	for _, m := range recent {
		if m.BotID == "" && strings.TrimSpace(m.Text) != "" {
			fmt.Fprintf(&context, "User: %s\n", m.Text)
		}
	}
	contextStr := context.String()
	if contextStr == "" {
		contextStr = "(No previous context)"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "User's request: %s\n\n", task)
	fmt.Fprintf(&sb, "Recent conversation context:\n%s\n", contextStr)
	if findings != "" {
		fmt.Fprintf(&sb, "\nWeb findings to draw on:\n%s\n", findings)
	}
	sb.WriteString("\nWrite the reply to send to the user. Output only the reply text.")
	return sb.String()
}

func containsAny(text string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(text, cue) {
			return true
		}
	}
	return false
}
