// Package protocol implements the coordination-channel wire formats.
//
// Every message that flows through a coordination thread is plain text; this
// package owns the exact strings (compose side) and their recognizers (parse
// side) so that no other package touches raw wire text. Parsing a message
// yields a tagged Event: EvaluationRequest, ConfidenceReport, Assignment, or
// Other. Messages that match no known pattern are Other, never an error --
// a shared channel carries plenty of traffic that is not ours.
package protocol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// EVENT UNION
// =============================================================================

// Kind discriminates parsed coordination messages.
type Kind string

const (
	KindEvaluationRequest Kind = "evaluation_request"
	KindConfidenceReport  Kind = "confidence_report"
	KindAssignment        Kind = "assignment"
	KindOther             Kind = "other"
)

// Event is one parsed coordination-channel message.
type Event interface {
	Kind() Kind
}

// EvaluationRequest is the coordination root message: it names the requesting
// user, carries the task text, and mentions every specialist that should
// report a confidence score.
type EvaluationRequest struct {
	UserID   string   // requesting user, empty if the origin marker is absent
	Task     string   // free-text task, may contain quotes and newlines
	Mentions []string // bot IDs mentioned anywhere in the message
}

// ConfidenceReport is one specialist's self-reported confidence.
type ConfidenceReport struct {
	Specialist string // word-character name token
	Confidence int    // clamped to [0,100] on parse
}

// Assignment is the terminal decision message naming the winner.
type Assignment struct {
	BotID string // bot user ID of the assigned specialist
}

// Other is any message that matches no coordination pattern.
type Other struct {
	Text string
}

func (*EvaluationRequest) Kind() Kind { return KindEvaluationRequest }
func (*ConfidenceReport) Kind() Kind  { return KindConfidenceReport }
func (*Assignment) Kind() Kind        { return KindAssignment }
func (*Other) Kind() Kind             { return KindOther }

var (
	_ Event = (*EvaluationRequest)(nil)
	_ Event = (*ConfidenceReport)(nil)
	_ Event = (*Assignment)(nil)
	_ Event = (*Other)(nil)
)

// =============================================================================
// PARSING
// =============================================================================

const (
	taskMarker    = `Task: "`
	evaluateToken = "please evaluate"
)

var (
	// Leading emoji is optional on parse, always emitted on compose.
	reportRe  = regexp.MustCompile(`(?i)(?:🧠\s*)?(\w+)\s+reporting:\s+Confidence\s+(\d+)%`)
	userRe    = regexp.MustCompile(`Request from <@(\w+)>`)
	assignRe  = regexp.MustCompile(`ASSIGNED: <@(\w+)>`)
	mentionRe = regexp.MustCompile(`<@(\w+)>`)
)

// Parse classifies a raw message. Probe order matters: confidence reports and
// assignments are replies inside a thread whose root is itself an evaluation
// request, so the more specific patterns are tried first.
func Parse(text string) Event {
	if rep, ok := ParseConfidenceReport(text); ok {
		return rep
	}
	if asn, ok := ParseAssignment(text); ok {
		return asn
	}
	if req, ok := ParseEvaluationRequest(text); ok {
		return req
	}
	return &Other{Text: text}
}

// ParseConfidenceReport extracts "<name> reporting: Confidence <NN>%".
// Confidence is clamped into [0,100]; a value too large for an int is
// treated as no match.
func ParseConfidenceReport(text string) (*ConfidenceReport, bool) {
	m := reportRe.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	conf, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, false
	}
	return &ConfidenceReport{Specialist: m[1], Confidence: ClampConfidence(conf)}, true
}

// ParseAssignment extracts the winner from "ASSIGNED: <@bot> - ...".
func ParseAssignment(text string) (*Assignment, bool) {
	m := assignRe.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	return &Assignment{BotID: m[1]}, true
}

// ParseEvaluationRequest recognizes the coordination root message. The task
// text may embed quotes and newlines, so extraction runs from the first
// `Task: "` marker to the last double quote in the message rather than
// stopping at the first quote.
func ParseEvaluationRequest(text string) (*EvaluationRequest, bool) {
	if !strings.Contains(text, evaluateToken) {
		return nil, false
	}
	task, ok := ParseTask(text)
	if !ok {
		return nil, false
	}
	req := &EvaluationRequest{Task: task, Mentions: ParseMentions(text)}
	if user, ok := ParseRequestUser(text); ok {
		req.UserID = user
	}
	return req, true
}

// ParseTask pulls the task text out of any message carrying the
// `Task: "<text>"` marker.
func ParseTask(text string) (string, bool) {
	start := strings.Index(text, taskMarker)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(taskMarker):]
	end := strings.LastIndex(rest, `"`)
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// ParseRequestUser pulls the requesting user out of the origin marker
// "Request from <@user>".
func ParseRequestUser(text string) (string, bool) {
	m := userRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseMentions returns every <@id> token in order of appearance. The
// requesting user's own mention is included; callers match against bot IDs.
func ParseMentions(text string) []string {
	ms := mentionRe.FindAllStringSubmatch(text, -1)
	if len(ms) == 0 {
		return nil
	}
	ids := make([]string, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m[1])
	}
	return ids
}

// MentionsBot reports whether text contains a mention of the given bot ID.
func MentionsBot(text, botID string) bool {
	return strings.Contains(text, Mention(botID))
}

// IsEvaluationRequestFor reports whether text asks the given bot to evaluate.
func IsEvaluationRequestFor(text, botID string) bool {
	return strings.Contains(text, evaluateToken) && MentionsBot(text, botID)
}

// IsAssignmentFor reports whether text assigns the task to the given bot.
func IsAssignmentFor(text, botID string) bool {
	return strings.Contains(text, "ASSIGNED: "+Mention(botID))
}

// ClampConfidence forces a parsed confidence into [0,100].
func ClampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// =============================================================================
// COMPOSITION
// =============================================================================

// Mention renders a user or bot ID as a channel mention token.
func Mention(id string) string {
	return "<@" + id + ">"
}

// ComposeCoordinationRequest builds the coordination root message. The task
// is embedded verbatim between quotes; ParseTask's last-quote rule keeps the
// round trip lossless even when the task itself contains quotes.
func ComposeCoordinationRequest(userID, task string, botIDs []string) string {
	mentions := make([]string, len(botIDs))
	for i, id := range botIDs {
		mentions[i] = Mention(id)
	}
	return fmt.Sprintf("Request from %s | Task: \"%s\"\n\n%s %s.",
		Mention(userID), task, strings.Join(mentions, " "), evaluateToken)
}

// ComposeConfidenceReport builds a specialist's confidence reply.
func ComposeConfidenceReport(name string, confidence int, task string) string {
	return fmt.Sprintf("🧠 %s reporting: Confidence %d%% for \"%s\"", name, confidence, task)
}

// ComposeAssignment builds the terminal assignment message.
func ComposeAssignment(botID string) string {
	return fmt.Sprintf("ASSIGNED: %s - Please handle this request.", Mention(botID))
}

// ComposeNegotiationUpdate builds the visible per-round negotiation post.
// Round is 1-based in the rendered text.
func ComposeNegotiationUpdate(name string, round, confidence int, reasoning string) string {
	return fmt.Sprintf("🤔 %s (Round %d): %d%%\n%s", name, round, confidence, reasoning)
}

// ComposeDecline explains why nobody was assigned despite responses.
func ComposeDecline(bestName string, bestConfidence, minConfidence int) string {
	return fmt.Sprintf("No specialist confident enough to handle this request. (Highest: %s with %d%%, threshold: %d%%)",
		bestName, bestConfidence, minConfidence)
}

// NoResponseText is posted when not a single specialist reported in time.
const NoResponseText = "No specialists responded to evaluation request."

// ComposeAssignmentError reports a coordination-run failure into the thread.
func ComposeAssignmentError(err error) string {
	return fmt.Sprintf("Error during assignment: %v", err)
}

// =============================================================================
// STATUS TRAFFIC
// =============================================================================

// ComposeOnline is each bot's startup readiness announcement.
func ComposeOnline(name string) string {
	return fmt.Sprintf("🤖 %s online and ready!", name)
}

// ComposeWorking marks the start of task execution.
func ComposeWorking(name string) string {
	return fmt.Sprintf("%s working on task...", name)
}

// ComposeCompleted marks successful execution with a deliverable sent to the
// requesting user. item names what was delivered: "result", "DM", "greeting".
func ComposeCompleted(name, item, userID string) string {
	return fmt.Sprintf("✅ %s completed – %s sent to %s", name, item, Mention(userID))
}

// ComposeCompletedTask is the generic completion marker.
func ComposeCompletedTask(name string) string {
	return fmt.Sprintf("✅ %s completed task", name)
}

// ComposeSpecialistError reports a failure in assignment handling. The
// error's Go type is included the way operators expect from the status
// channel.
func ComposeSpecialistError(name string, err error) string {
	return fmt.Sprintf("❌ %s error: %T: %v", name, err, err)
}

// ComposeProcessError reports a failure inside task execution.
func ComposeProcessError(name string, err error) string {
	return fmt.Sprintf("❌ %s error: %v", name, err)
}

// ComposeRedirect points users who mention a specialist directly at the
// orchestrator.
func ComposeRedirect(orchestratorUserID string) string {
	return fmt.Sprintf("Please mention %s for assistance. I work through the orchestrator.", Mention(orchestratorUserID))
}

// IsTerminalStatus reports whether text is a specialist's completion or
// error marker, the two messages that end an assigned task's lifecycle.
func IsTerminalStatus(text string) bool {
	return strings.HasPrefix(text, "✅ ") || strings.HasPrefix(text, "❌ ")
}
