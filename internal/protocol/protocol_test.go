package protocol

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeCoordinationRequest(t *testing.T) {
	got := ComposeCoordinationRequest("U123", "what's the weather in Boston", []string{"B1", "B2", "B3"})
	want := "Request from <@U123> | Task: \"what's the weather in Boston\"\n\n<@B1> <@B2> <@B3> please evaluate."
	assert.Equal(t, want, got)
}

func TestParseEvaluationRequest(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		text := ComposeCoordinationRequest("U123", "research quantum computing", []string{"B1", "B2"})
		req, ok := ParseEvaluationRequest(text)
		require.True(t, ok)
		assert.Equal(t, "U123", req.UserID)
		assert.Equal(t, "research quantum computing", req.Task)
		assert.Equal(t, []string{"U123", "B1", "B2"}, req.Mentions)
	})

	t.Run("task with embedded quotes", func(t *testing.T) {
		task := `summarize the paper "Attention Is All You Need" please`
		text := ComposeCoordinationRequest("U1", task, []string{"B1"})
		req, ok := ParseEvaluationRequest(text)
		require.True(t, ok)
		assert.Equal(t, task, req.Task)
	})

	t.Run("task with embedded newlines", func(t *testing.T) {
		task := "write a haiku about:\nrain\nand trains"
		text := ComposeCoordinationRequest("U1", task, []string{"B1"})
		req, ok := ParseEvaluationRequest(text)
		require.True(t, ok)
		assert.Equal(t, task, req.Task)
	})

	t.Run("no evaluate token", func(t *testing.T) {
		_, ok := ParseEvaluationRequest(`Request from <@U1> | Task: "hello"`)
		assert.False(t, ok)
	})

	t.Run("no task marker", func(t *testing.T) {
		_, ok := ParseEvaluationRequest("<@B1> please evaluate.")
		assert.False(t, ok)
	})
}

func TestParseConfidenceReport(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		text := ComposeConfidenceReport("Grok", 96, "what's the weather in Boston")
		rep, ok := ParseConfidenceReport(text)
		require.True(t, ok)
		assert.Equal(t, "Grok", rep.Specialist)
		assert.Equal(t, 96, rep.Confidence)
	})

	t.Run("emoji optional", func(t *testing.T) {
		rep, ok := ParseConfidenceReport(`Writer reporting: Confidence 95% for "a poem"`)
		require.True(t, ok)
		assert.Equal(t, "Writer", rep.Specialist)
		assert.Equal(t, 95, rep.Confidence)
	})

	t.Run("case insensitive", func(t *testing.T) {
		rep, ok := ParseConfidenceReport(`Writer REPORTING: confidence 42% for "x"`)
		require.True(t, ok)
		assert.Equal(t, 42, rep.Confidence)
	})

	t.Run("clamps above 100", func(t *testing.T) {
		rep, ok := ParseConfidenceReport(`Grok reporting: Confidence 250% for "x"`)
		require.True(t, ok)
		assert.Equal(t, 100, rep.Confidence)
	})

	t.Run("rejects overflow", func(t *testing.T) {
		_, ok := ParseConfidenceReport(`Grok reporting: Confidence 99999999999999999999% for "x"`)
		assert.False(t, ok)
	})

	t.Run("unrelated chatter", func(t *testing.T) {
		_, ok := ParseConfidenceReport("lunch anyone?")
		assert.False(t, ok)
	})
}

func TestParseAssignment(t *testing.T) {
	text := ComposeAssignment("B42")
	assert.Equal(t, "ASSIGNED: <@B42> - Please handle this request.", text)

	asn, ok := ParseAssignment(text)
	require.True(t, ok)
	assert.Equal(t, "B42", asn.BotID)

	assert.True(t, IsAssignmentFor(text, "B42"))
	assert.False(t, IsAssignmentFor(text, "B43"))
}

func TestParse_Dispatch(t *testing.T) {
	cases := []struct {
		name string
		text string
		kind Kind
	}{
		{"report", ComposeConfidenceReport("Grok", 50, "x"), KindConfidenceReport},
		{"assignment", ComposeAssignment("B1"), KindAssignment},
		{"request", ComposeCoordinationRequest("U1", "x", []string{"B1"}), KindEvaluationRequest},
		{"negotiation update", ComposeNegotiationUpdate("Grok", 2, 55, "peers defer"), KindOther},
		{"status", ComposeWorking("Grok"), KindOther},
		{"chatter", "completely unrelated", KindOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, Parse(tc.text).Kind())
		})
	}
}

func TestIsEvaluationRequestFor(t *testing.T) {
	text := ComposeCoordinationRequest("U1", "hello", []string{"B1", "B2"})
	assert.True(t, IsEvaluationRequestFor(text, "B1"))
	assert.True(t, IsEvaluationRequestFor(text, "B2"))
	assert.False(t, IsEvaluationRequestFor(text, "B9"))
}

func TestParseTask_LastQuoteWins(t *testing.T) {
	task, ok := ParseTask(`Request from <@U1> | Task: "say "hi" twice"`)
	require.True(t, ok)
	assert.Equal(t, `say "hi" twice`, task)
}

func TestStatusMessages(t *testing.T) {
	assert.Equal(t, "🤖 Grok online and ready!", ComposeOnline("Grok"))
	assert.Equal(t, "Grok working on task...", ComposeWorking("Grok"))
	assert.Equal(t, "✅ Grok completed – result sent to <@U7>", ComposeCompleted("Grok", "result", "U7"))
	assert.Equal(t, "✅ Grok completed – DM sent to <@U7>", ComposeCompleted("Grok", "DM", "U7"))
	assert.Equal(t, "✅ Grok completed task", ComposeCompletedTask("Grok"))
	assert.Equal(t, "❌ Grok error: boom", ComposeProcessError("Grok", errors.New("boom")))
	assert.Equal(t,
		"Please mention <@UORCH> for assistance. I work through the orchestrator.",
		ComposeRedirect("UORCH"))
	assert.Equal(t,
		"No specialist confident enough to handle this request. (Highest: Writer with 40%, threshold: 30%)",
		ComposeDecline("Writer", 40, 30))
	assert.Equal(t, "Error during assignment: boom", ComposeAssignmentError(errors.New("boom")))

	errText := ComposeSpecialistError("Grok", fmt.Errorf("fetch failed"))
	assert.Contains(t, errText, "❌ Grok error:")
	assert.Contains(t, errText, "fetch failed")
}

func TestIsTerminalStatus(t *testing.T) {
	assert.True(t, IsTerminalStatus(ComposeCompletedTask("Grok")))
	assert.True(t, IsTerminalStatus(ComposeCompleted("Grok", "result", "U7")))
	assert.True(t, IsTerminalStatus(ComposeProcessError("Grok", errors.New("boom"))))
	assert.False(t, IsTerminalStatus(ComposeWorking("Grok")))
	assert.False(t, IsTerminalStatus(ComposeOnline("Grok")))
	assert.False(t, IsTerminalStatus("✅"))
	assert.False(t, IsTerminalStatus("plain message"))
}

func TestComposeNegotiationUpdate(t *testing.T) {
	got := ComposeNegotiationUpdate("Researcher", 2, 55, "Writer sounds stronger here")
	assert.Equal(t, "🤔 Researcher (Round 2): 55%\nWriter sounds stronger here", got)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0, ClampConfidence(-5))
	assert.Equal(t, 0, ClampConfidence(0))
	assert.Equal(t, 73, ClampConfidence(73))
	assert.Equal(t, 100, ClampConfidence(100))
	assert.Equal(t, 100, ClampConfidence(140))
}

func TestFormatNegotiationHistory(t *testing.T) {
	assert.Equal(t, NoDiscussionText, FormatNegotiationHistory(nil))

	turns := []NegotiationTurn{
		{Round: 1, Specialist: "Researcher", Confidence: 40, Reasoning: "Weak keyword match."},
		{Round: 1, Specialist: "Writer", Confidence: 35, Reasoning: "Not a writing task."},
	}
	want := "Researcher: 40% - Weak keyword match.\nWriter: 35% - Not a writing task."
	assert.Equal(t, want, FormatNegotiationHistory(turns))
}
