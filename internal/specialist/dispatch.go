package specialist

import (
	"context"
	"errors"
	"fmt"

	"hivemind/internal/channel"
	"hivemind/internal/logging"
	"hivemind/internal/protocol"
)

// =============================================================================
// EVENT DISPATCH
// =============================================================================

// Attach subscribes the specialist to the adapter's event stream. Handlers
// run on the adapter's delivery goroutine; evaluation and execution are spun
// off onto worker goroutines bound to ctx. The returned stop function
// unsubscribes and waits for in-flight work to finish.
func (s *Specialist) Attach(ctx context.Context) (stop func()) {
	cancel := s.adapter.Subscribe(func(msg channel.Message) {
		s.handleMessage(ctx, msg)
	})
	return func() {
		cancel()
		s.inflight.Wait()
	}
}

// Online announces readiness in the coordination channel.
func (s *Specialist) Online(ctx context.Context) error {
	_, err := s.adapter.Post(ctx, s.channelID, protocol.ComposeOnline(s.Name()), "")
	return err
}

// handleMessage routes one delivered message. Traffic outside the
// coordination channel is only ever answered with a redirect; inside it,
// bot posts are ignored unless they come from the orchestrator, which is the
// only identity allowed to drive evaluation and assignment.
func (s *Specialist) handleMessage(ctx context.Context, msg channel.Message) {
	if msg.ChannelID != s.channelID {
		s.maybeRedirect(ctx, msg)
		return
	}
	if msg.BotID != "" && msg.UserID != s.orchestrator {
		return
	}

	switch {
	case protocol.IsEvaluationRequestFor(msg.Text, s.UserID()):
		task, ok := protocol.ParseTask(msg.Text)
		if !ok {
			logging.DispatchError("[%s] evaluation request without a task marker ignored (ts %s)", s.Name(), msg.TS)
			return
		}
		logging.Dispatch("[%s] evaluating: %q", s.Name(), task)
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			defer s.logRecover("evaluation")
			s.evaluateAndReport(ctx, task, msg.TS)
		}()

	case protocol.IsAssignmentFor(msg.Text, s.UserID()):
		root := msg.Root()
		if !s.accept(root) {
			logging.Dispatch("[%s] duplicate assignment for thread %s ignored", s.Name(), root)
			return
		}
		logging.Dispatch("[%s] received assignment in thread %s", s.Name(), root)
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			defer s.postRecover(ctx, root)
			s.runAssignment(ctx, root)
		}()
	}
}

// evaluateAndReport computes confidence and posts the report as a reply to
// the evaluation request.
func (s *Specialist) evaluateAndReport(ctx context.Context, task, requestTS string) {
	_, confidence := s.Evaluate(task)
	reply := protocol.ComposeConfidenceReport(s.Name(), confidence, task)
	if _, err := s.adapter.Post(ctx, s.channelID, reply, requestTS); err != nil {
		logging.DispatchError("[%s] failed to post evaluation: %v", s.Name(), err)
		return
	}
	logging.Dispatch("[%s] posted confidence %d%%", s.Name(), confidence)
}

// runAssignment rebuilds the task from the coordination thread and executes
// it. Reconstruction failures are logged without posting: the thread either
// vanished or carries no request root, and in both cases there is no one
// sensible to talk to.
func (s *Specialist) runAssignment(ctx context.Context, threadTS string) {
	task, userID, history, err := s.reconstructRequest(ctx, threadTS)
	if err != nil {
		logging.DispatchError("[%s] could not reconstruct request for thread %s: %v", s.Name(), threadTS, err)
		return
	}
	s.Process(ctx, task, userID, threadTS, history)
}

// reconstructRequest re-fetches the coordination thread, finds the request
// root (the first message carrying both the origin marker and the task), and
// gathers the execution context.
func (s *Specialist) reconstructRequest(ctx context.Context, threadTS string) (task, userID string, history []channel.Message, err error) {
	msgs, err := s.adapter.ListReplies(ctx, s.channelID, threadTS)
	if err != nil {
		return "", "", nil, fmt.Errorf("fetching coordination thread: %w", err)
	}
	for _, m := range msgs {
		user, okUser := protocol.ParseRequestUser(m.Text)
		t, okTask := protocol.ParseTask(m.Text)
		if okUser && okTask {
			return t, user, s.gatherContext(ctx, msgs, threadTS), nil
		}
	}
	return "", "", nil, errors.New("no request root found in coordination thread")
}

// gatherContext combines the coordination thread with the conversation the
// request originally came from, when the directory knows it. Origin fetch
// failures degrade to coordination-only context.
func (s *Specialist) gatherContext(ctx context.Context, coordination []channel.Message, threadTS string) []channel.Message {
	history := make([]channel.Message, len(coordination))
	copy(history, coordination)

	if s.directory == nil {
		return history
	}
	origin, ok := s.directory.Lookup(threadTS)
	if !ok {
		return history
	}
	msgs, err := s.adapter.ListReplies(ctx, origin.ChannelID, origin.ThreadTS)
	if err != nil {
		logging.DispatchError("[%s] could not fetch origin thread context: %v", s.Name(), err)
		return history
	}
	if len(msgs) > s.contextLimit {
		msgs = msgs[:s.contextLimit]
	}
	return append(history, msgs...)
}

// maybeRedirect answers direct human mentions outside the coordination
// channel by pointing at the orchestrator.
func (s *Specialist) maybeRedirect(ctx context.Context, msg channel.Message) {
	if msg.BotID != "" || !protocol.MentionsBot(msg.Text, s.UserID()) {
		return
	}
	if _, err := s.adapter.Post(ctx, msg.ChannelID, protocol.ComposeRedirect(s.orchestrator), msg.Root()); err != nil {
		logging.DispatchError("[%s] failed to post redirect: %v", s.Name(), err)
	}
}

// logRecover keeps a panicking worker from taking the process down; the
// collector treats the missing report as a non-response.
func (s *Specialist) logRecover(phase string) {
	if r := recover(); r != nil {
		logging.DispatchError("[%s] panic during %s: %v", s.Name(), phase, r)
	}
}

// postRecover additionally surfaces the failure in the thread, so an
// assignment never dies silently.
func (s *Specialist) postRecover(ctx context.Context, threadTS string) {
	r := recover()
	if r == nil {
		return
	}
	logging.DispatchError("[%s] panic during assignment: %v", s.Name(), r)
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("%v", r)
	}
	if _, perr := s.adapter.Post(ctx, s.channelID, protocol.ComposeSpecialistError(s.Name(), err), threadTS); perr != nil {
		logging.DispatchError("[%s] could not post panic report: %v", s.Name(), perr)
	}
}
