package chat

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"inferd/internal/jobs"
	"inferd/internal/router"
)

func TestScenarioThreeChatsFIFO(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inputs := []Update{
		{ChatID: 1, Text: "/ask what is a mutex"},
		{ChatID: 2, Text: "/site https://example.com"},
		{ChatID: 3, Text: "/code\nfunc main() { panic(1) }"},
	}
	for i, u := range inputs {
		res := f.d.Handle(ctx, u)
		if res.Outcome != OutcomeQueued || res.Position != i+1 {
			t.Fatalf("update %d: %+v", i, res)
		}
	}
	if f.lb.TypingCount(2) != 1 {
		t.Fatalf("typing indicators for chat 2: %d", f.lb.TypingCount(2))
	}
	f.startScheduler(t)

	replies := waitReplies(t, f.lb, 3)
	perChat := map[int64]int{}
	for _, r := range replies {
		perChat[r.ChatID]++
		if !strings.Contains(r.Text, "Model: test-model") || !strings.Contains(r.Text, "Queue position: ") {
			t.Fatalf("reply without footer: %q", r.Text)
		}
	}
	if perChat[1] != 1 || perChat[2] != 1 || perChat[3] != 1 {
		t.Fatalf("replies per chat=%v", perChat)
	}
	started := f.comp.started()
	if len(started) != 3 || !strings.HasPrefix(started[0], "USER: what is a mutex") ||
		!strings.HasPrefix(started[1], "TARGET URL: https://example.com") || !strings.HasPrefix(started[2], "User request") {
		t.Fatalf("start order=%q", started)
	}
	time.Sleep(20 * time.Millisecond)
	if n := len(f.lb.Replies(0)); n != 3 {
		t.Fatalf("expected exactly one reply per job, got %d", n)
	}
}

func TestUnrecognizedCommandLeavesQueueUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if res := f.d.Handle(ctx, Update{ChatID: 1, Text: "/ask hello"}); res.Outcome != OutcomeQueued {
		t.Fatalf("seed job: %+v", res)
	}
	before := f.sched.Depth()

	res := f.d.Handle(ctx, Update{ChatID: 9, Text: "/frobnicate"})
	if res.Outcome != OutcomeRejected || !router.IsUnrecognizedCommand(res.Err) {
		t.Fatalf("result=%+v", res)
	}
	if f.sched.Depth() != before {
		t.Fatalf("depth changed %d -> %d", before, f.sched.Depth())
	}
	replies := f.lb.Replies(9)
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "Unknown command /frobnicate") {
		t.Fatalf("replies=%+v", replies)
	}
	f.startScheduler(t)
	waitReplies(t, f.lb, 2)
}

func TestLocalCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, text := range []string{"/start", "/status", "/history", "who are you?"} {
		if res := f.d.Handle(ctx, Update{ChatID: 4, Text: text}); res.Outcome != OutcomeReplied {
			t.Fatalf("%q: %+v", text, res)
		}
	}
	replies := f.lb.Replies(4)
	if len(replies) != 4 {
		t.Fatalf("replies=%d", len(replies))
	}
	if replies[0].Text != router.WelcomeText || !strings.Contains(replies[1].Text, "Queue: 0 waiting, 0 running") {
		t.Fatalf("replies=%+v", replies)
	}
	if f.sched.Depth() != 0 {
		t.Fatalf("local commands must not enqueue")
	}
}

func TestDocumentErrorRejected(t *testing.T) {
	f := newFixture(t)
	res := f.d.Handle(context.Background(), Update{ChatID: 5, DocumentName: "big.bin", DocumentErr: errors.New("too large")})
	if res.Outcome != OutcomeRejected {
		t.Fatalf("result=%+v", res)
	}
	if r := f.lb.Replies(5); len(r) != 1 || !strings.Contains(r[0].Text, "too large") {
		t.Fatalf("replies=%+v", r)
	}
}

func TestQueueFullReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		f.d.Handle(ctx, Update{ChatID: 1, Text: "/ask q"})
	}
	res := f.d.Handle(ctx, Update{ChatID: 6, Text: "/ask one more"})
	if res.Outcome != OutcomeRejected || !jobs.IsQueueFull(res.Err) {
		t.Fatalf("result=%+v", res)
	}
	if r := f.lb.Replies(6); len(r) != 1 || !strings.Contains(r[0].Text, "queue is full") {
		t.Fatalf("replies=%+v", r)
	}
	f.startScheduler(t)
	waitReplies(t, f.lb, 11)
}

func TestReplyRetriedThenDelivered(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	f.lb.SendErr = func(int64) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}
	f.d.Handle(context.Background(), Update{ChatID: 7, Text: "/help"})
	if calls.Load() != 3 || len(f.lb.Replies(7)) != 1 {
		t.Fatalf("calls=%d replies=%d", calls.Load(), len(f.lb.Replies(7)))
	}
}

func TestReplyGivesUpAfterThreeAttempts(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	f.lb.SendErr = func(int64) error {
		calls.Add(1)
		return errors.New("chat unreachable")
	}
	f.d.Handle(context.Background(), Update{ChatID: 8, Text: "/help"})
	if calls.Load() != 3 || len(f.lb.Replies(8)) != 0 {
		t.Fatalf("calls=%d replies=%d", calls.Load(), len(f.lb.Replies(8)))
	}
}

func TestShutdownRepliesToPendingJobs(t *testing.T) {
	f := newFixture(t)
	res := f.d.Handle(context.Background(), Update{ChatID: 3, Text: "/ask pending"})
	if res.Outcome != OutcomeQueued {
		t.Fatalf("result=%+v", res)
	}
	f.sched.Close()
	replies := waitReplies(t, f.lb, 1)
	if !strings.Contains(replies[0].Text, "shutting down") {
		t.Fatalf("reply=%q", replies[0].Text)
	}
	f.d.Wait()
}

func TestRunPollsAndStops(t *testing.T) {
	f := newFixture(t)
	f.startScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.d.Run(ctx) }()

	if err := f.lb.Push(ctx, Update{ChatID: 11, Text: "/ask via run"}); err != nil {
		t.Fatal(err)
	}
	replies := waitReplies(t, f.lb, 1)
	if replies[0].ChatID != 11 || !strings.Contains(replies[0].Text, "done: USER: via run") {
		t.Fatalf("reply=%+v", replies[0])
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHandleAfterRunReturnedIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.d.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	res := f.d.Handle(context.Background(), Update{ChatID: 12, Text: "/ask too late"})
	if res.Outcome != OutcomeRejected || !errors.Is(res.Err, jobs.ErrClosed) || res.Job != nil {
		t.Fatalf("result=%+v", res)
	}
	if f.sched.Depth() != 0 {
		t.Fatalf("depth=%d", f.sched.Depth())
	}
	replies := f.lb.Replies(12)
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "shutting down") {
		t.Fatalf("replies=%+v", replies)
	}
	f.d.Wait()
}

func TestSplitMessage(t *testing.T) {
	text := strings.Repeat("a", 2500) + "\n" + strings.Repeat("b", 2500) + strings.Repeat("c", 4500)
	chunks := SplitMessage(text, MaxMessageChars)
	if len(chunks) != 3 {
		t.Fatalf("chunks=%d", len(chunks))
	}
	if chunks[0] != strings.Repeat("a", 2500)+"\n" {
		t.Fatalf("first chunk should break after the newline, len=%d", len(chunks[0]))
	}
	if strings.Join(chunks, "") != text {
		t.Fatal("chunks do not reassemble the message")
	}
	for i, c := range chunks {
		if len([]rune(c)) > MaxMessageChars {
			t.Fatalf("chunk %d has %d runes", i, len([]rune(c)))
		}
	}
	if got := SplitMessage("short", MaxMessageChars); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short message split: %q", got)
	}
}
