package chat

import (
	"context"
	"sync"
)

// Reply is a message delivered through the Loopback transport.
type Reply struct {
	ChatID int64
	Text   string
}

// Loopback is an in-memory transport. Updates pushed into it are returned by
// Poll and replies are kept for inspection.
type Loopback struct {
	in chan Update

	mu      sync.Mutex
	replies []Reply
	sent    int
	typing  map[int64]int
	notify  chan struct{}
	// Limit caps retained replies; the oldest are dropped first.
	Limit int
	// SendErr, when set, is called before each send; a non-nil result fails it.
	SendErr func(chatID int64) error
}

// DefaultReplyLimit is the number of replies a Loopback retains by default.
const DefaultReplyLimit = 1024

func NewLoopback() *Loopback {
	return &Loopback{in: make(chan Update, 64), typing: map[int64]int{}, notify: make(chan struct{}), Limit: DefaultReplyLimit}
}

// Push queues an update for the next Poll.
func (l *Loopback) Push(ctx context.Context, u Update) error {
	select {
	case l.in <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loopback) Poll(ctx context.Context) ([]Update, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case u := <-l.in:
		out := []Update{u}
		for {
			select {
			case u := <-l.in:
				out = append(out, u)
			default:
				return out, nil
			}
		}
	}
}

func (l *Loopback) Send(ctx context.Context, chatID int64, text string) error {
	if l.SendErr != nil {
		if err := l.SendErr(chatID); err != nil {
			return err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.replies = append(l.replies, Reply{ChatID: chatID, Text: text})
	if l.Limit > 0 && len(l.replies) > l.Limit {
		drop := len(l.replies) - l.Limit
		l.replies = append(l.replies[:0:0], l.replies[drop:]...)
	}
	l.sent++
	close(l.notify)
	l.notify = make(chan struct{})
	return nil
}

func (l *Loopback) Typing(ctx context.Context, chatID int64) error {
	l.mu.Lock()
	l.typing[chatID]++
	l.mu.Unlock()
	return nil
}

// Replies returns the replies sent to chatID, or to every chat when chatID is zero.
func (l *Loopback) Replies(chatID int64) []Reply {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Reply
	for _, r := range l.replies {
		if chatID == 0 || r.ChatID == chatID {
			out = append(out, r)
		}
	}
	return out
}

// TypingCount reports how many typing indicators chatID received.
func (l *Loopback) TypingCount(chatID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.typing[chatID]
}

// WaitReplies blocks until at least n replies in total were sent or ctx is
// done, and returns the retained replies.
func (l *Loopback) WaitReplies(ctx context.Context, n int) ([]Reply, error) {
	for {
		l.mu.Lock()
		if l.sent >= n {
			out := append([]Reply(nil), l.replies...)
			l.mu.Unlock()
			return out, nil
		}
		ch := l.notify
		l.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return l.Replies(0), ctx.Err()
		}
	}
}
