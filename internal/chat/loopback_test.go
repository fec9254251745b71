package chat

import (
	"context"
	"testing"
	"time"
)

func TestLoopbackKeepsNewestReplies(t *testing.T) {
	lb := NewLoopback()
	lb.Limit = 3
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		if err := lb.Send(ctx, i, "reply"); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	got := lb.Replies(0)
	if len(got) != 3 {
		t.Fatalf("retained %d replies, want 3", len(got))
	}
	for i, r := range got {
		if r.ChatID != int64(i+3) {
			t.Fatalf("reply %d chat=%d, want %d", i, r.ChatID, i+3)
		}
	}

	wctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	out, err := lb.WaitReplies(wctx, 5)
	if err != nil {
		t.Fatalf("WaitReplies counts dropped replies: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("WaitReplies returned %d", len(out))
	}
}

func TestLoopbackDefaultLimit(t *testing.T) {
	lb := NewLoopback()
	for i := 0; i < DefaultReplyLimit+10; i++ {
		_ = lb.Send(context.Background(), 1, "x")
	}
	if n := len(lb.Replies(1)); n != DefaultReplyLimit {
		t.Fatalf("retained %d", n)
	}
}
