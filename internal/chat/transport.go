package chat

import (
	"context"
	"unicode/utf8"
)

// Update is one inbound chat message.
type Update struct {
	// ID is the transport's update identifier; zero when the transport has none.
	ID     int64
	ChatID int64
	Text   string
	// Document is the text of an attached file. DocumentErr is set when the
	// attachment could not be retrieved.
	Document     string
	DocumentName string
	DocumentErr  error
}

// Transport receives updates and delivers replies.
type Transport interface {
	// Poll blocks until at least one update is available, ctx is done or the
	// transport fails.
	Poll(ctx context.Context) ([]Update, error)
	Send(ctx context.Context, chatID int64, text string) error
}

// Typer is implemented by transports that can show a "typing" indicator.
type Typer interface {
	Typing(ctx context.Context, chatID int64) error
}

// MaxMessageChars is the longest single message the chat transports send.
const MaxMessageChars = 4000

// SplitMessage cuts text into chunks of at most limit runes, preferring to
// break after a newline in the second half of a chunk.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var chunks []string
	r := []rune(text)
	for len(r) > limit {
		cut := limit
		for i := limit - 1; i >= limit/2; i-- {
			if r[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(r[:cut]))
		r = r[cut:]
	}
	if len(r) > 0 {
		chunks = append(chunks, string(r))
	}
	return chunks
}
