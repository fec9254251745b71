package router

import (
	"regexp"
	"strings"

	"inferd/internal/jobs"
)

// Local is a command answered without touching the queue.
type Local string

const (
	LocalNone         Local = ""
	LocalStart        Local = "start"
	LocalHelp         Local = "help"
	LocalStatus       Local = "status"
	LocalHistory      Local = "history"
	LocalIntroduction Local = "introduction"
)

// Intent is the classification of one raw message.
type Intent struct {
	Kind  jobs.Kind
	Local Local
	// Command is the slash command without the leading '/' or bot suffix; empty for free text.
	Command string
	// Args is the text after the command, or the whole message for free text.
	Args string
	URL  string
}

var (
	urlPattern  = regexp.MustCompile(`https?://[^\s<>"']+`)
	apiPattern  = regexp.MustCompile(`(?i)\b(apis?|endpoints?|openapi|swagger|rest\s+service)\b`)
	codeMarkers = []string{
		"```", "func ", "def ", "class ", "import ", "#include", "package main",
		"console.log", "function ", "public static", "traceback (most recent call last)",
	}
	searchPhrases = []string{"search query", "search queries", "find sites", "search for", "dork"}
	introPhrases  = []string{"who are you", "introduce", "what are you", "your name", "about you", "what can you do"}
)

var commandKinds = map[string]jobs.Kind{
	"ask":     jobs.KindGeneral,
	"site":    jobs.KindWebsite,
	"analyze": jobs.KindWebsite,
	"code":    jobs.KindCode,
	"api":     jobs.KindAPI,
	"search":  jobs.KindSearch,
}

var localCommands = map[string]Local{
	"start":   LocalStart,
	"help":    LocalHelp,
	"status":  LocalStatus,
	"history": LocalHistory,
}

// Classify maps a raw chat message to a job kind or a local command. A slash
// command the router does not know yields an UnrecognizedCommandError.
func Classify(raw string) (Intent, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "/") {
		return classifyCommand(text)
	}
	in := Intent{Args: text, URL: firstURL(text)}
	lower := strings.ToLower(text)
	switch {
	case in.URL != "":
		in.Kind = jobs.KindWebsite
	case containsAny(lower, codeMarkers):
		in.Kind = jobs.KindCode
	case apiPattern.MatchString(text):
		in.Kind = jobs.KindAPI
	case containsAny(lower, searchPhrases):
		in.Kind = jobs.KindSearch
	case containsAny(lower, introPhrases):
		in.Local = LocalIntroduction
	default:
		in.Kind = jobs.KindGeneral
	}
	return in, nil
}

func classifyCommand(text string) (Intent, error) {
	head, args, _ := strings.Cut(text, " ")
	if i := strings.IndexAny(head, "\n\t"); i >= 0 {
		args = head[i:] + " " + args
		head = head[:i]
	}
	cmd := strings.ToLower(strings.TrimPrefix(head, "/"))
	// Telegram group chats address commands as /cmd@botname.
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	in := Intent{Command: cmd, Args: strings.TrimSpace(args)}
	if l, ok := localCommands[cmd]; ok {
		in.Local = l
		return in, nil
	}
	kind, ok := commandKinds[cmd]
	if !ok {
		return Intent{}, &UnrecognizedCommandError{Command: "/" + cmd}
	}
	in.Kind = kind
	in.URL = firstURL(in.Args)
	return in, nil
}

func firstURL(s string) string {
	u := urlPattern.FindString(s)
	return strings.TrimRight(u, ".,;:!?)]}")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// searchKeyword strips request filler words from a free-text search request.
func searchKeyword(s string) string {
	filler := map[string]bool{
		"dork": true, "dorks": true, "generate": true, "create": true, "find": true, "search": true,
		"for": true, "query": true, "queries": true, "sites": true, "me": true, "some": true, "please": true,
	}
	var kept []string
	for _, w := range strings.Fields(s) {
		if !filler[strings.ToLower(strings.Trim(w, ".,!?"))] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}
