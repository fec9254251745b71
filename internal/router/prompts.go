package router

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"inferd/internal/common/fsutil"
)

// TruncationMarker is appended to any embedded artifact that was cut short.
const TruncationMarker = "\n[... truncated ...]"

// Truncate cuts s to at most n runes and appends TruncationMarker when it did.
// A non-positive n disables truncation.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + TruncationMarker
}

const (
	systemWebsite = "You analyze web pages. Describe the page's purpose, its forms and inputs, " +
		"the endpoints it talks to and any tokens or auth flow, then answer the user's request."
	systemCode   = "You are a careful code reviewer. Explain what the code does, point out bugs and risky constructs, and propose fixes."
	systemAPI    = "You write API designs. Produce an OpenAPI 3 YAML document followed by a short usage example."
	systemSearch = "You craft precise web search queries using operators such as site:, inurl:, intitle: and filetype:. " +
		"Return one query per line followed by a one-line explanation."
)

func websitePrompt(pageURL, title, text, request string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TARGET URL: %s\n", pageURL)
	if title != "" {
		fmt.Fprintf(&b, "PAGE TITLE: %s\n", title)
	}
	fmt.Fprintf(&b, "\nPAGE TEXT:\n%s\n\nUSER REQUEST: %s\n", text, request)
	return b.String()
}

func codePrompt(fileName, code, request string) string {
	if request == "" {
		request = "Complete analysis"
	}
	var b strings.Builder
	if fileName != "" {
		fmt.Fprintf(&b, "File: %s\n", fileName)
	}
	fmt.Fprintf(&b, "User request: %s\n\nContent:\n%s\n", request, code)
	return b.String()
}

func apiPrompt(description, pageURL, pageText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Design an API for: %s\n", description)
	if pageText != "" {
		fmt.Fprintf(&b, "\nReference page %s:\n%s\n", pageURL, pageText)
	}
	return b.String()
}

func searchPrompt(keyword string) string {
	return fmt.Sprintf("Generate 8 focused search queries for the topic %q.", keyword)
}

func generalPrompt(question string, kb []fsutil.KnowledgeFile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "USER: %s\n", question)
	if len(kb) > 0 {
		b.WriteString("\nKNOWLEDGE BASE:\n")
		for i, f := range kb {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "Example from %s:\n%s\n", f.Name, f.Content)
		}
	}
	b.WriteString("\nRespond helpfully and concisely. Provide working code if applicable.")
	return b.String()
}

// WelcomeText is the reply to /start.
const WelcomeText = `Hi! I queue your requests against a local language model and answer them one at a time.

Commands:
/ask <question> - general question
/site <url> [request] - fetch a page and analyze it
/code <snippet> - review code (or upload a file)
/api <description> - draft an API design
/search <topic> - generate search queries
/status - backend and queue status
/history - your recent requests

You can also just write naturally; URLs, code and search requests are detected.`

// HelpText is the reply to /help.
const HelpText = WelcomeText

// IntroductionText answers "who are you" style messages.
const IntroductionText = `I'm an assistant backed by a self-hosted language model. ` +
	`I can analyze web pages, review code you paste or upload, draft API designs and craft search queries. ` +
	`Requests are served in order, so during busy periods you may wait a little.`
