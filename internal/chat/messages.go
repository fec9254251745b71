package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"inferd/internal/fetcher"
	"inferd/internal/inference"
	"inferd/internal/jobs"
	"inferd/internal/router"
	"inferd/pkg/types"
)

const maxDetailChars = 400

func detail(err error) string {
	s := err.Error()
	if utf8.RuneCountInString(s) <= maxDetailChars {
		return s
	}
	return string([]rune(s)[:maxDetailChars]) + "..."
}

// errorMessage turns an error into the text a chat user sees.
func errorMessage(err error) string {
	var (
		unknown  *router.UnrecognizedCommandError
		missing  *router.MissingArgumentError
		disabled *router.FeatureDisabledError
		nav      *fetcher.NavigationError
		timeout  *inference.TimeoutError
		genErr   *inference.Error
	)
	switch {
	case errors.As(err, &unknown):
		return fmt.Sprintf("Unknown command %s. Send /help to see what I can do.", unknown.Command)
	case errors.As(err, &missing):
		return fmt.Sprintf("%s needs a %s. Send /help for usage.", missing.Command, missing.Argument)
	case errors.As(err, &disabled):
		return fmt.Sprintf("Sorry, %s is disabled on this server.", disabled.Feature)
	case fetcher.IsFetchTimeout(err):
		return "The page took too long to load. Please try again later."
	case errors.As(err, &nav):
		return "I could not load that page: " + nav.Reason
	case jobs.IsQueueFull(err):
		return "The queue is full right now. Please try again in a few minutes."
	case errors.Is(err, jobs.ErrClosed):
		return "The service is shutting down, so your request was not processed."
	case jobs.IsQueueRetryExceeded(err):
		return "The model backend is restarting and did not recover in time. Please try again shortly."
	case errors.As(err, &timeout):
		return fmt.Sprintf("The model took too long to answer (limit %s). Try a smaller request.", timeout.After)
	case errors.As(err, &genErr):
		return "The model failed to answer: " + detail(genErr)
	default:
		return "Something went wrong: " + detail(err)
	}
}

// jobReply is the single reply for a terminal job.
func jobReply(o jobs.Outcome) string {
	switch o.Status {
	case jobs.StatusSucceeded:
		return fmt.Sprintf("%s\n\nResponse time: %.2fs • Model: %s • Queue position: %d",
			o.Text, o.Elapsed.Seconds(), o.Model, o.Position)
	case jobs.StatusTimedOut:
		if o.Err != nil {
			return errorMessage(o.Err)
		}
		return "The model took too long to answer. Try a smaller request."
	default:
		if o.Err == nil {
			return "Something went wrong: the request failed without details."
		}
		return errorMessage(o.Err)
	}
}

func statusText(b *types.BackendStatus, depth, running int) string {
	var s strings.Builder
	if b != nil {
		fmt.Fprintf(&s, "Backend: %s", b.State)
		if b.ActiveModel != "" {
			fmt.Fprintf(&s, " (model %s", b.ActiveModel)
			if b.Fallback {
				s.WriteString(", fallback")
			}
			s.WriteString(")")
		}
		if b.Restarts > 0 {
			fmt.Fprintf(&s, ", %d restarts", b.Restarts)
		}
		s.WriteString("\n")
	}
	fmt.Fprintf(&s, "Queue: %d waiting, %d running", depth, running)
	return s.String()
}

func historyText(snaps []jobs.Snapshot) string {
	if len(snaps) == 0 {
		return "No requests recorded yet."
	}
	var s strings.Builder
	s.WriteString("Your recent requests:")
	for _, sn := range snaps {
		fmt.Fprintf(&s, "\n%s  %s  %s  %s", sn.CreatedAt.UTC().Format(time.DateTime), sn.Kind, sn.Status,
			sn.FinishedAt.Sub(sn.CreatedAt).Round(100*time.Millisecond))
	}
	return s.String()
}
