package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"inferd/internal/config"
)

// TelegramConfig configures the Bot API long-poll transport.
type TelegramConfig struct {
	Token       string
	APIURL      string
	PollTimeout time.Duration
	// MaxDocumentBytes bounds attachment downloads.
	MaxDocumentBytes int64
	Logger           zerolog.Logger
}

func TelegramConfigFrom(c config.TelegramConfig, log zerolog.Logger) TelegramConfig {
	return TelegramConfig{Token: c.Token, APIURL: c.APIURL, PollTimeout: c.PollTimeout.D(), Logger: log}
}

// APIError is a Bot API call answered with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Telegram is a Bot API transport using getUpdates long polling.
type Telegram struct {
	cfg    TelegramConfig
	bot    *tgbotapi.BotAPI
	http   *http.Client
	log    zerolog.Logger
	offset int
}

var setBotLogger sync.Once

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.telegram.org"
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if cfg.MaxDocumentBytes <= 0 {
		cfg.MaxDocumentBytes = 1 << 20
	}
	t := &Telegram{
		cfg:  cfg,
		http: &http.Client{},
		log:  cfg.Logger.With().Str("component", "telegram").Logger(),
	}
	setBotLogger.Do(func() {
		tgbotapi.SetLogger(botLogger{t.log})
	})
	// Built directly rather than through NewBotAPI, which calls getMe and
	// would need the network at construction. Identify does that on Run.
	t.bot = &tgbotapi.BotAPI{Token: cfg.Token, Client: t.http, Buffer: 100}
	t.bot.SetAPIEndpoint(cfg.APIURL + "/bot%s/%s")
	t.bot.Debug = t.log.GetLevel() <= zerolog.TraceLevel
	return t, nil
}

// botLogger routes the library's debug output through zerolog.
type botLogger struct{ log zerolog.Logger }

func (l botLogger) Println(v ...any) { l.log.Trace().Msg(strings.TrimSpace(fmt.Sprintln(v...))) }
func (l botLogger) Printf(format string, v ...any) {
	l.log.Trace().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// ctxClient binds every request of one API call to ctx.
type ctxClient struct {
	ctx context.Context
	c   *http.Client
}

func (c ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.c.Do(req.WithContext(c.ctx))
}

// api returns a copy of the bot whose requests honour ctx.
func (t *Telegram) api(ctx context.Context) *tgbotapi.BotAPI {
	b := *t.bot
	b.Client = ctxClient{ctx: ctx, c: t.http}
	return &b
}

// wrap maps library errors to APIError and strips the token from transport
// errors, which embed the request URL.
func (t *Telegram) wrap(ctx context.Context, method string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return &APIError{Method: method, Code: apiErr.Code, Description: apiErr.Message}
	}
	return fmt.Errorf("telegram %s: %s", method, t.redact(err.Error()))
}

func (t *Telegram) redact(s string) string {
	return strings.ReplaceAll(s, t.cfg.Token, "<token>")
}

// Identify calls getMe and returns the bot's username. It doubles as a
// token check.
func (t *Telegram) Identify(ctx context.Context) (string, error) {
	me, err := t.api(ctx).GetMe()
	if err != nil {
		return "", t.wrap(ctx, "getMe", err)
	}
	return me.UserName, nil
}

// Poll long-polls getUpdates until a message arrives. Attachments are downloaded inline.
func (t *Telegram) Poll(ctx context.Context) ([]Update, error) {
	for {
		req := tgbotapi.NewUpdate(t.offset)
		req.Timeout = int(t.cfg.PollTimeout / time.Second)
		req.AllowedUpdates = []string{"message"}
		pollCtx, cancel := context.WithTimeout(ctx, t.cfg.PollTimeout+10*time.Second)
		raw, err := t.api(pollCtx).GetUpdates(req)
		if err != nil {
			err = t.wrap(pollCtx, "getUpdates", err)
			cancel()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		cancel()
		var out []Update
		for _, u := range raw {
			if u.UpdateID >= t.offset {
				t.offset = u.UpdateID + 1
			}
			m := u.Message
			if m == nil || m.Chat == nil {
				continue
			}
			up := Update{ID: int64(u.UpdateID), ChatID: m.Chat.ID, Text: m.Text}
			if m.Document != nil {
				up.Text = m.Caption
				up.DocumentName = m.Document.FileName
				up.Document, up.DocumentErr = t.download(ctx, m.Document)
			}
			if up.Text == "" && up.DocumentName == "" {
				continue
			}
			out = append(out, up)
		}
		if len(out) > 0 {
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

func (t *Telegram) download(ctx context.Context, d *tgbotapi.Document) (string, error) {
	if int64(d.FileSize) > t.cfg.MaxDocumentBytes {
		return "", fmt.Errorf("file %s is %d bytes, limit is %d", d.FileName, d.FileSize, t.cfg.MaxDocumentBytes)
	}
	f, err := t.api(ctx).GetFile(tgbotapi.FileConfig{FileID: d.FileID})
	if err != nil {
		return "", t.wrap(ctx, "getFile", err)
	}
	// File.Link always points at api.telegram.org; honour a configured APIURL.
	fileURL := t.cfg.APIURL + "/file/bot" + t.cfg.Token + "/" + (&url.URL{Path: f.FilePath}).EscapedPath()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", errors.New(t.redact(err.Error()))
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return "", errors.New(t.redact(err.Error()))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Method: "file download", Code: resp.StatusCode, Description: resp.Status}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, t.cfg.MaxDocumentBytes+1))
	if err != nil {
		return "", fmt.Errorf("download %s: %w", d.FileName, err)
	}
	if int64(len(b)) > t.cfg.MaxDocumentBytes {
		return "", fmt.Errorf("file %s exceeds %d bytes", d.FileName, t.cfg.MaxDocumentBytes)
	}
	return strings.ToValidUTF8(string(b), ""), nil
}

// Send delivers text, split into sequential messages of at most MaxMessageChars.
func (t *Telegram) Send(ctx context.Context, chatID int64, text string) error {
	bot := t.api(ctx)
	for i, chunk := range SplitMessage(text, MaxMessageChars) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.DisableWebPagePreview = true
		if _, err := bot.Send(msg); err != nil {
			return fmt.Errorf("chunk %d: %w", i+1, t.wrap(ctx, "sendMessage", err))
		}
	}
	return nil
}

func (t *Telegram) Typing(ctx context.Context, chatID int64) error {
	if _, err := t.api(ctx).Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		return t.wrap(ctx, "sendChatAction", err)
	}
	return nil
}
