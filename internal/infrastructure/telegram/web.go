package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/domain"
	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/ports"
)

const defaultWebBaseURL = "https://t.me"

// WebFeed reads a public channel through its web preview pages. It needs no
// credentials, at the cost of thinner metadata than the authenticated feed.
type WebFeed struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

var _ ports.SourceFeed = (*WebFeed)(nil)
var _ ports.FeedSession = (*WebFeed)(nil)

// NewWebFeed wires an HTTP client; baseURL defaults to the public host.
func NewWebFeed(client *http.Client, baseURL string, logger *slog.Logger) *WebFeed {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultWebBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebFeed{baseURL: strings.TrimSuffix(baseURL, "/"), client: client, logger: logger}
}

// Name identifies the strategy inside the registry.
func (f *WebFeed) Name() string {
	return "web"
}

// Run needs no connection setup: preview pages are stateless.
func (f *WebFeed) Run(ctx context.Context, fn func(ctx context.Context, session ports.FeedSession) error) error {
	f.logger.Info("using public web preview, no authentication")
	return fn(ctx, f)
}

func (f *WebFeed) ResolveChannel(ctx context.Context, username string) (domain.Channel, error) {
	doc, err := f.fetchDocument(ctx, f.pageURL(username, 0))
	if err != nil {
		return domain.Channel{}, err
	}

	title := strings.TrimSpace(doc.Find(".tgme_channel_info_header_title").First().Text())
	if title == "" {
		title, _ = doc.Find(`meta[property="og:title"]`).First().Attr("content")
	}
	if title == "" {
		return domain.Channel{}, fmt.Errorf("channel %s has no public preview", username)
	}

	// The preview pages never expose the numeric channel id.
	return domain.Channel{Username: username, Title: title}, nil
}

// IterateMessages walks preview pages from newest to oldest via the ?before
// cursor, invoking fn per message.
func (f *WebFeed) IterateMessages(ctx context.Context, ch domain.Channel, limit int, fn func(ctx context.Context, msg domain.FeedMessage) error) error {
	var before int64
	fetched := 0

	for {
		doc, err := f.fetchDocument(ctx, f.pageURL(ch.Username, before))
		if err != nil {
			return err
		}

		entries := parseEntries(doc, ch.Username)
		if len(entries) == 0 {
			return nil
		}

		// Pages list messages oldest-first; the feed contract is newest-first.
		minID := entries[0].ID
		for i := len(entries) - 1; i >= 0; i-- {
			entry := entries[i]
			if entry.ID < minID {
				minID = entry.ID
			}
			if before > 0 && entry.ID >= before {
				continue
			}

			fetched++
			if err := fn(ctx, entry); err != nil {
				return err
			}
			if limit > 0 && fetched >= limit {
				return nil
			}
		}

		if before > 0 && minID >= before {
			// Cursor stopped moving; the preview has no older pages.
			return nil
		}
		before = minID
		if before <= 1 {
			return nil
		}
	}
}

func (f *WebFeed) pageURL(username string, before int64) string {
	u := f.baseURL + "/s/" + url.PathEscape(username)
	if before > 0 {
		u += "?before=" + strconv.FormatInt(before, 10)
	}
	return u
}

func (f *WebFeed) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "TrackUAAirAttacks/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request preview page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("preview returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse preview page: %w", err)
	}
	return doc, nil
}

func parseEntries(doc *goquery.Document, username string) []domain.FeedMessage {
	var entries []domain.FeedMessage

	doc.Find("div.tgme_widget_message").Each(func(_ int, sel *goquery.Selection) {
		post, _ := sel.Attr("data-post")
		id, ok := parsePostID(post)
		if !ok {
			return
		}

		msg := domain.FeedMessage{
			ID:   id,
			Text: strings.TrimSpace(sel.Find(".tgme_widget_message_text").First().Text()),
		}

		if dt, exists := sel.Find(".tgme_widget_message_date time").First().Attr("datetime"); exists {
			if t, err := time.Parse(time.RFC3339, dt); err == nil {
				utc := t.UTC()
				msg.Date = &utc
			}
		}
		if views, ok := parseApproxCount(sel.Find(".tgme_widget_message_views").First().Text()); ok {
			msg.Views = &views
		}
		msg.PostAuthor = strings.TrimSpace(sel.Find(".tgme_widget_message_from_author").First().Text())

		raw, err := json.Marshal(map[string]any{
			"source":   "web_preview",
			"post":     post,
			"username": username,
			"date":     msg.Date,
			"text":     msg.Text,
			"views":    msg.Views,
		})
		if err == nil {
			msg.Raw = string(raw)
		}

		entries = append(entries, msg)
	})

	return entries
}

func parsePostID(post string) (int64, bool) {
	idx := strings.LastIndex(post, "/")
	if idx == -1 {
		return 0, false
	}
	id, err := strconv.ParseInt(post[idx+1:], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseApproxCount reads the preview's abbreviated counters ("882", "1.2K",
// "3.4M"). The result is approximate by nature of the source.
func parseApproxCount(text string) (int, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}

	mult := 1.0
	switch {
	case strings.HasSuffix(text, "K"):
		mult = 1_000
		text = strings.TrimSuffix(text, "K")
	case strings.HasSuffix(text, "M"):
		mult = 1_000_000
		text = strings.TrimSuffix(text, "M")
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, false
	}
	return int(math.Round(n * mult)), true
}
