package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"

	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/domain"
	"github.com/thomasjjj/Track-UA-Air-Attacks/internal/ports"
)

const historyPageSize = 100

// MTProtoFeed reads channel history over an authenticated user session.
type MTProtoFeed struct {
	apiID       int
	apiHash     string
	phone       string
	sessionFile string
	responder   ports.ChallengeResponder
	logger      *slog.Logger
}

var _ ports.SourceFeed = (*MTProtoFeed)(nil)

// NewMTProtoFeed wires the authenticated transport. The responder supplies
// the login code and, when enabled, the second-factor password.
func NewMTProtoFeed(apiID int, apiHash, phone, sessionFile string, responder ports.ChallengeResponder, logger *slog.Logger) *MTProtoFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &MTProtoFeed{
		apiID:       apiID,
		apiHash:     apiHash,
		phone:       phone,
		sessionFile: sessionFile,
		responder:   responder,
		logger:      logger,
	}
}

// Name identifies the strategy inside the registry.
func (f *MTProtoFeed) Name() string {
	return "mtproto"
}

// Run connects, authenticates if needed and hands fn a live session. The
// connection is released when Run returns, on success and on failure alike.
func (f *MTProtoFeed) Run(ctx context.Context, fn func(ctx context.Context, session ports.FeedSession) error) error {
	client := telegram.NewClient(f.apiID, f.apiHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: f.sessionFile},
	})

	err := client.Run(ctx, func(ctx context.Context) error {
		flow := auth.NewFlow(&challengeAuth{phone: f.phone, responder: f.responder}, auth.SendCodeOptions{})
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
		f.logger.Info("connected to telegram")

		return fn(ctx, &mtprotoSession{api: client.API(), logger: f.logger})
	})

	f.logger.Info("disconnected from telegram")
	return err
}

// challengeAuth adapts the pluggable challenge responder to the transport's
// authentication flow.
type challengeAuth struct {
	phone     string
	responder ports.ChallengeResponder
}

func (a *challengeAuth) Phone(ctx context.Context) (string, error) {
	return a.phone, nil
}

func (a *challengeAuth) Code(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	return a.responder.LoginCode(ctx)
}

func (a *challengeAuth) Password(ctx context.Context) (string, error) {
	return a.responder.Password(ctx)
}

func (a *challengeAuth) AcceptTermsOfService(ctx context.Context, _ tg.HelpTermsOfService) error {
	return nil
}

func (a *challengeAuth) SignUp(ctx context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, fmt.Errorf("sign-up is not supported, register the account first")
}

type mtprotoSession struct {
	api    *tg.Client
	logger *slog.Logger
}

func (s *mtprotoSession) ResolveChannel(ctx context.Context, username string) (domain.Channel, error) {
	resolved, err := s.api.ContactsResolveUsername(ctx, username)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("resolve username: %w", err)
	}

	for _, chat := range resolved.Chats {
		ch, ok := chat.(*tg.Channel)
		if !ok {
			continue
		}
		hash, _ := ch.GetAccessHash()
		return domain.Channel{
			ID:         ch.ID,
			AccessHash: hash,
			Username:   username,
			Title:      ch.Title,
		}, nil
	}

	return domain.Channel{}, fmt.Errorf("%s does not resolve to a channel", username)
}

// IterateMessages pages through the history newest-first, invoking fn per
// message, at most limit messages when limit > 0.
func (s *mtprotoSession) IterateMessages(ctx context.Context, ch domain.Channel, limit int, fn func(ctx context.Context, msg domain.FeedMessage) error) error {
	peer := &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}

	offsetID := 0
	fetched := 0
	for {
		batch := historyPageSize
		if limit > 0 && limit-fetched < batch {
			batch = limit - fetched
		}
		if batch <= 0 {
			return nil
		}

		res, err := s.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     peer,
			OffsetID: offsetID,
			Limit:    batch,
		})
		if err != nil {
			return fmt.Errorf("fetch history: %w", err)
		}

		page, ok := res.(*tg.MessagesChannelMessages)
		if !ok {
			return fmt.Errorf("unexpected history response %T", res)
		}
		if len(page.Messages) == 0 {
			return nil
		}

		for _, m := range page.Messages {
			offsetID = m.GetID()
			fetched++

			msg, ok := m.(*tg.Message)
			if !ok {
				// Service messages carry no text worth reconciling.
				continue
			}
			if err := fn(ctx, toFeedMessage(msg)); err != nil {
				return err
			}
			if limit > 0 && fetched >= limit {
				return nil
			}
		}

		if len(page.Messages) < batch {
			return nil
		}
	}
}

func toFeedMessage(m *tg.Message) domain.FeedMessage {
	fm := domain.FeedMessage{
		ID:   int64(m.ID),
		Text: m.Message,
	}
	if m.Date > 0 {
		t := time.Unix(int64(m.Date), 0).UTC()
		fm.Date = &t
	}
	if v, ok := m.GetViews(); ok {
		fm.Views = &v
	}
	if v, ok := m.GetForwards(); ok {
		fm.Forwards = &v
	}
	if r, ok := m.GetReplies(); ok {
		n := r.Replies
		fm.Replies = &n
	}
	if v, ok := m.GetEditDate(); ok {
		t := time.Unix(int64(v), 0).UTC()
		fm.EditDate = &t
	}
	if v, ok := m.GetGroupedID(); ok {
		fm.GroupedID = &v
	}
	if p, ok := m.GetFromID(); ok {
		if u, isUser := p.(*tg.PeerUser); isUser {
			id := u.UserID
			fm.FromID = &id
		}
	}
	if v, ok := m.GetPostAuthor(); ok {
		fm.PostAuthor = v
	}
	if raw, err := json.Marshal(m); err == nil {
		fm.Raw = string(raw)
	}
	return fm
}
