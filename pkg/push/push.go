package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	fcm "google.golang.org/api/fcm/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/molimor/molimor-backend/pkg/config"
	"github.com/molimor/molimor-backend/pkg/logger"
)

const maxConcurrentSends = 8

// Notification is the visible part of a push message.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Result counts per-token outcomes of one broadcast.
type Result struct {
	Sent    int
	Skipped int
	Failed  int
}

// Notifier fans a notification out to device tokens.
type Notifier interface {
	Send(ctx context.Context, tokens []string, n Notification) (Result, error)
}

type messageSender interface {
	SendMessage(ctx context.Context, msg *fcm.Message) error
}

// Client sends through the FCM HTTP v1 API.
type Client struct {
	sender messageSender
	logg   *logger.Logger
}

// NewClient returns an FCM-backed notifier, or a no-op notifier when push is disabled.
func NewClient(ctx context.Context, cfg config.PushConfig, logg *logger.Logger) (Notifier, error) {
	if !cfg.Enabled {
		return nopNotifier{}, nil
	}
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("fcm project id is required when push is enabled")
	}

	opts := []option.ClientOption{}
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	svc, err := fcm.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating fcm service: %w", err)
	}
	return newClient(&fcmSender{svc: svc, parent: "projects/" + cfg.ProjectID}, logg), nil
}

func newClient(sender messageSender, logg *logger.Logger) *Client {
	return &Client{sender: sender, logg: logg}
}

// Send delivers n to every non-empty token. Tokens FCM reports as unregistered
// or malformed are skipped; other failures are combined into the returned error.
// An empty token list is a no-op.
func (c *Client) Send(ctx context.Context, tokens []string, n Notification) (Result, error) {
	tokens = dedupe(tokens)
	if len(tokens) == 0 {
		return Result{}, nil
	}

	var (
		mu     sync.Mutex
		result Result
		errs   error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSends)
	for _, token := range tokens {
		g.Go(func() error {
			err := c.sender.SendMessage(gctx, &fcm.Message{
				Token: token,
				Notification: &fcm.Notification{
					Title: n.Title,
					Body:  n.Body,
				},
				Data: n.Data,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Sent++
			case IsInvalidToken(err):
				result.Skipped++
			default:
				result.Failed++
				errs = multierr.Append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if c.logg != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"push_sent":    result.Sent,
			"push_skipped": result.Skipped,
			"push_failed":  result.Failed,
		})
		c.logg.Info(logCtx, "push broadcast finished")
	}
	return result, errs
}

// IsInvalidToken reports whether FCM rejected the token itself rather than the request.
func IsInvalidToken(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == http.StatusNotFound {
		return true
	}
	if apiErr.Code != http.StatusBadRequest {
		return false
	}
	text := apiErr.Message + " " + apiErr.Body
	return strings.Contains(text, "UNREGISTERED") ||
		strings.Contains(text, "INVALID_ARGUMENT") ||
		strings.Contains(text, "registration token")
}

func dedupe(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

type fcmSender struct {
	svc    *fcm.Service
	parent string
}

func (s *fcmSender) SendMessage(ctx context.Context, msg *fcm.Message) error {
	_, err := s.svc.Projects.Messages.Send(s.parent, &fcm.SendMessageRequest{Message: msg}).Context(ctx).Do()
	return err
}

type nopNotifier struct{}

func (nopNotifier) Send(_ context.Context, tokens []string, _ Notification) (Result, error) {
	return Result{Skipped: len(dedupe(tokens))}, nil
}
