// Package indexing notifies the Google Indexing API about published and
// deleted report pages. Every failure is logged and swallowed.
package indexing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cryptodashboard/reportgen/pkg/eventbus"
	"github.com/cryptodashboard/reportgen/pkg/events"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	Scope           = "https://www.googleapis.com/auth/indexing"
	DefaultEndpoint = "https://indexing.googleapis.com/v3/urlNotifications:publish"
	DefaultBaseURL  = "https://cryptodashboard.me/crypto_report/"

	DefaultCredentialsFile = "service_account.json"

	URLUpdated = "URL_UPDATED"
	URLDeleted = "URL_DELETED"
)

var ErrNoCredentials = errors.New("no google service account credentials found")

type Config struct {
	Enabled  bool   `yaml:"enabled"`
	BaseURL  string `yaml:"base_url" validate:"omitempty,url"`
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`
	// CredentialsJSON holds the service account key itself and wins over CredentialsFile.
	CredentialsJSON string        `yaml:"-"`
	CredentialsFile string        `yaml:"credentials_file"`
	Timeout         time.Duration `yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:  DefaultBaseURL,
		Endpoint: DefaultEndpoint,
		Timeout:  10 * time.Second,
	}
}

type Notifier struct {
	client   *http.Client
	endpoint string
	baseURL  string
	logger   *slog.Logger
}

// NewNotifier sends notifications with client, which must attach the OAuth token.
func NewNotifier(client *http.Client, cfg Config, logger *slog.Logger) *Notifier {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}

	return &Notifier{
		client:   client,
		endpoint: endpoint,
		baseURL:  baseURL,
		logger:   logger.With("module", "indexing"),
	}
}

// NewServiceAccountNotifier authenticates with the service account found by TokenSource.
func NewServiceAccountNotifier(ctx context.Context, cfg Config, logger *slog.Logger) (*Notifier, error) {
	source, err := TokenSource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return NewNotifier(oauth2.NewClient(ctx, source), cfg, logger), nil
}

// TokenSource loads the service account key from cfg.CredentialsJSON, then
// cfg.CredentialsFile, then ./service_account.json.
func TokenSource(ctx context.Context, cfg Config) (oauth2.TokenSource, error) {
	key := []byte(strings.TrimSpace(cfg.CredentialsJSON))

	if len(key) == 0 {
		for _, path := range []string{cfg.CredentialsFile, DefaultCredentialsFile} {
			if path == "" {
				continue
			}

			content, err := os.ReadFile(path)
			if err == nil {
				key = content

				break
			}
		}
	}

	if len(key) == 0 {
		return nil, ErrNoCredentials
	}

	jwtConfig, err := google.JWTConfigFromJSON(key, Scope)
	if err != nil {
		return nil, fmt.Errorf("invalid service account key: %w", err)
	}

	return jwtConfig.TokenSource(ctx), nil
}

func (n *Notifier) ReportURL(reportID int64) string {
	return n.baseURL + strconv.FormatInt(reportID, 10)
}

type notification struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Notify sends one notification and returns the API error, if any.
func (n *Notifier) Notify(ctx context.Context, url, notificationType string) error {
	body, err := json.Marshal(notification{URL: url, Type: notificationType})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("indexing request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

		return fmt.Errorf("indexing api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	return nil
}

// Published notifies that a report page exists. It reports whether the call succeeded.
func (n *Notifier) Published(ctx context.Context, reportID int64) bool {
	return n.bestEffort(ctx, n.ReportURL(reportID), URLUpdated)
}

// Deleted notifies that a report page is gone.
func (n *Notifier) Deleted(ctx context.Context, reportID int64) bool {
	return n.bestEffort(ctx, n.ReportURL(reportID), URLDeleted)
}

func (n *Notifier) bestEffort(ctx context.Context, url, notificationType string) bool {
	if err := n.Notify(ctx, url, notificationType); err != nil {
		n.logger.WarnContext(ctx, "indexing notification failed", "url", url, "type", notificationType, "error", err)

		return false
	}

	n.logger.InfoContext(ctx, "indexing notification sent", "url", url, "type", notificationType)

	return true
}

// Register subscribes the notifier to report publication and deletion events.
func (n *Notifier) Register(bus eventbus.EventSubscriber) error {
	err := bus.Handle(events.ReportPublishedEvent, func(ctx context.Context, event any) error {
		if published, ok := event.(*events.ReportPublished); ok {
			n.Published(ctx, published.ReportID)
		}

		return nil
	})
	if err != nil {
		return err
	}

	return bus.Handle(events.ReportDeletedEvent, func(ctx context.Context, event any) error {
		if deleted, ok := event.(*events.ReportDeleted); ok {
			n.Deleted(ctx, deleted.ReportID)
		}

		return nil
	})
}
