package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/option"

	"github.com/teslashibe/go-proctor/internal/httpc"
	"github.com/teslashibe/go-proctor/internal/log"
)

// ErrNotAuthenticated is returned when exporting before OAuth completes
var ErrNotAuthenticated = errors.New("report: not authenticated with Google")

// GoogleConfig configures the Google Docs exporter
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // e.g., "http://localhost:8080/api/google/callback"
	TokenPath    string // Default: ~/.proctor/google_token.json
}

// GoogleDocs exports reports to Google Docs using OAuth2 user consent
type GoogleDocs struct {
	config    *oauth2.Config
	tokenPath string
	logger    *slog.Logger
	timeout   time.Duration

	mu      sync.RWMutex
	token   *oauth2.Token
	service *docs.Service
	state   string
}

// NewGoogleDocs creates an exporter and loads any saved token
func NewGoogleDocs(cfg GoogleConfig) (*GoogleDocs, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "http://localhost:8080/api/google/callback"
	}
	if cfg.TokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		cfg.TokenPath = filepath.Join(homeDir, ".proctor", "google_token.json")
	}

	g := &GoogleDocs{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/documents",
				"https://www.googleapis.com/auth/drive.file",
			},
			Endpoint: google.Endpoint,
		},
		tokenPath: cfg.TokenPath,
		logger:    log.With("component", "google"),
		timeout:   30 * time.Second,
		state:     "proctor-state",
	}

	if err := g.loadToken(); err == nil {
		if err := g.initService(context.Background()); err != nil {
			g.logger.Warn("saved Google token unusable", "error", err)
			g.token = nil
		}
	}
	return g, nil
}

// IsAuthenticated reports whether a usable token is loaded
func (g *GoogleDocs) IsAuthenticated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.service != nil && g.token != nil && (g.token.Valid() || g.token.RefreshToken != "")
}

// AuthURL returns the consent URL
func (g *GoogleDocs) AuthURL() string {
	return g.config.AuthCodeURL(g.state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// HandleCallback exchanges the authorization code for a token
func (g *GoogleDocs) HandleCallback(ctx context.Context, state, code string) error {
	if state != g.state {
		return fmt.Errorf("oauth state mismatch")
	}
	if code == "" {
		return fmt.Errorf("missing authorization code")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	token, err := g.config.Exchange(httpc.OAuthContext(ctx), code)
	if err != nil {
		return fmt.Errorf("failed to exchange code for token: %w", err)
	}

	g.mu.Lock()
	g.token = token
	g.mu.Unlock()

	if err := g.saveToken(); err != nil {
		g.logger.Warn("failed to save Google token", "error", err)
	}
	if err := g.initService(context.Background()); err != nil {
		return fmt.Errorf("failed to initialize docs service: %w", err)
	}
	g.logger.Info("connected to Google Docs")
	return nil
}

// Disconnect forgets the token and removes it from disk
func (g *GoogleDocs) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.token = nil
	g.service = nil
	if err := os.Remove(g.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// Export creates a Google Doc holding the rendered summary and returns its
// document ID
func (g *GoogleDocs) Export(ctx context.Context, title string, s Summary) (string, error) {
	g.mu.RLock()
	service := g.service
	g.mu.RUnlock()
	if service == nil {
		return "", ErrNotAuthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	created, err := service.Documents.Create(&docs.Document{Title: title}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}

	content := documentText(title, s)
	_, err = service.Documents.BatchUpdate(created.DocumentId, &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{{
			InsertText: &docs.InsertTextRequest{
				Location: &docs.Location{Index: 1},
				Text:     content,
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return created.DocumentId, fmt.Errorf("created doc but failed to add content: %w", err)
	}

	g.logger.Info("report exported", "session_id", s.SessionID, "doc_id", created.DocumentId)
	return created.DocumentId, nil
}

func documentText(title string, s Summary) string {
	text := fmt.Sprintf("%s\n\nSession: %s\nStarted: %s\n", title, s.SessionID, s.StartedAt.Local().Format("January 2, 2006 15:04:05"))
	if d := s.Duration(); d > 0 {
		text += fmt.Sprintf("Duration: %s\n", d.Round(time.Second))
	}
	return text + "\n" + s.Text()
}

// DocURL returns the URL to view a Google Doc
func DocURL(docID string) string {
	return fmt.Sprintf("https://docs.google.com/document/d/%s/edit", docID)
}

// GoogleStatus is the connection status
type GoogleStatus struct {
	Connected bool   `json:"connected"`
	AuthURL   string `json:"auth_url,omitempty"`
}

// Status returns the connection status
func (g *GoogleDocs) Status() GoogleStatus {
	status := GoogleStatus{Connected: g.IsAuthenticated()}
	if !status.Connected {
		status.AuthURL = g.AuthURL()
	}
	return status
}

func (g *GoogleDocs) initService(ctx context.Context, opts ...option.ClientOption) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token == nil {
		return fmt.Errorf("no token available")
	}
	if len(opts) == 0 {
		opts = []option.ClientOption{option.WithHTTPClient(g.config.Client(httpc.OAuthContext(ctx), g.token))}
	}
	service, err := docs.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create docs service: %w", err)
	}
	g.service = service
	return nil
}

func (g *GoogleDocs) loadToken() error {
	data, err := os.ReadFile(g.tokenPath)
	if err != nil {
		return err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return err
	}
	g.mu.Lock()
	g.token = &token
	g.mu.Unlock()
	return nil
}

func (g *GoogleDocs) saveToken() error {
	g.mu.RLock()
	token := g.token
	g.mu.RUnlock()
	if token == nil {
		return fmt.Errorf("no token to save")
	}

	if err := os.MkdirAll(filepath.Dir(g.tokenPath), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(g.tokenPath, data, 0600)
}
