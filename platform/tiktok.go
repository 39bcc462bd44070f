package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	httpc "clipcast/http"
	"clipcast/internal/auth"
	"clipcast/internal/config"
	"clipcast/internal/media"
	"clipcast/internal/metadata"
	"clipcast/internal/progress"
)

// Transfer estimate for the single-request upload: seconds per MiB and
// minimum seconds.
const (
	tiktokSecondsPerMB    = 10
	tiktokMinTransferSecs = 15
	tiktokEstimateTick    = time.Second
)

// TikTokScopes are requested when minting a refresh token.
var TikTokScopes = []string{"user.info.basic", "video.upload", "video.publish"}

// TikTokRules are the files TikTok accepts.
var TikTokRules = media.Rules{
	MaxSize:    500 * media.MiB,
	Extensions: []string{".mp4", ".mov", ".avi", ".webm", ".mkv"},
}

// TikTokConfig configures the TikTok adapter.
type TikTokConfig struct {
	Credentials config.TikTokCredentials
	RedirectURI string

	// UploadTimeout bounds the single PUT of the file.
	UploadTimeout time.Duration

	HTTP *httpc.Config

	// Endpoints, overridable for tests.
	APIBase  string
	AuthBase string
}

func defaultTikTokConfig(c *config.Config) TikTokConfig {
	return TikTokConfig{
		Credentials:   c.Credentials.TikTok,
		RedirectURI:   c.TikTokRedirectURI,
		UploadTimeout: c.UploadTimeout,
		HTTP:          httpConfig(c),
		APIBase:       "https://open.tiktokapis.com",
		AuthBase:      "https://www.tiktok.com",
	}
}

func init() {
	Register(TikTok, func(d Deps) (Adapter, error) {
		return NewTikTok(defaultTikTokConfig(d.Config), d)
	})
}

// TikTokAdapter uploads through the Content Posting API as a single chunk.
type TikTokAdapter struct {
	cfg      TikTokConfig
	client   *httpc.Client
	boot     auth.Bootstrapper
	notifier auth.TokenNotifier
	prober   media.Prober

	mu          sync.Mutex
	accessToken string
	expiry      time.Time
}

// NewTikTok creates the adapter. Client key and secret are required.
func NewTikTok(cfg TikTokConfig, d Deps) (*TikTokAdapter, error) {
	if err := cfg.Credentials.Check(); err != nil {
		return nil, missingCredentials(err)
	}
	return &TikTokAdapter{
		cfg:      cfg,
		client:   httpc.New(cfg.HTTP),
		boot:     d.Bootstrapper,
		notifier: d.Notifier,
		prober:   d.Prober,
	}, nil
}

func (a *TikTokAdapter) Name() Name { return TikTok }

func (a *TikTokAdapter) Allocations() progress.Allocations {
	return progress.Allocations{
		"authenticate":      5,
		"validate_file":     5,
		"initialize_upload": 10,
		"video_upload":      70,
		"finalize":          10,
	}
}

func (a *TikTokAdapter) apiURL(path string) string {
	return strings.TrimRight(a.cfg.APIBase, "/") + path
}

// tokenResponse is the body of /v2/oauth/token/.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Authenticate refreshes the access token, minting a refresh token through
// a PKCE authorization first when none is configured.
func (a *TikTokAdapter) Authenticate(ctx context.Context, s *Session) error {
	s.Progress.Describe("Authenticating")

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.accessToken != "" && time.Now().Before(a.expiry) {
		s.Progress.Update("authenticate", "Authenticated with TikTok")
		return nil
	}

	if a.cfg.Credentials.RefreshToken == "" {
		s.Logf("no refresh token configured, starting interactive authorization")
		if err := a.bootstrap(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrCredentials, err)
		}
	} else if err := a.refresh(ctx, s); err != nil {
		return fmt.Errorf("%w: %w", ErrCredentials, err)
	}

	s.Progress.Update("authenticate", "Authenticated with TikTok")
	return nil
}

func (a *TikTokAdapter) refresh(ctx context.Context, s *Session) error {
	c := a.cfg.Credentials
	tok, err := a.token(ctx, url.Values{
		"client_key":    {c.ClientKey},
		"client_secret": {c.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.RefreshToken},
	})
	if err != nil {
		return fmt.Errorf("refresh access token: %w", err)
	}
	if tok.RefreshToken != "" && tok.RefreshToken != c.RefreshToken {
		s.Logf("refresh token rotated")
		a.cfg.Credentials.RefreshToken = tok.RefreshToken
		auth.Notify(a.notifier, TikTok.DisplayName(), "TIKTOK_REFRESH_TOKEN", tok.RefreshToken)
	}
	a.store(tok)
	return nil
}

func (a *TikTokAdapter) bootstrap(ctx context.Context) error {
	if a.boot == nil {
		return auth.ErrNoBootstrapper
	}
	c := a.cfg.Credentials
	pkce := auth.NewPKCE()
	state := uuid.NewString()
	authURL := strings.TrimRight(a.cfg.AuthBase, "/") + "/v2/auth/authorize/?" + url.Values{
		"client_key":            {c.ClientKey},
		"response_type":         {"code"},
		"scope":                 {strings.Join(TikTokScopes, ",")},
		"redirect_uri":          {a.cfg.RedirectURI},
		"state":                 {state},
		"code_challenge":        {pkce.Challenge},
		"code_challenge_method": {"S256"},
	}.Encode()

	code, err := a.boot.Authorize(ctx, auth.Request{
		Platform:    TikTok.DisplayName(),
		URL:         authURL,
		RedirectURI: a.cfg.RedirectURI,
		State:       state,
	})
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}

	tok, err := a.token(ctx, url.Values{
		"client_key":    {c.ClientKey},
		"client_secret": {c.ClientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {a.cfg.RedirectURI},
		"code_verifier": {pkce.Verifier},
	})
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	if tok.RefreshToken == "" {
		return fmt.Errorf("exchange authorization code: no refresh_token in response")
	}
	a.cfg.Credentials.RefreshToken = tok.RefreshToken
	auth.Notify(a.notifier, TikTok.DisplayName(), "TIKTOK_REFRESH_TOKEN", tok.RefreshToken)
	a.store(tok)
	return nil
}

func (a *TikTokAdapter) token(ctx context.Context, form url.Values) (*tokenResponse, error) {
	resp, err := a.client.PostForm(ctx, a.apiURL("/v2/oauth/token/"), form, nil)
	if err != nil {
		return nil, err
	}
	var tok tokenResponse
	if err := resp.JSON(&tok); err != nil {
		return nil, err
	}
	if tok.Error != "" {
		return nil, fmt.Errorf("%s: %s", tok.Error, tok.ErrorDescription)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("no access_token in response")
	}
	return &tok, nil
}

// store caches an access token, expiring it a minute early.
func (a *TikTokAdapter) store(tok *tokenResponse) {
	a.accessToken = tok.AccessToken
	ttl := time.Duration(tok.ExpiresIn)*time.Second - time.Minute
	if ttl <= 0 {
		ttl = 0
	}
	a.expiry = time.Now().Add(ttl)
}

func (a *TikTokAdapter) bearer() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]string{"Authorization": "Bearer " + a.accessToken}
}

func (a *TikTokAdapter) Validate(ctx context.Context, s *Session) error {
	s.Progress.Describe("Validating video file")
	if err := inspect(s, TikTokRules, a.prober); err != nil {
		return err
	}
	if err := s.Params.OneOf("privacy_level", metadata.TikTokPrivacyLevels); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	s.Progress.Update("validate_file", "Video file validated")
	return nil
}

// initResponse is the body of /v2/post/publish/video/init/.
type initResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
		UploadURL string `json:"upload_url"`
	} `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		LogID   string `json:"log_id"`
	} `json:"error"`
}

// Upload declares the whole file as one chunk and PUTs it to the returned
// upload URL.
func (a *TikTokAdapter) Upload(ctx context.Context, s *Session) error {
	size := s.Media.Size
	body := map[string]any{
		"post_info": map[string]any{
			"privacy_level": s.Params.String("privacy_level"),
			"title":         s.Params.String("title"),
		},
		"source_info": map[string]any{
			"source":            "FILE_UPLOAD",
			"video_size":        size,
			"chunk_size":        size,
			"total_chunk_count": 1,
		},
	}
	resp, err := a.client.PostJSON(ctx, a.apiURL("/v2/post/publish/video/init/"), body, a.bearer())
	if err != nil {
		return fmt.Errorf("initialize upload: %w", err)
	}
	var ir initResponse
	if err := resp.JSON(&ir); err != nil {
		return fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	if code := ir.Error.Code; code != "" && code != "ok" {
		return fmt.Errorf("initialize upload: %s: %s", code, ir.Error.Message)
	}
	if ir.Data.UploadURL == "" {
		return fmt.Errorf("%w: initialize upload returned no upload_url", ErrConfiguration)
	}
	s.RemoteID = ir.Data.PublishID
	s.Progress.Update("initialize_upload", "Upload initialized")

	data, err := os.ReadFile(s.Job.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", s.Job.Path, err)
	}

	stop := estimate{
		tracker:  s.Progress,
		step:     "video_upload",
		label:    "Uploading video",
		expected: estimateDuration(s.Media.SizeMB(), tiktokSecondsPerMB, tiktokMinTransferSecs),
	}.run(tiktokEstimateTick)
	_, err = a.client.Send(ctx, &httpc.Request{
		Method: http.MethodPut,
		URL:    ir.Data.UploadURL,
		Header: map[string]string{
			"Content-Type":  s.Media.ContentType(),
			"Content-Range": fmt.Sprintf("bytes 0-%d/%d", size-1, size),
		},
		Body:    data,
		Timeout: a.cfg.UploadTimeout,
	})
	stop()
	if err != nil {
		return fmt.Errorf("upload video: %w", err)
	}
	s.Progress.Update("video_upload", "Video uploaded")
	return nil
}

// Process is a no-op: TikTok finishes the post asynchronously on its side.
func (a *TikTokAdapter) Process(ctx context.Context, s *Session) error {
	return nil
}

func (a *TikTokAdapter) Publish(ctx context.Context, s *Session) (string, error) {
	if s.RemoteID == "" {
		return "", fmt.Errorf("%w: initialize upload returned no publish_id", ErrUnexpectedResponse)
	}
	s.Progress.Update("finalize", "Video submitted")
	s.Logf("publish id %s", s.RemoteID)
	return s.RemoteID, nil
}
