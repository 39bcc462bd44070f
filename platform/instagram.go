package platform

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	httpc "clipcast/http"
	"clipcast/internal/auth"
	"clipcast/internal/config"
	"clipcast/internal/media"
	"clipcast/internal/metadata"
	"clipcast/internal/objectstore"
	"clipcast/internal/progress"
)

// Reel processing estimate: seconds per MiB and minimum seconds.
const (
	reelSecondsPerMB   = 10
	reelMinProcessSecs = 15
)

// InstagramScopes are requested when minting a user token.
var InstagramScopes = []string{
	"instagram_basic",
	"pages_show_list",
	"pages_read_engagement",
	"pages_manage_posts",
	"instagram_content_publish",
}

// InstagramRules are the files accepted as reels. The platform checks the
// rest after fetching the file.
var InstagramRules = media.Rules{}

// InstagramConfig configures the Instagram adapter.
type InstagramConfig struct {
	Credentials config.InstagramCredentials
	RedirectURI string

	PollInterval      time.Duration
	ProcessingTimeout time.Duration

	HTTP *httpc.Config

	// Endpoints, overridable for tests.
	GraphBase  string
	DialogBase string
}

func defaultInstagramConfig(c *config.Config) InstagramConfig {
	return InstagramConfig{
		Credentials:       c.Credentials.Instagram,
		RedirectURI:       c.FacebookRedirectURI,
		PollInterval:      c.ReelPollInterval,
		ProcessingTimeout: c.ReelProcessingTimeout,
		HTTP:              httpConfig(c),
		GraphBase:         "https://graph.facebook.com/v23.0",
		DialogBase:        "https://www.facebook.com/v23.0/dialog/oauth",
	}
}

func init() {
	Register(Instagram, func(d Deps) (Adapter, error) {
		cfg := defaultInstagramConfig(d.Config)
		if err := cfg.Credentials.Check(); err != nil {
			return nil, missingCredentials(err)
		}
		if d.Store == nil {
			ic := cfg.Credentials
			store, err := objectstore.NewGCS(context.Background(), objectstore.ServiceAccount{
				ProjectID:    ic.GCPProjectID,
				PrivateKeyID: ic.GCPPrivateKeyID,
				PrivateKey:   ic.GCPPrivateKey,
				ClientEmail:  ic.GCPClientEmail,
				ClientID:     ic.GCPClientID,
			}, ic.Bucket)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
			}
			d.Store = store
		}
		return NewInstagram(cfg, d)
	})
}

// InstagramAdapter publishes reels through the Graph API. The file is
// hosted at a temporary public URL the platform fetches from.
type InstagramAdapter struct {
	cfg      InstagramConfig
	client   *httpc.Client
	store    objectstore.Store
	boot     auth.Bootstrapper
	notifier auth.TokenNotifier
	prober   media.Prober

	mu        sync.Mutex
	pageToken string
	igUserID  string
}

// NewInstagram creates the adapter. The object store is required.
func NewInstagram(cfg InstagramConfig, d Deps) (*InstagramAdapter, error) {
	if err := cfg.Credentials.Check(); err != nil {
		return nil, missingCredentials(err)
	}
	if d.Store == nil {
		return nil, fmt.Errorf("%w: Instagram needs an object store for temporary hosting", ErrConfiguration)
	}
	return &InstagramAdapter{
		cfg:      cfg,
		client:   httpc.New(cfg.HTTP),
		store:    d.Store,
		boot:     d.Bootstrapper,
		notifier: d.Notifier,
		prober:   d.Prober,
	}, nil
}

func (a *InstagramAdapter) Name() Name { return Instagram }

func (a *InstagramAdapter) Allocations() progress.Allocations {
	return progress.Allocations{
		"authenticate":     10,
		"validate_file":    5,
		"host_upload":      15,
		"create_container": 10,
		"video_processing": 45,
		"publish":          15,
	}
}

func (a *InstagramAdapter) graphURL(path string, q url.Values) string {
	u := strings.TrimRight(a.cfg.GraphBase, "/") + "/" + strings.TrimLeft(path, "/")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// Authenticate resolves the page token and the Instagram business account
// bound to the page. Both are cached for the adapter's lifetime.
func (a *InstagramAdapter) Authenticate(ctx context.Context, s *Session) error {
	s.Progress.Describe("Authenticating")

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pageToken != "" && a.igUserID != "" {
		s.Progress.Update("authenticate", "Authenticated with Instagram")
		return nil
	}

	userToken := a.cfg.Credentials.AccessToken
	if userToken == "" {
		tok, err := a.bootstrap(ctx, s)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCredentials, err)
		}
		userToken = tok
	}

	var page struct {
		AccessToken string `json:"access_token"`
	}
	if err := a.getJSON(ctx, a.graphURL(a.cfg.Credentials.PageID, url.Values{
		"fields":       {"access_token"},
		"access_token": {userToken},
	}), &page); err != nil {
		return fmt.Errorf("%w: fetch page token: %w", ErrCredentials, err)
	}
	if page.AccessToken == "" {
		return fmt.Errorf("%w: page %s returned no access token", ErrCredentials, a.cfg.Credentials.PageID)
	}

	var account struct {
		Business *struct {
			ID string `json:"id"`
		} `json:"instagram_business_account"`
	}
	if err := a.getJSON(ctx, a.graphURL(a.cfg.Credentials.PageID, url.Values{
		"fields":       {"instagram_business_account"},
		"access_token": {page.AccessToken},
	}), &account); err != nil {
		return fmt.Errorf("%w: fetch Instagram account: %w", ErrCredentials, err)
	}
	if account.Business == nil || account.Business.ID == "" {
		return fmt.Errorf("%w: page %s has no linked Instagram business account", ErrCredentials, a.cfg.Credentials.PageID)
	}

	a.pageToken = page.AccessToken
	a.igUserID = account.Business.ID
	s.Progress.Update("authenticate", "Authenticated with Instagram")
	return nil
}

// bootstrap obtains consent, exchanges the code for a short-lived user
// token and trades that for a long-lived one.
func (a *InstagramAdapter) bootstrap(ctx context.Context, s *Session) (string, error) {
	if a.boot == nil {
		return "", auth.ErrNoBootstrapper
	}
	c := a.cfg.Credentials
	state := uuid.NewString()
	dialog := a.cfg.DialogBase + "?" + url.Values{
		"client_id":     {c.AppID},
		"redirect_uri":  {a.cfg.RedirectURI},
		"scope":         {strings.Join(InstagramScopes, ",")},
		"response_type": {"code"},
		"state":         {state},
	}.Encode()

	s.Logf("no access token configured, starting interactive authorization")
	code, err := a.boot.Authorize(ctx, auth.Request{
		Platform:    Instagram.DisplayName(),
		URL:         dialog,
		RedirectURI: a.cfg.RedirectURI,
		State:       state,
	})
	if err != nil {
		return "", fmt.Errorf("authorize: %w", err)
	}

	var short struct {
		AccessToken string `json:"access_token"`
	}
	if err := a.getJSON(ctx, a.graphURL("oauth/access_token", url.Values{
		"client_id":     {c.AppID},
		"client_secret": {c.AppSecret},
		"redirect_uri":  {a.cfg.RedirectURI},
		"code":          {code},
	}), &short); err != nil {
		return "", fmt.Errorf("exchange authorization code: %w", err)
	}
	if short.AccessToken == "" {
		return "", fmt.Errorf("exchange authorization code: no access_token in response")
	}

	var long struct {
		AccessToken string `json:"access_token"`
	}
	if err := a.getJSON(ctx, a.graphURL("oauth/access_token", url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {c.AppID},
		"client_secret":     {c.AppSecret},
		"fb_exchange_token": {short.AccessToken},
	}), &long); err != nil {
		return "", fmt.Errorf("exchange long-lived token: %w", err)
	}
	if long.AccessToken == "" {
		return "", fmt.Errorf("exchange long-lived token: no access_token in response")
	}

	a.cfg.Credentials.AccessToken = long.AccessToken
	auth.Notify(a.notifier, Instagram.DisplayName(), "FACEBOOK_ACCESS_TOKEN", long.AccessToken)
	return long.AccessToken, nil
}

func (a *InstagramAdapter) getJSON(ctx context.Context, u string, v any) error {
	resp, err := a.client.Get(ctx, u, nil)
	if err != nil {
		return err
	}
	return resp.JSON(v)
}

func (a *InstagramAdapter) credentials() (pageToken, igUserID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pageToken, a.igUserID
}

func (a *InstagramAdapter) Validate(ctx context.Context, s *Session) error {
	s.Progress.Describe("Validating video file")
	if err := inspect(s, InstagramRules, a.prober); err != nil {
		return err
	}
	if _, _, err := reelOptions(s.Params); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	s.Progress.Update("validate_file", "Video file validated")
	return nil
}

// reelOptions reads share_to_feed and thumb_offset. The offset is in
// milliseconds and may not be negative.
func reelOptions(p metadata.Params) (shareToFeed bool, thumbOffset int, err error) {
	if shareToFeed, err = p.Bool("share_to_feed", true); err != nil {
		return false, 0, err
	}
	if thumbOffset, err = p.Int("thumb_offset", 0); err != nil {
		return false, 0, err
	}
	if thumbOffset < 0 {
		return false, 0, fmt.Errorf("thumb_offset %d is negative", thumbOffset)
	}
	return shareToFeed, thumbOffset, nil
}

// Upload hosts the file publicly and creates a reel container that
// references it. The hosted copy is deleted when the job ends.
func (a *InstagramAdapter) Upload(ctx context.Context, s *Session) error {
	s.Progress.Describe("Uploading to temporary storage")
	obj, err := a.store.Upload(ctx, s.Job.Path)
	if err != nil {
		return fmt.Errorf("host video: %w", err)
	}
	s.OnRelease(func(ctx context.Context) {
		if err := a.store.Delete(ctx, obj); err != nil {
			s.Logf("failed to delete temporary object %s: %v", obj.Name, err)
			return
		}
		s.Logf("deleted temporary object %s", obj.Name)
	})
	s.Progress.Update("host_upload", "Video hosted for transfer")

	shareToFeed, thumbOffset, err := reelOptions(s.Params)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	pageToken, igUserID := a.credentials()
	form := url.Values{
		"media_type":    {"REELS"},
		"video_url":     {obj.URL},
		"caption":       {s.Params.String("caption")},
		"share_to_feed": {strconv.FormatBool(shareToFeed)},
		"access_token":  {pageToken},
	}
	if _, ok := s.Params["thumb_offset"]; ok {
		form.Set("thumb_offset", strconv.Itoa(thumbOffset))
	}

	resp, err := a.client.PostForm(ctx, a.graphURL(igUserID+"/media", nil), form, nil)
	if err != nil {
		return fmt.Errorf("create reel container: %w", err)
	}
	var container struct {
		ID string `json:"id"`
	}
	if err := resp.JSON(&container); err != nil {
		return fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	if container.ID == "" {
		return fmt.Errorf("%w: container creation returned no id", ErrUnexpectedResponse)
	}
	s.RemoteID = container.ID
	s.Progress.Update("create_container", "Reel container created")
	return nil
}

// Process polls the container until the platform finishes fetching and
// transcoding it. The server reports only a coarse status, so progress
// during the wait is an estimate based on file size.
func (a *InstagramAdapter) Process(ctx context.Context, s *Session) error {
	pageToken, _ := a.credentials()
	statusURL := a.graphURL(s.RemoteID, url.Values{
		"fields":       {"status_code,status"},
		"access_token": {pageToken},
	})

	p := poller{
		Interval: a.cfg.PollInterval,
		Timeout:  a.cfg.ProcessingTimeout,
		Estimate: estimate{
			tracker:  s.Progress,
			step:     "video_processing",
			label:    "Processing reel",
			expected: estimateDuration(s.Media.SizeMB(), reelSecondsPerMB, reelMinProcessSecs),
		},
		Logf: s.Logf,
	}
	err := p.run(ctx, func(ctx context.Context) (bool, time.Duration, error) {
		var st struct {
			StatusCode string `json:"status_code"`
			Status     string `json:"status"`
		}
		if err := a.getJSON(ctx, statusURL, &st); err != nil {
			return false, 0, fmt.Errorf("check container status: %w", err)
		}
		switch st.StatusCode {
		case "FINISHED":
			return true, 0, nil
		case "ERROR", "EXPIRED":
			detail := st.Status
			if detail == "" {
				detail = st.StatusCode
			}
			return false, 0, fmt.Errorf("%w: reel container %s: %s", ErrProcessing, s.RemoteID, detail)
		}
		return false, 0, nil
	})
	if err != nil {
		return err
	}
	s.Progress.Update("video_processing", "Reel processed")
	return nil
}

func (a *InstagramAdapter) Publish(ctx context.Context, s *Session) (string, error) {
	pageToken, igUserID := a.credentials()
	resp, err := a.client.PostForm(ctx, a.graphURL(igUserID+"/media_publish", nil), url.Values{
		"creation_id":  {s.RemoteID},
		"access_token": {pageToken},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("publish reel: %w", err)
	}
	var published struct {
		ID string `json:"id"`
	}
	if err := resp.JSON(&published); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	if published.ID == "" {
		return "", fmt.Errorf("%w: publish returned no media id", ErrUnexpectedResponse)
	}
	s.Progress.Update("publish", "Reel published")
	return published.ID, nil
}
