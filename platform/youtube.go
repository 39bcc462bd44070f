package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	httpc "clipcast/http"
	"clipcast/internal/auth"
	"clipcast/internal/config"
	"clipcast/internal/media"
	"clipcast/internal/metadata"
	"clipcast/internal/progress"
	"clipcast/internal/retry"
)

// YouTubeRules are the files YouTube accepts.
var YouTubeRules = media.Rules{
	MaxSize:    2 * media.GiB,
	Extensions: []string{".mp4", ".mov", ".avi", ".wmv", ".flv", ".webm", ".mkv"},
}

// YouTubeConfig configures the YouTube adapter.
type YouTubeConfig struct {
	Credentials config.YouTubeCredentials
	RedirectURI string

	// ChunkSize is the resumable upload chunk size; a multiple of 256 KiB.
	ChunkSize int64
	// UploadTimeout bounds the transfer of one chunk.
	UploadTimeout time.Duration

	HTTP  *httpc.Config
	Retry retry.Config

	// Endpoints, overridable for tests.
	APIBase    string
	UploadBase string
	AuthURL    string
	TokenURL   string
}

func defaultYouTubeConfig(c *config.Config) YouTubeConfig {
	return YouTubeConfig{
		Credentials:   c.Credentials.YouTube,
		RedirectURI:   c.GoogleRedirectURI,
		ChunkSize:     c.ChunkSize,
		UploadTimeout: c.UploadTimeout,
		HTTP:          httpConfig(c),
		Retry:         retryConfig(c),
		APIBase:       "https://youtube.googleapis.com",
		UploadBase:    "https://www.googleapis.com",
		AuthURL:       google.Endpoint.AuthURL,
		TokenURL:      google.Endpoint.TokenURL,
	}
}

func init() {
	Register(YouTube, func(d Deps) (Adapter, error) {
		return NewYouTube(defaultYouTubeConfig(d.Config), d)
	})
}

// YouTubeAdapter uploads through the YouTube Data API resumable protocol.
type YouTubeAdapter struct {
	cfg      YouTubeConfig
	client   *httpc.Client
	boot     auth.Bootstrapper
	notifier auth.TokenNotifier
	prober   media.Prober

	mu sync.Mutex
	ts oauth2.TokenSource
}

// NewYouTube creates the adapter. Client id and secret are required.
func NewYouTube(cfg YouTubeConfig, d Deps) (*YouTubeAdapter, error) {
	if err := cfg.Credentials.Check(); err != nil {
		return nil, missingCredentials(err)
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 8 << 20
	}
	return &YouTubeAdapter{
		cfg:      cfg,
		client:   httpc.New(cfg.HTTP),
		boot:     d.Bootstrapper,
		notifier: d.Notifier,
		prober:   d.Prober,
	}, nil
}

func (a *YouTubeAdapter) Name() Name { return YouTube }

func (a *YouTubeAdapter) Allocations() progress.Allocations {
	return progress.Allocations{
		"authenticate":   5,
		"validate_file":  5,
		"prepare_upload": 10,
		"video_upload":   70,
		"finalize":       10,
	}
}

func (a *YouTubeAdapter) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.cfg.Credentials.ClientID,
		ClientSecret: a.cfg.Credentials.ClientSecret,
		Endpoint:     oauth2.Endpoint{AuthURL: a.cfg.AuthURL, TokenURL: a.cfg.TokenURL},
		RedirectURL:  a.cfg.RedirectURI,
		Scopes:       []string{youtube.YoutubeUploadScope},
	}
}

// Authenticate exchanges the refresh token for an access token, falling back
// to interactive consent, then checks that the account owns a channel.
func (a *YouTubeAdapter) Authenticate(ctx context.Context, s *Session) error {
	s.Progress.Describe("Authenticating")

	ts, err := a.tokenSource(ctx, s)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCredentials, err)
	}

	svc, err := youtube.NewService(ctx,
		option.WithHTTPClient(oauth2.NewClient(ctx, ts)),
		option.WithEndpoint(strings.TrimRight(a.cfg.APIBase, "/")+"/"),
	)
	if err != nil {
		return fmt.Errorf("%w: create YouTube service: %w", ErrConfiguration, err)
	}

	resp, err := retry.DoValue(ctx, a.cfg.Retry, apiErrorClassifier, func(ctx context.Context) (*youtube.ChannelListResponse, error) {
		return svc.Channels.List([]string{"id"}).Mine(true).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("%w: list channels: %w", ErrCredentials, err)
	}
	if len(resp.Items) == 0 {
		return fmt.Errorf("%w: account has no YouTube channel", ErrCredentials)
	}

	s.Progress.Update("authenticate", "Authenticated with YouTube")
	return nil
}

// tokenSource returns a cached token source, refreshing or bootstrapping
// the first time.
func (a *YouTubeAdapter) tokenSource(ctx context.Context, s *Session) (oauth2.TokenSource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ts != nil {
		return a.ts, nil
	}

	oc := a.oauthConfig()
	// Token sources outlive the job that created them.
	bg := context.WithoutCancel(ctx)

	if rt := a.cfg.Credentials.RefreshToken; rt != "" {
		ts := oc.TokenSource(bg, &oauth2.Token{RefreshToken: rt})
		_, err := ts.Token()
		if err == nil {
			a.ts = ts
			return ts, nil
		}
		s.Logf("refresh token rejected, starting interactive authorization: %v", err)
	}

	if a.boot == nil {
		return nil, auth.ErrNoBootstrapper
	}
	state := uuid.NewString()
	code, err := a.boot.Authorize(ctx, auth.Request{
		Platform:    YouTube.DisplayName(),
		URL:         oc.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")),
		RedirectURI: oc.RedirectURL,
		State:       state,
	})
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}
	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	if tok.RefreshToken != "" {
		a.cfg.Credentials.RefreshToken = tok.RefreshToken
		auth.Notify(a.notifier, YouTube.DisplayName(), "GOOGLE_REFRESH_TOKEN", tok.RefreshToken)
	}

	a.ts = oc.TokenSource(bg, tok)
	return a.ts, nil
}

func (a *YouTubeAdapter) accessToken(ctx context.Context, s *Session) (string, error) {
	ts, err := a.tokenSource(ctx, s)
	if err != nil {
		return "", err
	}
	tok, err := ts.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCredentials, err)
	}
	return tok.AccessToken, nil
}

// apiErrorClassifier decides whether a YouTube Data API error is worth retrying.
func apiErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return httpc.IsTransientStatus(gerr.Code)
	}
	return retry.IsRetryable(err)
}

func (a *YouTubeAdapter) Validate(ctx context.Context, s *Session) error {
	s.Progress.Describe("Validating video file")
	if err := inspect(s, YouTubeRules, a.prober); err != nil {
		return err
	}
	if err := s.Params.OneOf("privacy_status", metadata.YouTubePrivacyStatuses); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	s.Progress.Update("validate_file", "Video file validated")
	return nil
}

// Upload opens a resumable session and sends the file in chunks.
func (a *YouTubeAdapter) Upload(ctx context.Context, s *Session) error {
	token, err := a.accessToken(ctx, s)
	if err != nil {
		return err
	}

	sessionURI, err := a.openSession(ctx, s, token)
	if err != nil {
		return err
	}
	s.Progress.Update("prepare_upload", "Upload session created")

	f, err := os.Open(s.Job.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.Job.Path, err)
	}
	defer f.Close()

	id, err := a.sendChunks(ctx, s, sessionURI, f)
	if err != nil {
		return err
	}
	s.RemoteID = id
	return nil
}

func (a *YouTubeAdapter) videoResource(p metadata.Params) *youtube.Video {
	return &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       p.String("title"),
			Description: p.String("description"),
			Tags:        p.Strings("tags"),
			CategoryId:  p.String("category"),
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           p.String("privacy_status"),
			SelfDeclaredMadeForKids: false,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}
}

// openSession starts a resumable upload and returns the session URI.
func (a *YouTubeAdapter) openSession(ctx context.Context, s *Session, token string) (string, error) {
	body, err := json.Marshal(a.videoResource(s.Params))
	if err != nil {
		return "", fmt.Errorf("encode video resource: %w", err)
	}

	u := strings.TrimRight(a.cfg.UploadBase, "/") + "/upload/youtube/v3/videos?uploadType=resumable&part=snippet,status"
	resp, err := a.client.Send(ctx, &httpc.Request{
		Method: http.MethodPost,
		URL:    u,
		Header: map[string]string{
			"Authorization":           "Bearer " + token,
			"Content-Type":            "application/json; charset=UTF-8",
			"X-Upload-Content-Length": strconv.FormatInt(s.Media.Size, 10),
			"X-Upload-Content-Type":   s.Media.ContentType(),
		},
		Body: body,
	})
	if err != nil {
		return "", fmt.Errorf("start resumable upload: %w", err)
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", fmt.Errorf("%w: resumable upload response has no Location header", ErrUnexpectedResponse)
	}
	return loc, nil
}

// stalledError is a resume-incomplete reply that committed nothing new.
type stalledError struct{ committed int64 }

func (e *stalledError) Error() string {
	return fmt.Sprintf("upload session did not advance past byte %d", e.committed)
}

func (e *stalledError) Retryable() bool { return true }

// sendChunks uploads the file from offset zero, resuming after transient
// failures. Each chunk gets its own retry budget; a session that stops
// committing bytes spends it like any other failure.
func (a *YouTubeAdapter) sendChunks(ctx context.Context, s *Session, sessionURI string, r io.ReaderAt) (string, error) {
	total := s.Media.Size
	buf := make([]byte, a.cfg.ChunkSize)
	var offset int64
	attempt := 0

	for {
		// Long uploads outlive an access token.
		token, err := a.accessToken(ctx, s)
		if err != nil {
			return "", err
		}

		id, next, done, err := a.putChunk(ctx, s, sessionURI, token, r, buf, offset)
		if err == nil {
			if done {
				s.Progress.Advance("video_upload", 1, "Upload complete")
				return id, nil
			}
			if next > offset {
				attempt = 0
				offset = next
				s.Progress.Advance("video_upload", float64(offset)/float64(total),
					fmt.Sprintf("Uploading %s / %s", media.FormatSize(offset), media.FormatSize(total)))
				continue
			}
			err = &stalledError{committed: next}
		}

		if !retry.IsRetryable(err) || attempt >= a.cfg.Retry.MaxRetries {
			return "", fmt.Errorf("upload chunk at byte %d: %w", offset, err)
		}
		wait := retry.Backoff(a.cfg.Retry, attempt)
		attempt++
		s.Logf("chunk at byte %d failed (attempt %d/%d), retrying in %v: %v",
			offset, attempt, a.cfg.Retry.MaxRetries+1, wait.Round(time.Millisecond), err)
		if err := retry.Sleep(ctx, wait); err != nil {
			return "", err
		}

		// Ask the server how much it kept before resending.
		id, next, done, qerr := a.queryOffset(ctx, sessionURI, token, total)
		if qerr != nil {
			if !retry.IsRetryable(qerr) {
				return "", fmt.Errorf("query upload status: %w", qerr)
			}
			continue
		}
		if done {
			s.Progress.Advance("video_upload", 1, "Upload complete")
			return id, nil
		}
		if next > offset {
			attempt = 0
		}
		offset = next
	}
}

// putChunk sends the chunk starting at offset. Once every byte is
// committed it asks the session to finish instead.
func (a *YouTubeAdapter) putChunk(ctx context.Context, s *Session, sessionURI, token string, r io.ReaderAt, buf []byte, offset int64) (id string, next int64, done bool, err error) {
	total := s.Media.Size
	if offset >= total {
		return a.queryOffset(ctx, sessionURI, token, total)
	}

	end := min(offset+int64(len(buf)), total)
	n, err := r.ReadAt(buf[:end-offset], offset)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == end-offset) {
		return "", 0, false, retry.Permanent(fmt.Errorf("read %s at %d: %w", s.Job.Path, offset, err))
	}

	resp, err := a.client.Send(ctx, &httpc.Request{
		Method: http.MethodPut,
		URL:    sessionURI,
		Header: map[string]string{
			"Authorization": "Bearer " + token,
			"Content-Type":  s.Media.ContentType(),
			"Content-Range": fmt.Sprintf("bytes %d-%d/%d", offset, end-1, total),
		},
		Body:    buf[:n],
		Accept:  []int{http.StatusPermanentRedirect},
		NoRetry: true,
		Timeout: a.cfg.UploadTimeout,
	})
	if err != nil {
		return "", 0, false, err
	}
	return a.chunkResult(resp)
}

// queryOffset asks a resumable session for its committed byte range.
func (a *YouTubeAdapter) queryOffset(ctx context.Context, sessionURI, token string, total int64) (id string, next int64, done bool, err error) {
	resp, err := a.client.Send(ctx, &httpc.Request{
		Method: http.MethodPut,
		URL:    sessionURI,
		Header: map[string]string{
			"Authorization": "Bearer " + token,
			"Content-Range": fmt.Sprintf("bytes */%d", total),
		},
		Body:    []byte{},
		Accept:  []int{http.StatusPermanentRedirect},
		NoRetry: true,
	})
	if err != nil {
		return "", 0, false, err
	}
	return a.chunkResult(resp)
}

// chunkResult interprets a resumable upload response: 308 carries the
// committed range, 200 or 201 the created video.
func (a *YouTubeAdapter) chunkResult(resp *httpc.Response) (id string, next int64, done bool, err error) {
	if resp.StatusCode == http.StatusPermanentRedirect {
		next, err := committedOffset(resp.Header.Get("Range"))
		if err != nil {
			return "", 0, false, fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
		}
		return "", next, false, nil
	}

	var video youtube.Video
	if err := json.Unmarshal(resp.Body, &video); err != nil {
		return "", 0, false, fmt.Errorf("%w: decode upload response: %w", ErrUnexpectedResponse, err)
	}
	if video.Id == "" {
		return "", 0, false, fmt.Errorf("%w: upload response has no video id", ErrUnexpectedResponse)
	}
	return video.Id, 0, true, nil
}

// committedOffset parses a "bytes=0-N" Range header into the next offset.
// An absent header means nothing was stored.
func committedOffset(h string) (int64, error) {
	if h == "" {
		return 0, nil
	}
	_, last, ok := strings.Cut(strings.TrimPrefix(h, "bytes="), "-")
	if !ok {
		return 0, fmt.Errorf("malformed Range header %q", h)
	}
	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed Range header %q", h)
	}
	return n + 1, nil
}

// Process is a no-op: YouTube processes uploads after the video exists.
func (a *YouTubeAdapter) Process(ctx context.Context, s *Session) error {
	return nil
}

func (a *YouTubeAdapter) Publish(ctx context.Context, s *Session) (string, error) {
	s.Progress.Update("finalize", "Video uploaded")
	s.Logf("video available at https://youtu.be/%s", s.RemoteID)
	return s.RemoteID, nil
}
