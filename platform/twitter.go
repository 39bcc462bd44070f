package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dghubble/oauth1"

	httpc "clipcast/http"
	"clipcast/internal/config"
	"clipcast/internal/media"
	"clipcast/internal/metadata"
	"clipcast/internal/progress"
)

// Media processing estimate: seconds per MiB and minimum seconds.
const (
	tweetSecondsPerMB   = 8
	tweetMinProcessSecs = 10
)

// twitterChunkSize is the APPEND segment size.
const twitterChunkSize = 4 << 20

// TwitterRules are the files accepted as tweet video.
var TwitterRules = media.Rules{
	MaxSize:    512 * media.MiB,
	Extensions: []string{".mp4", ".mov", ".avi", ".webm", ".mkv"},
}

// TwitterConfig configures the Twitter adapter.
type TwitterConfig struct {
	Credentials config.TwitterCredentials

	PollInterval      time.Duration
	ProcessingTimeout time.Duration
	MaxPolls          int
	// ChunkSize is the APPEND segment size.
	ChunkSize int64

	HTTP *httpc.Config

	// Endpoints, overridable for tests.
	UploadBase string
	APIBase    string
}

func defaultTwitterConfig(c *config.Config) TwitterConfig {
	return TwitterConfig{
		Credentials:       c.Credentials.Twitter,
		PollInterval:      c.TweetPollInterval,
		ProcessingTimeout: c.TweetProcessingTimeout,
		MaxPolls:          c.MaxProcessingPolls,
		ChunkSize:         twitterChunkSize,
		HTTP:              httpConfig(c),
		UploadBase:        "https://upload.twitter.com",
		APIBase:           "https://api.twitter.com",
	}
}

func init() {
	Register(Twitter, func(d Deps) (Adapter, error) {
		return NewTwitter(defaultTwitterConfig(d.Config), d)
	})
}

// TwitterAdapter posts a tweet with a chunk-uploaded video. Requests are
// signed with OAuth 1.0a user credentials, which never expire.
type TwitterAdapter struct {
	cfg    TwitterConfig
	client *httpc.Client
	prober media.Prober
}

// NewTwitter creates the adapter. All five credentials are required.
func NewTwitter(cfg TwitterConfig, d Deps) (*TwitterAdapter, error) {
	c := cfg.Credentials
	if err := c.Check(); err != nil {
		return nil, missingCredentials(err)
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = twitterChunkSize
	}

	hc := *httpc.DefaultConfig()
	if cfg.HTTP != nil {
		hc = *cfg.HTTP
	}
	hc.HTTPClient = oauth1.NewConfig(c.APIKey, c.APIKeySecret).
		Client(context.Background(), oauth1.NewToken(c.AccessToken, c.AccessTokenSecret))

	return &TwitterAdapter{
		cfg:    cfg,
		client: httpc.New(&hc),
		prober: d.Prober,
	}, nil
}

func (a *TwitterAdapter) Name() Name { return Twitter }

func (a *TwitterAdapter) Allocations() progress.Allocations {
	return progress.Allocations{
		"authenticate":     5,
		"validate_file":    5,
		"media_upload":     20,
		"video_processing": 60,
		"create_tweet":     10,
	}
}

func (a *TwitterAdapter) uploadURL() string {
	return strings.TrimRight(a.cfg.UploadBase, "/") + "/1.1/media/upload.json"
}

// Authenticate has nothing to exchange: signed requests carry the
// credentials, which were checked at construction.
func (a *TwitterAdapter) Authenticate(ctx context.Context, s *Session) error {
	s.Progress.Update("authenticate", "Signed credentials ready")
	return nil
}

func (a *TwitterAdapter) Validate(ctx context.Context, s *Session) error {
	s.Progress.Describe("Validating video file")
	if err := inspect(s, TwitterRules, a.prober); err != nil {
		return err
	}
	if n := utf8.RuneCountInString(s.Params.String("tweet_text")); n > metadata.TweetLimit {
		return fmt.Errorf("%w: tweet_text is %d characters, limit is %d", ErrValidation, n, metadata.TweetLimit)
	}
	s.Progress.Update("validate_file", "Video file validated")
	return nil
}

// Upload runs INIT, APPEND for each segment, and FINALIZE.
func (a *TwitterAdapter) Upload(ctx context.Context, s *Session) error {
	total := s.Media.Size
	resp, err := a.client.PostForm(ctx, a.uploadURL(), url.Values{
		"command":        {"INIT"},
		"total_bytes":    {strconv.FormatInt(total, 10)},
		"media_type":     {s.Media.ContentType()},
		"media_category": {"tweet_video"},
	}, nil)
	if err != nil {
		return fmt.Errorf("media upload INIT: %w", err)
	}
	var initResp struct {
		MediaID string `json:"media_id_string"`
	}
	if err := resp.JSON(&initResp); err != nil {
		return fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	if initResp.MediaID == "" {
		return fmt.Errorf("%w: media upload INIT returned no media id", ErrUnexpectedResponse)
	}
	mediaID := initResp.MediaID

	f, err := os.Open(s.Job.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.Job.Path, err)
	}
	defer f.Close()

	buf := make([]byte, a.cfg.ChunkSize)
	var sent int64
	for segment := 0; sent < total; segment++ {
		n, err := io.ReadFull(f, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return fmt.Errorf("read %s: %w", s.Job.Path, err)
		}
		if n == 0 {
			break
		}
		if err := a.appendSegment(ctx, mediaID, segment, buf[:n]); err != nil {
			return fmt.Errorf("media upload APPEND segment %d: %w", segment, err)
		}
		sent += int64(n)
		s.Progress.Advance("media_upload", float64(sent)/float64(total)*0.9,
			fmt.Sprintf("Uploading %s / %s", media.FormatSize(sent), media.FormatSize(total)))
	}

	if _, err := a.client.PostForm(ctx, a.uploadURL(), url.Values{
		"command":  {"FINALIZE"},
		"media_id": {mediaID},
	}, nil); err != nil {
		return fmt.Errorf("media upload FINALIZE: %w", err)
	}

	s.RemoteID = mediaID
	s.Progress.Update("media_upload", fmt.Sprintf("Media uploaded (ID: %s)", mediaID))
	return nil
}

func (a *TwitterAdapter) appendSegment(ctx context.Context, mediaID string, index int, chunk []byte) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range map[string]string{
		"command":       "APPEND",
		"media_id":      mediaID,
		"segment_index": strconv.Itoa(index),
	} {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("media", "blob")
	if err != nil {
		return err
	}
	if _, err := part.Write(chunk); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	_, err = a.client.Send(ctx, &httpc.Request{
		Method: http.MethodPost,
		URL:    a.uploadURL(),
		Header: map[string]string{"Content-Type": w.FormDataContentType()},
		Body:   body.Bytes(),
	})
	return err
}

// processingInfo is the processing_info object of a media STATUS response.
type processingInfo struct {
	State          string `json:"state"`
	CheckAfterSecs int    `json:"check_after_secs"`
	Progress       int    `json:"progress_percent"`
	Error          *struct {
		Code    int    `json:"code"`
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

// wait returns the server's polling hint, or fallback when it gave none.
func (p *processingInfo) wait(fallback time.Duration) time.Duration {
	if p == nil || p.CheckAfterSecs <= 0 {
		return fallback
	}
	return time.Duration(p.CheckAfterSecs) * time.Second
}

// Process polls media STATUS until the video is usable. A tweet is never
// created without a succeeded state.
func (a *TwitterAdapter) Process(ctx context.Context, s *Session) error {
	statusURL := a.uploadURL() + "?" + url.Values{
		"command":  {"STATUS"},
		"media_id": {s.RemoteID},
	}.Encode()

	p := poller{
		Interval:       a.cfg.PollInterval,
		Timeout:        a.cfg.ProcessingTimeout,
		MaxPolls:       a.cfg.MaxPolls,
		TolerateErrors: true,
		Estimate: estimate{
			tracker:  s.Progress,
			step:     "video_processing",
			label:    "Processing video",
			expected: estimateDuration(s.Media.SizeMB(), tweetSecondsPerMB, tweetMinProcessSecs),
		},
		Logf: s.Logf,
	}
	err := p.run(ctx, func(ctx context.Context) (bool, time.Duration, error) {
		resp, err := a.client.Get(ctx, statusURL, nil)
		if err != nil {
			return false, 0, fmt.Errorf("media STATUS: %w", err)
		}
		var st struct {
			ProcessingInfo *processingInfo `json:"processing_info"`
		}
		if err := resp.JSON(&st); err != nil {
			return false, 0, err
		}
		info := st.ProcessingInfo
		if info == nil {
			return false, 0, nil
		}
		switch info.State {
		case "succeeded":
			return true, 0, nil
		case "failed":
			msg := "Unknown error"
			if info.Error != nil && info.Error.Message != "" {
				msg = info.Error.Message
			}
			return false, 0, fmt.Errorf("%w: video processing failed: %s", ErrProcessing, msg)
		}
		return false, info.wait(a.cfg.PollInterval), nil
	})
	if err != nil {
		return err
	}
	s.Progress.Update("video_processing", "Video processing completed")
	return nil
}

// Publish creates the tweet carrying the processed media.
func (a *TwitterAdapter) Publish(ctx context.Context, s *Session) (string, error) {
	resp, err := a.client.PostJSON(ctx, strings.TrimRight(a.cfg.APIBase, "/")+"/2/tweets", map[string]any{
		"text":  s.Params.String("tweet_text"),
		"media": map[string]any{"media_ids": []string{s.RemoteID}},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("create tweet: %w", err)
	}
	var tweet struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := resp.JSON(&tweet); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)
	}
	if tweet.Data.ID == "" {
		return "", fmt.Errorf("%w: tweet creation returned no id", ErrUnexpectedResponse)
	}
	s.Progress.Update("create_tweet", "Tweet created")
	s.Logf("tweet available at https://twitter.com/i/web/status/%s", tweet.Data.ID)
	return tweet.Data.ID, nil
}
