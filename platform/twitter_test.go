package platform

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"clipcast/internal/config"
)

// fakeTwitter serves the chunked media endpoint and tweet creation.
type fakeTwitter struct {
	mu sync.Mutex

	states   []string // processing_info.state sequence; the last one repeats, "" omits it
	failMsg  string
	omitID   bool
	unsigned int

	segments  []int
	finalized bool
	statusReq int
	tweet     map[string]any
}

func (f *fakeTwitter) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/1.1/media/upload.json", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !strings.HasPrefix(r.Header.Get("Authorization"), "OAuth ") {
			f.unsigned++
		}
		w.Header().Set("Content-Type", "application/json")

		switch r.FormValue("command") {
		case "INIT":
			if r.FormValue("media_category") != "tweet_video" {
				t.Errorf("media_category = %q", r.FormValue("media_category"))
			}
			io.WriteString(w, `{"media_id":710511363345354753,"media_id_string":"710511363345354753"}`)
		case "APPEND":
			file, _, err := r.FormFile("media")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			b, _ := io.ReadAll(file)
			f.segments = append(f.segments, len(b))
			w.WriteHeader(http.StatusNoContent)
		case "FINALIZE":
			f.finalized = true
			io.WriteString(w, `{"media_id_string":"710511363345354753","processing_info":{"state":"pending","check_after_secs":0}}`)
		case "STATUS":
			st := f.states[min(f.statusReq, len(f.states)-1)]
			f.statusReq++
			if st == "" {
				io.WriteString(w, `{"media_id_string":"710511363345354753"}`)
				return
			}
			info := map[string]any{"state": st}
			if st == "failed" && f.failMsg != "" {
				info["error"] = map[string]any{"code": 1, "name": "InvalidMedia", "message": f.failMsg}
			}
			json.NewEncoder(w).Encode(map[string]any{"processing_info": info})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/2/tweets", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewDecoder(r.Body).Decode(&f.tweet)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if f.omitID {
			io.WriteString(w, `{"data":{}}`)
			return
		}
		io.WriteString(w, `{"data":{"id":"1445880548472328192","text":"Launch day"}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

var twCreds = config.TwitterCredentials{
	APIKey:            "key",
	APIKeySecret:      "key-secret",
	AccessToken:       "at",
	AccessTokenSecret: "at-secret",
	BearerToken:       "bearer",
}

func newTwitterTest(t *testing.T, f *fakeTwitter) *TwitterAdapter {
	t.Helper()
	srv := f.server(t)
	a, err := NewTwitter(TwitterConfig{
		Credentials:       twCreds,
		PollInterval:      time.Millisecond,
		ProcessingTimeout: 2 * time.Second,
		MaxPolls:          5,
		ChunkSize:         40,
		HTTP:              testHTTP(),
		UploadBase:        srv.URL,
		APIBase:           srv.URL,
	}, Deps{})
	if err != nil {
		t.Fatalf("NewTwitter: %v", err)
	}
	return a
}

func TestTwitterPostsTweetWithVideo(t *testing.T) {
	f := &fakeTwitter{states: []string{"", "in_progress", "succeeded"}}
	a := newTwitterTest(t, f)
	rec := &recorder{}

	res := Run(context.Background(), a, Job{ID: "j", Path: writeVideo(t, "clip.mp4", 100)}, mapParams(t, Twitter, nil), rec, quietLogger())

	if !res.Success || res.ID != "1445880548472328192" {
		t.Fatalf("Run() = %+v", res)
	}
	if len(f.segments) != 3 || f.segments[0] != 40 || f.segments[2] != 20 {
		t.Errorf("segments = %v, want [40 40 20]", f.segments)
	}
	if !f.finalized || f.statusReq != 3 {
		t.Errorf("finalized=%v status polls=%d", f.finalized, f.statusReq)
	}
	if f.unsigned != 0 {
		t.Errorf("%d unsigned requests", f.unsigned)
	}
	if !strings.HasPrefix(f.tweet["text"].(string), "Launch day") {
		t.Errorf("tweet text = %v", f.tweet["text"])
	}
	ids, _ := f.tweet["media"].(map[string]any)["media_ids"].([]any)
	if len(ids) != 1 || ids[0] != "710511363345354753" {
		t.Errorf("media_ids = %v", ids)
	}
	if !rec.monotonic() || rec.last().Value != 100 {
		t.Errorf("progress = %+v", rec.last())
	}
}

func TestTwitterProcessingFailureSkipsTweet(t *testing.T) {
	f := &fakeTwitter{states: []string{"in_progress", "failed"}, failMsg: "Unsupported video codec"}
	a := newTwitterTest(t, f)

	res := Run(context.Background(), a, Job{ID: "j", Path: writeVideo(t, "clip.mp4", 10)}, mapParams(t, Twitter, nil), nil, quietLogger())

	if res.Success || !errors.Is(res.Err, ErrProcessing) {
		t.Fatalf("Run() = %+v, want processing failure", res)
	}
	if !strings.Contains(res.Error, "Unsupported video codec") {
		t.Errorf("Error = %q", res.Error)
	}
	if f.tweet != nil {
		t.Error("tweet created after failed processing")
	}
}

func TestTwitterProcessingFailureWithoutDetail(t *testing.T) {
	f := &fakeTwitter{states: []string{"failed"}}
	a := newTwitterTest(t, f)

	res := Run(context.Background(), a, Job{ID: "j", Path: writeVideo(t, "clip.mp4", 10)}, mapParams(t, Twitter, nil), nil, quietLogger())

	if !strings.Contains(res.Error, "Unknown error") {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestTwitterExhaustsPolls(t *testing.T) {
	f := &fakeTwitter{states: []string{"in_progress"}}
	a := newTwitterTest(t, f)

	res := Run(context.Background(), a, Job{ID: "j", Path: writeVideo(t, "clip.mp4", 10)}, mapParams(t, Twitter, nil), nil, quietLogger())

	if res.State != TimedOut || !errors.Is(res.Err, ErrTimeout) {
		t.Errorf("Run() = %+v, want timed out", res)
	}
	if f.statusReq != 5 {
		t.Errorf("status polls = %d, want 5", f.statusReq)
	}
	if f.tweet != nil {
		t.Error("tweet created without processed media")
	}
}

func TestTwitterTweetWithoutID(t *testing.T) {
	f := &fakeTwitter{states: []string{"succeeded"}, omitID: true}
	a := newTwitterTest(t, f)

	res := Run(context.Background(), a, Job{ID: "j", Path: writeVideo(t, "clip.mp4", 10)}, mapParams(t, Twitter, nil), nil, quietLogger())

	if res.Success || !errors.Is(res.Err, ErrUnexpectedResponse) {
		t.Errorf("Run() = %+v, want unexpected response", res)
	}
}

func TestTwitterRejectsLongText(t *testing.T) {
	f := &fakeTwitter{states: []string{"succeeded"}}
	a := newTwitterTest(t, f)
	params := mapParams(t, Twitter, map[string]string{"twitter_tweet_text": strings.Repeat("é", 281)})

	res := Run(context.Background(), a, Job{ID: "j", Path: writeVideo(t, "clip.mp4", 10)}, params, nil, quietLogger())

	if !errors.Is(res.Err, ErrValidation) {
		t.Errorf("Err = %v, want ErrValidation", res.Err)
	}
	if len(f.segments) != 0 {
		t.Error("upload attempted after validation failure")
	}
}

func TestProcessingInfoWait(t *testing.T) {
	var none *processingInfo
	if got := none.wait(time.Second); got != time.Second {
		t.Errorf("nil info = %v", got)
	}
	if got := (&processingInfo{}).wait(time.Second); got != time.Second {
		t.Errorf("no hint = %v", got)
	}
	if got := (&processingInfo{CheckAfterSecs: 5}).wait(time.Second); got != 5*time.Second {
		t.Errorf("hint = %v", got)
	}
}

func TestNewTwitterRequiresAllCredentials(t *testing.T) {
	creds := twCreds
	creds.AccessTokenSecret = ""
	_, err := NewTwitter(TwitterConfig{Credentials: creds}, Deps{})
	if !errors.Is(err, ErrCredentials) {
		t.Errorf("err = %v", err)
	}
}
