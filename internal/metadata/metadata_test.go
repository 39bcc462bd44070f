package metadata

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestHashtags(t *testing.T) {
	got := Hashtags([]string{"#go", "open source", "", "c++", "snake_case", "!!"})
	want := "#go #opensource #c #snake_case"
	if got != want {
		t.Errorf("Hashtags() = %q, want %q", got, want)
	}
}

func TestSmartTruncateTitleOnlyOverflow(t *testing.T) {
	title := strings.Repeat("A", 300)
	got := SmartTruncate(title, "", []string{"x"}, 280)
	if got != strings.Repeat("A", 280) {
		t.Errorf("got %d chars, want the first 280 of the title", len(got))
	}
}

func TestSmartTruncateEverythingFits(t *testing.T) {
	got := SmartTruncate("My clip", "A short description.", []string{"go", "video"}, 280)
	want := "My clip\n\nA short description.\n\n#go #video"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSmartTruncateClipsDescriptionFirst(t *testing.T) {
	title := "Title"
	tags := []string{"one", "two"}
	desc := strings.Repeat("d", 500)

	got := SmartTruncate(title, desc, tags, 100)
	if !strings.HasPrefix(got, "Title\n\n") || !strings.HasSuffix(got, "\n\n#one #two") {
		t.Fatalf("got %q", got)
	}
	if n := utf8.RuneCountInString(got); n > 100 {
		t.Errorf("length %d exceeds 100", n)
	}
	// budget - len("Title\n\n#one #two") - 4
	if kept := strings.Count(got, "d"); kept != 100-len("Title\n\n#one #two")-4 {
		t.Errorf("kept %d description characters", kept)
	}
}

func TestSmartTruncateDropsShortDescription(t *testing.T) {
	title := strings.Repeat("T", 80)
	// title + "\n\n#tag" is 86 runes, leaving 98-86-4 = 8 for the description.
	got := SmartTruncate(title, "a description that cannot fit", []string{"tag"}, 98)
	want := title + "\n\n#tag"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSmartTruncateDescriptionAtMinimum(t *testing.T) {
	title := "T"
	tags := []string{"tag"}
	// titleTags = "T\n\n#tag" (7 runes); budget 21 leaves exactly 10.
	got := SmartTruncate(title, strings.Repeat("x", 50), tags, 21)
	want := "T\n\n" + strings.Repeat("x", 10) + "\n\n#tag"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSmartTruncateClipsHashtags(t *testing.T) {
	title := strings.Repeat("T", 260)
	tags := []string{"alpha", "beta", "gamma", "delta"}

	got := SmartTruncate(title, "desc", tags, 280)
	want := title + "\n\n#alpha #beta"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSmartTruncateDropsHashtagsWhenTooLittleRoom(t *testing.T) {
	title := strings.Repeat("T", 273)
	got := SmartTruncate(title, "desc", []string{"alpha"}, 280)
	if got != title {
		t.Errorf("got %q, want the bare title", got)
	}
}

func TestSmartTruncateProperties(t *testing.T) {
	titles := []string{"", "short", strings.Repeat("é", 150), strings.Repeat("word ", 90)}
	descs := []string{"", "desc", strings.Repeat("long description ", 40)}
	tagSets := [][]string{nil, {"a"}, {"golang", "video", "upload", "tutorial", "shorts"}}
	budgets := []int{1, 20, 100, 280, 2200}

	for _, title := range titles {
		for _, desc := range descs {
			for _, tags := range tagSets {
				for _, budget := range budgets {
					got := SmartTruncate(title, desc, tags, budget)
					if n := utf8.RuneCountInString(got); n > budget {
						t.Fatalf("SmartTruncate(len %d, len %d, %v, %d) = %d runes", len(title), len(desc), tags, budget, n)
					}
					if again := SmartTruncate(got, "", nil, budget); again != got {
						t.Fatalf("not idempotent at budget %d: %q -> %q", budget, got, again)
					}
				}
			}
		}
	}
}

func TestMapYouTube(t *testing.T) {
	p, err := Map("YouTube", Common{
		Title: strings.Repeat("t", 120),
		Tags:  []string{"#go", " api "},
	}, nil)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if got := utf8.RuneCountInString(p.String("title")); got != 100 {
		t.Errorf("title length = %d, want 100", got)
	}
	if got := p.String("description"); got != DefaultYouTubeDescription {
		t.Errorf("description = %q", got)
	}
	if got := p.Strings("tags"); len(got) != 2 || got[0] != "go" || got[1] != "api" {
		t.Errorf("tags = %v", got)
	}
	if p.String("privacy_status") != "public" || p.String("category") != "22" {
		t.Errorf("defaults = %v", p)
	}
}

func TestMapBudgets(t *testing.T) {
	c := Common{
		Title:       "Launch",
		Description: strings.Repeat("words and more words ", 400),
		Tags:        []string{"launch", "product"},
	}

	tests := []struct {
		platform string
		field    string
		limit    int
	}{
		{Instagram, "caption", InstagramCaptionLimit},
		{TikTok, "title", TikTokTitleLimit},
		{Twitter, "tweet_text", TweetLimit},
	}
	for _, tt := range tests {
		p, err := Map(tt.platform, c, nil)
		if err != nil {
			t.Fatalf("Map(%s): %v", tt.platform, err)
		}
		text := p.String(tt.field)
		if n := utf8.RuneCountInString(text); n > tt.limit || n == 0 {
			t.Errorf("%s %s length = %d, limit %d", tt.platform, tt.field, n, tt.limit)
		}
		if !strings.HasSuffix(text, "#launch #product") {
			t.Errorf("%s %s lost its hashtags", tt.platform, tt.field)
		}
	}
}

func TestMapDefaultsAndOverrides(t *testing.T) {
	overrides := map[string]string{
		"tiktok_privacy_level":    "SELF_ONLY",
		"instagram_share_to_feed": "false",
		"youtube_privacy_status":  "unlisted",
		"twitter_":                "ignored",
		"unrelated":               "ignored",
	}

	tk, _ := Map(TikTok, Common{}, overrides)
	if tk.String("privacy_level") != "SELF_ONLY" {
		t.Errorf("tiktok privacy_level = %q", tk.String("privacy_level"))
	}
	if tk.String("title") != DefaultTitle {
		t.Errorf("tiktok title = %q, want %q", tk.String("title"), DefaultTitle)
	}
	if err := tk.OneOf("privacy_level", TikTokPrivacyLevels); err != nil {
		t.Errorf("OneOf: %v", err)
	}

	ig, _ := Map(Instagram, Common{Title: "x"}, overrides)
	if share, err := ig.Bool("share_to_feed", true); err != nil || share {
		t.Errorf("instagram share_to_feed = %v, %v, want override false", share, err)
	}
	if off, err := ig.Int("thumb_offset", -1); err != nil || off != 0 {
		t.Errorf("thumb_offset = %d, %v", off, err)
	}

	yt, _ := Map(YouTube, Common{Title: "x"}, overrides)
	if yt.String("privacy_status") != "unlisted" {
		t.Errorf("youtube privacy_status = %q", yt.String("privacy_status"))
	}

	tw, _ := Map(Twitter, Common{Title: "x"}, overrides)
	if len(tw) != 1 {
		t.Errorf("twitter params = %v, want only tweet_text", tw)
	}
}

func TestMapUnknownPlatform(t *testing.T) {
	if _, err := Map("myspace", Common{}, nil); err == nil {
		t.Error("Map accepted an unknown platform")
	}
}

func TestOverrideFieldsAreCaseInsensitive(t *testing.T) {
	p, err := Map(YouTube, Common{Title: "x"}, map[string]string{"YouTube_Privacy_Status": "private"})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if got := p.String("privacy_status"); got != "private" {
		t.Errorf("privacy_status = %q, want private", got)
	}
	if _, ok := p["Privacy_Status"]; ok {
		t.Error("override stored under its original case")
	}
}

func TestParamsBoolAndInt(t *testing.T) {
	p := Params{"on": "TRUE", "off": false, "n": " 42 ", "f": 3.0, "bad": "maybe", "frac": 1.5}

	if v, err := p.Bool("on", false); err != nil || !v {
		t.Errorf("Bool(on) = %v, %v", v, err)
	}
	if v, err := p.Bool("off", true); err != nil || v {
		t.Errorf("Bool(off) = %v, %v", v, err)
	}
	if v, err := p.Bool("missing", true); err != nil || !v {
		t.Errorf("Bool(missing) = %v, %v, want default", v, err)
	}
	if _, err := p.Bool("bad", true); err == nil {
		t.Error("Bool accepted \"maybe\"")
	}
	if v, err := p.Int("n", 0); err != nil || v != 42 {
		t.Errorf("Int(n) = %v, %v", v, err)
	}
	if v, err := p.Int("f", 0); err != nil || v != 3 {
		t.Errorf("Int(f) = %v, %v", v, err)
	}
	if v, err := p.Int("missing", 7); err != nil || v != 7 {
		t.Errorf("Int(missing) = %v, %v, want default", v, err)
	}
	for _, key := range []string{"bad", "frac"} {
		if _, err := p.Int(key, 0); err == nil {
			t.Errorf("Int(%s) accepted %v", key, p[key])
		}
	}
}

func TestOneOfRejects(t *testing.T) {
	p := Params{"privacy_status": "friends"}
	if err := p.OneOf("privacy_status", YouTubePrivacyStatuses); err == nil {
		t.Error("OneOf accepted an invalid value")
	}
}
