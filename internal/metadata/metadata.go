// Package metadata maps one set of video metadata onto each platform's
// parameter vocabulary and character budgets.
package metadata

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Platform keys used for mapping and for "{platform}_{field}" overrides.
const (
	YouTube   = "youtube"
	Instagram = "instagram"
	TikTok    = "tiktok"
	Twitter   = "twitter"
)

// Character budgets.
const (
	YouTubeTitleLimit       = 100
	YouTubeDescriptionLimit = 5000
	InstagramCaptionLimit   = 2200
	TikTokTitleLimit        = 4000
	TweetLimit              = 280
)

// Defaults applied when the caller supplies nothing.
const (
	DefaultTitle              = "Upload"
	DefaultYouTubeDescription = "Uploaded via API"
	DefaultYouTubeCategory    = "22"
	DefaultYouTubePrivacy     = "public"
	DefaultTikTokPrivacy      = "PUBLIC_TO_EVERYONE"
)

// Allowed enumerations.
var (
	YouTubePrivacyStatuses = []string{"public", "private", "unlisted"}
	TikTokPrivacyLevels    = []string{"PUBLIC_TO_EVERYONE", "MUTUAL_FOLLOW_FRIENDS", "SELF_ONLY"}
)

// Common is the platform-neutral metadata supplied with an upload.
type Common struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Mapper converts Common metadata into platform parameters.
type Mapper func(Common) Params

var mappers = map[string]Mapper{
	YouTube:   mapYouTube,
	Instagram: mapInstagram,
	TikTok:    mapTikTok,
	Twitter:   mapTwitter,
}

// Platforms returns the platform keys with a mapper, sorted.
func Platforms() []string {
	names := make([]string, 0, len(mappers))
	for name := range mappers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Map produces the parameters for platform, then merges any
// "{platform}_{field}" entries of overrides on top.
func Map(platform string, c Common, overrides map[string]string) (Params, error) {
	key := strings.ToLower(platform)
	m, ok := mappers[key]
	if !ok {
		return nil, fmt.Errorf("metadata: no mapping for platform %q", platform)
	}
	if strings.TrimSpace(c.Title) == "" {
		c.Title = DefaultTitle
	}
	p := m(c)
	ApplyOverrides(key, p, overrides)
	return p, nil
}

// ApplyOverrides copies every "{platform}_{field}" entry of overrides into p
// under "field". Other platforms' keys are ignored.
func ApplyOverrides(platform string, p Params, overrides map[string]string) {
	prefix := strings.ToLower(platform) + "_"
	for k, v := range overrides {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, prefix) && len(lk) > len(prefix) {
			p[lk[len(prefix):]] = v
		}
	}
}

func mapYouTube(c Common) Params {
	desc := strings.TrimSpace(c.Description)
	if desc == "" {
		desc = DefaultYouTubeDescription
	}
	return Params{
		"title":          strings.TrimSpace(Clip(strings.TrimSpace(c.Title), YouTubeTitleLimit)),
		"description":    Clip(desc, YouTubeDescriptionLimit),
		"tags":           cleanTags(c.Tags),
		"privacy_status": DefaultYouTubePrivacy,
		"category":       DefaultYouTubeCategory,
	}
}

func mapInstagram(c Common) Params {
	return Params{
		"caption":       SmartTruncate(c.Title, c.Description, c.Tags, InstagramCaptionLimit),
		"share_to_feed": true,
		"thumb_offset":  0,
	}
}

func mapTikTok(c Common) Params {
	return Params{
		"title":         SmartTruncate(c.Title, c.Description, c.Tags, TikTokTitleLimit),
		"privacy_level": DefaultTikTokPrivacy,
	}
}

func mapTwitter(c Common) Params {
	return Params{
		"tweet_text": SmartTruncate(c.Title, c.Description, c.Tags, TweetLimit),
	}
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#")); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Params is a platform's mapped parameter set.
type Params map[string]any

// String returns the value for key as a string.
func (p Params) String(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, ",")
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns the value for key as a bool, or def when key is unset. A
// value that does not parse is an error.
func (p Params) Bool(key string, def bool) (bool, error) {
	switch v := p[key].(type) {
	case nil:
		return def, nil
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return def, fmt.Errorf("%s %q is not a boolean", key, v)
		}
		return b, nil
	default:
		return def, fmt.Errorf("%s has unsupported type %T", key, v)
	}
}

// Int returns the value for key as an int, or def when key is unset. A
// value that does not parse is an error.
func (p Params) Int(key string, def int) (int, error) {
	switch v := p[key].(type) {
	case nil:
		return def, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return def, fmt.Errorf("%s %v is not an integer", key, v)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return def, fmt.Errorf("%s %q is not an integer", key, v)
		}
		return n, nil
	default:
		return def, fmt.Errorf("%s has unsupported type %T", key, v)
	}
}

// Strings returns the value for key as a list. A string value is split on commas.
func (p Params) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case string:
		return cleanTags(strings.Split(v, ","))
	}
	return nil
}

// OneOf checks that the string at key is one of allowed.
func (p Params) OneOf(key string, allowed []string) error {
	v := p.String(key)
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s %q is not one of %s", key, v, strings.Join(allowed, ", "))
}
