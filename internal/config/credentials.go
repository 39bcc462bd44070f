package config

import (
	"fmt"
	"os"
	"strings"
)

// Credentials holds every platform's secrets as read from the environment.
type Credentials struct {
	YouTube   YouTubeCredentials
	TikTok    TikTokCredentials
	Instagram InstagramCredentials
	Twitter   TwitterCredentials
}

// YouTubeCredentials are Google OAuth client credentials.
type YouTubeCredentials struct {
	ClientID     string
	ClientSecret string
	// RefreshToken is minted interactively when empty.
	RefreshToken string
}

// TikTokCredentials are TikTok developer app credentials.
type TikTokCredentials struct {
	ClientKey    string
	ClientSecret string
	// RefreshToken is minted interactively when empty.
	RefreshToken string
}

// InstagramCredentials cover the Facebook app, the page linked to the
// Instagram business account, and the bucket used for temporary hosting.
type InstagramCredentials struct {
	AppID     string
	AppSecret string
	PageID    string
	// AccessToken is a long-lived user token, minted interactively when empty.
	AccessToken string

	GCPProjectID    string
	GCPPrivateKeyID string
	GCPPrivateKey   string
	GCPClientEmail  string
	GCPClientID     string
	Bucket          string
}

// TwitterCredentials are OAuth 1.0a user-context credentials.
type TwitterCredentials struct {
	APIKey            string
	APIKeySecret      string
	AccessToken       string
	AccessTokenSecret string
	BearerToken       string
}

// LoadCredentials reads all credential groups from the environment.
func LoadCredentials() Credentials {
	return Credentials{
		YouTube: YouTubeCredentials{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RefreshToken: os.Getenv("GOOGLE_REFRESH_TOKEN"),
		},
		TikTok: TikTokCredentials{
			ClientKey:    os.Getenv("TIKTOK_CLIENT_KEY"),
			ClientSecret: os.Getenv("TIKTOK_CLIENT_SECRET"),
			RefreshToken: os.Getenv("TIKTOK_REFRESH_TOKEN"),
		},
		Instagram: InstagramCredentials{
			AppID:           os.Getenv("FACEBOOK_APP_ID"),
			AppSecret:       os.Getenv("FACEBOOK_APP_SECRET"),
			PageID:          os.Getenv("FACEBOOK_PAGE_ID"),
			AccessToken:     os.Getenv("FACEBOOK_ACCESS_TOKEN"),
			GCPProjectID:    os.Getenv("GCP_PROJECT_ID"),
			GCPPrivateKeyID: os.Getenv("GCP_PRIVATE_KEY_ID"),
			GCPPrivateKey:   os.Getenv("GCP_PRIVATE_KEY"),
			GCPClientEmail:  os.Getenv("GCP_CLIENT_EMAIL"),
			GCPClientID:     os.Getenv("GCP_CLIENT_ID"),
			Bucket:          os.Getenv("GCS_BUCKET_NAME"),
		},
		Twitter: TwitterCredentials{
			APIKey:            os.Getenv("TWITTER_API_KEY"),
			APIKeySecret:      os.Getenv("TWITTER_API_KEY_SECRET"),
			AccessToken:       os.Getenv("TWITTER_ACCESS_TOKEN"),
			AccessTokenSecret: os.Getenv("TWITTER_ACCESS_TOKEN_SECRET"),
			BearerToken:       os.Getenv("TWITTER_BEARER_TOKEN"),
		},
	}
}

// MissingError lists required environment variables that are unset.
type MissingError struct {
	Platform string
	Vars     []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s: missing required environment variables: %s", e.Platform, strings.Join(e.Vars, ", "))
}

type field struct {
	env   string
	value string
}

func require(platform string, fields ...field) error {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.env)
		}
	}
	if len(missing) > 0 {
		return &MissingError{Platform: platform, Vars: missing}
	}
	return nil
}

// Check reports the required, non-refreshable YouTube fields that are missing.
func (c YouTubeCredentials) Check() error {
	return require("YouTube",
		field{"GOOGLE_CLIENT_ID", c.ClientID},
		field{"GOOGLE_CLIENT_SECRET", c.ClientSecret},
	)
}

// Check reports the required, non-refreshable TikTok fields that are missing.
func (c TikTokCredentials) Check() error {
	return require("TikTok",
		field{"TIKTOK_CLIENT_KEY", c.ClientKey},
		field{"TIKTOK_CLIENT_SECRET", c.ClientSecret},
	)
}

// Check reports the required, non-refreshable Instagram fields that are missing.
func (c InstagramCredentials) Check() error {
	return require("Instagram",
		field{"FACEBOOK_APP_ID", c.AppID},
		field{"FACEBOOK_APP_SECRET", c.AppSecret},
		field{"FACEBOOK_PAGE_ID", c.PageID},
		field{"GCP_PROJECT_ID", c.GCPProjectID},
		field{"GCP_PRIVATE_KEY_ID", c.GCPPrivateKeyID},
		field{"GCP_PRIVATE_KEY", c.GCPPrivateKey},
		field{"GCP_CLIENT_EMAIL", c.GCPClientEmail},
		field{"GCP_CLIENT_ID", c.GCPClientID},
		field{"GCS_BUCKET_NAME", c.Bucket},
	)
}

// Check reports the missing Twitter fields. All five are long-lived and required.
func (c TwitterCredentials) Check() error {
	return require("Twitter",
		field{"TWITTER_API_KEY", c.APIKey},
		field{"TWITTER_API_KEY_SECRET", c.APIKeySecret},
		field{"TWITTER_ACCESS_TOKEN", c.AccessToken},
		field{"TWITTER_ACCESS_TOKEN_SECRET", c.AccessTokenSecret},
		field{"TWITTER_BEARER_TOKEN", c.BearerToken},
	)
}
