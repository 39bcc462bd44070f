// Package clipcast publishes one finished video to several social platforms
// at once.
//
// Overview
//
// A single call fans the file out to every enabled platform adapter:
//
//   - youtube: resumable chunked upload through the YouTube Data API
//   - instagram: reel container created from a temporary public GCS copy
//   - tiktok: single-chunk Content Posting API upload
//   - twitter: chunked media upload followed by a tweet
//
// Each platform runs independently. One failing platform never prevents the
// others from publishing; its error is recorded in its result.
//
// Quick Start
//
//	ctx := context.Background()
//	results, err := clipcast.Publish(ctx, "final.mp4", clipcast.Metadata{
//		Title:       "Launch day",
//		Description: "Behind the scenes of the release",
//		Tags:        []string{"golang", "release"},
//	}, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, name := range results.Names() {
//		r := results[name]
//		fmt.Println(name, r.Success, r.ID, r.Error)
//	}
//
// Per-platform overrides use "{platform}_{field}" keys, for example
// "youtube_privacy_status": "unlisted" or "tiktok_privacy_level": "SELF_ONLY".
//
// Configuration
//
// Settings load from defaults, then clipcast.json (or
// ~/.config/clipcast/clipcast.json), then CLIPCAST_* environment variables.
// A .env file in the working directory is read first. Credentials come only
// from the environment:
//
//   - GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET, GOOGLE_REFRESH_TOKEN
//   - TIKTOK_CLIENT_KEY, TIKTOK_CLIENT_SECRET, TIKTOK_REFRESH_TOKEN
//   - FACEBOOK_APP_ID, FACEBOOK_APP_SECRET, FACEBOOK_PAGE_ID, FACEBOOK_ACCESS_TOKEN
//   - GCP_PROJECT_ID, GCP_PRIVATE_KEY_ID, GCP_PRIVATE_KEY, GCP_CLIENT_EMAIL,
//     GCP_CLIENT_ID, GCS_BUCKET_NAME
//   - TWITTER_API_KEY, TWITTER_API_KEY_SECRET, TWITTER_ACCESS_TOKEN,
//     TWITTER_ACCESS_TOKEN_SECRET, TWITTER_BEARER_TOKEN
//
// Platforms whose credentials are missing are skipped and reported.
//
// Error Handling
//
// Every failed result carries an error wrapping one category sentinel:
//
//	if errors.Is(results["instagram"].Err, clipcast.ErrTimeout) {
//		fmt.Println("reel is still processing")
//	}
//
// Advanced Usage
//
// For more control, use the sub-packages directly:
//
//   - platform: adapters, the per-upload state machine, and the registry
//   - orchestrator: bounded concurrent fan-out over any set of adapters
//   - http: retrying, rate limited HTTP client used by the adapters
//
// Dependencies
//
// Container validation uses ffprobe when it is on PATH and is skipped
// otherwise.
package clipcast
