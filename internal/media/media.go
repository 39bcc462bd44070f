// Package media checks that a local video file is acceptable to a platform
// before any network traffic happens.
package media

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Size units.
const (
	MiB = int64(1) << 20
	GiB = int64(1) << 30
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid media")

// ErrProberUnavailable is returned when ffprobe is not installed.
var ErrProberUnavailable = errors.New("ffprobe not available")

// Rules describe what one platform accepts.
type Rules struct {
	// MaxSize in bytes; zero means no limit.
	MaxSize int64
	// Extensions lists accepted lowercase extensions including the dot; empty accepts any.
	Extensions []string
}

// Info describes a validated file.
type Info struct {
	Path      string
	Size      int64
	Extension string
	// Probe is nil when no prober was available.
	Probe *Probe
}

// SizeMB returns the size in mebibytes.
func (i Info) SizeMB() float64 {
	return float64(i.Size) / float64(MiB)
}

// ContentType returns the MIME type implied by the extension.
func (i Info) ContentType() string {
	return ContentType(i.Path)
}

// Probe is the container-level information read by a Prober.
type Probe struct {
	FormatName string
	Duration   float64
	Width      int
	Height     int
	Codec      string
}

// Prober reads container information from a file.
type Prober interface {
	Probe(path string) (*Probe, error)
}

// Inspect validates path against rules: the file must exist, be a regular
// non-empty file within the size limit and carry an accepted extension.
// When prober is non-nil the file must also parse as a video container.
func Inspect(path string, rules Rules, prober Prober) (Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, errors.Wrapf(ErrInvalid, "file not found: %s", path)
		}
		return Info{}, errors.Wrapf(err, "stat %s", path)
	}
	if !st.Mode().IsRegular() {
		return Info{}, errors.Wrapf(ErrInvalid, "not a regular file: %s", path)
	}
	if st.Size() == 0 {
		return Info{}, errors.Wrapf(ErrInvalid, "file is empty: %s", path)
	}
	if rules.MaxSize > 0 && st.Size() > rules.MaxSize {
		return Info{}, errors.Wrapf(ErrInvalid, "file size %s exceeds limit of %s", FormatSize(st.Size()), FormatSize(rules.MaxSize))
	}

	ext := strings.ToLower(filepath.Ext(path))
	if len(rules.Extensions) > 0 && !contains(rules.Extensions, ext) {
		return Info{}, errors.Wrapf(ErrInvalid, "unsupported format %q, supported: %s", ext, strings.Join(rules.Extensions, ", "))
	}

	info := Info{Path: path, Size: st.Size(), Extension: ext}
	if prober == nil {
		return info, nil
	}

	probe, err := prober.Probe(path)
	if err != nil {
		if errors.Is(err, ErrProberUnavailable) {
			return info, nil
		}
		return Info{}, errors.Wrapf(ErrInvalid, "unreadable video container: %v", err)
	}
	info.Probe = probe
	return info, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// FormatSize renders a byte count for humans.
func FormatSize(n int64) string {
	switch {
	case n >= GiB:
		return fmt.Sprintf("%.1fGB", float64(n)/float64(GiB))
	case n >= MiB:
		return fmt.Sprintf("%.1fMB", float64(n)/float64(MiB))
	default:
		return fmt.Sprintf("%dB", n)
	}
}

// ContentType maps a file extension to its video MIME type.
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".wmv":
		return "video/x-ms-wmv"
	case ".flv":
		return "video/x-flv"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	default:
		return "video/mp4"
	}
}

// FFProbe probes files with the ffprobe binary.
type FFProbe struct {
	available bool
}

// NewFFProbe looks up ffprobe on PATH. A missing binary is not an error;
// probing then reports ErrProberUnavailable and validation skips the check.
func NewFFProbe() *FFProbe {
	_, err := exec.LookPath("ffprobe")
	return &FFProbe{available: err == nil}
}

// Available reports whether ffprobe was found.
func (p *FFProbe) Available() bool {
	return p.available
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe on path and requires at least one video stream.
func (p *FFProbe) Probe(path string) (*Probe, error) {
	if !p.available {
		return nil, ErrProberUnavailable
	}
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return nil, errors.Wrap(err, "ffprobe")
	}
	return parseProbe([]byte(out))
}

func parseProbe(data []byte) (*Probe, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.WithStack(err)
	}

	probe := &Probe{FormatName: out.Format.FormatName}
	if d, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64); err == nil {
		probe.Duration = d
	}
	for _, s := range out.Streams {
		if s.CodecType == "video" {
			probe.Width = s.Width
			probe.Height = s.Height
			probe.Codec = s.CodecName
			return probe, nil
		}
	}
	return nil, errors.New("no video stream found")
}
