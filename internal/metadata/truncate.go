package metadata

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// minDescription is the fewest description characters worth keeping.
	minDescription = 10
	// minHashtags is the fewest hashtag characters worth keeping.
	minHashtags = 5
	// separatorSlack is reserved around each block separator.
	separatorSlack = 4
)

// Hashtags renders tags as a space separated "#tag" block. Punctuation and
// whitespace inside a tag are removed and empty tags are skipped.
func Hashtags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		clean := strings.Map(func(r rune) rune {
			if r == '_' {
				return r
			}
			if unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r) {
				return -1
			}
			return r
		}, tag)
		if clean != "" {
			out = append(out, "#"+clean)
		}
	}
	return strings.Join(out, " ")
}

// SmartTruncate composes "title\n\ndescription\n\n#hashtags" within budget
// characters. The title always survives (clipped if it alone overflows).
// Hashtags are kept ahead of the description, the description is clipped
// before it is dropped, and the hashtag block is dropped when fewer than a
// handful of characters remain for it.
//
// Lengths are counted in runes. Applying SmartTruncate to its own output
// with no description or tags returns the output unchanged.
func SmartTruncate(title, description string, tags []string, budget int) string {
	if budget <= 0 {
		return ""
	}
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	hashtags := Hashtags(tags)

	if runeLen(title) >= budget {
		return strings.TrimSpace(clip(title, budget))
	}

	titleTags := title
	if hashtags != "" {
		titleTags = strings.TrimSpace(title + "\n\n" + hashtags)
	}

	if runeLen(titleTags) <= budget {
		if description == "" {
			return titleTags
		}
		full := joinBlocks(title, description, hashtags)
		if runeLen(full) <= budget {
			return full
		}
		available := budget - runeLen(titleTags) - separatorSlack
		if available >= minDescription {
			if cut := strings.TrimSpace(clip(description, available)); cut != "" {
				return joinBlocks(title, cut, hashtags)
			}
		}
		return titleTags
	}

	available := budget - runeLen(title) - separatorSlack
	if available >= minHashtags {
		if cut := clipHashtags(hashtags, available); cut != "" {
			return joinBlocks(title, cut)
		}
	}
	return title
}

// clipHashtags keeps the whole hashtags that fit within n runes.
func clipHashtags(hashtags string, n int) string {
	var b strings.Builder
	for _, tag := range strings.Fields(hashtags) {
		next := runeLen(tag)
		if b.Len() > 0 {
			next++
		}
		if utf8.RuneCountInString(b.String())+next > n {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(tag)
	}
	return b.String()
}

func joinBlocks(blocks ...string) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b != "" {
			parts = append(parts, b)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Clip returns at most n runes of s.
func Clip(s string, n int) string {
	return clip(s, n)
}

func clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if runeLen(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
