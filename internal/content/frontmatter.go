package content

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const dateTimeLayout = "2006-01-02 15:04:05"
const dateLayout = "2006-01-02"

// Metadata is the key-value mapping parsed from a document's frontmatter
// block. Values are scalar strings, string lists, or whatever else the YAML
// block contained; the accessors below coerce defensively.
type Metadata map[string]interface{}

// SplitFrontmatter separates a leading ----delimited YAML block from the
// document body. A document without a complete frontmatter block is returned
// unchanged with empty metadata.
func SplitFrontmatter(raw string) (Metadata, string, error) {
	if !strings.HasPrefix(raw, "---") {
		return Metadata{}, raw, nil
	}

	parts := strings.SplitN(raw, "---", 3)
	if len(parts) < 3 {
		return Metadata{}, raw, nil
	}

	meta := Metadata{}
	if err := yaml.Unmarshal([]byte(parts[1]), &meta); err != nil {
		return nil, "", fmt.Errorf("invalid frontmatter: %w", err)
	}
	if meta == nil {
		meta = Metadata{}
	}

	return meta, strings.TrimSpace(parts[2]), nil
}

// FillDefaults back-fills title and date. Existing non-empty values are
// never overwritten.
func (m Metadata) FillDefaults(fallbackTitle string) {
	if m.String("title") == "" {
		m["title"] = fallbackTitle
	}
	switch v := m["date"].(type) {
	case nil:
		m["date"] = time.Now().Format(dateTimeLayout)
	case string:
		if v == "" {
			m["date"] = time.Now().Format(dateTimeLayout)
		}
	}
}

func (m Metadata) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Date resolves the frontmatter date against the two accepted layouts,
// falling back to the current instant when absent or unparseable.
func (m Metadata) Date() time.Time {
	switch v := m["date"].(type) {
	case string:
		if t, err := time.ParseInLocation(dateTimeLayout, v, time.Local); err == nil {
			return t
		}
		if t, err := time.ParseInLocation(dateLayout, v, time.Local); err == nil {
			return t
		}
	case time.Time:
		return v
	}
	return time.Now()
}

// Tags returns the raw tag list: a comma-separated string or a YAML list,
// trimmed, with empty items dropped.
func (m Metadata) Tags() []string {
	switch v := m["tags"].(type) {
	case string:
		return splitTags(strings.Split(v, ","))
	case []interface{}:
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return splitTags(items)
	case []string:
		return splitTags(v)
	}
	return nil
}

func splitTags(items []string) []string {
	tags := make([]string, 0, len(items))
	for _, item := range items {
		if tag := strings.TrimSpace(item); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// tagPattern is the storage policy for tags: lowercase Latin letters and
// Hangul syllables only.
var tagPattern = regexp.MustCompile(`^[a-z가-힣]+$`)

// NormalizeTags lowercases each tag, drops anything outside the allowed
// character class, and collapses duplicates preserving first-seen order.
func NormalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, raw := range tags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag == "" || !tagPattern.MatchString(tag) || seen[tag] {
			continue
		}
		seen[tag] = true
		normalized = append(normalized, tag)
	}
	return normalized
}

// slugDisallowed keeps Unicode letters and digits, not just ASCII \w, so
// accented and non-Latin titles survive slugging instead of collapsing to
// "untitled".
var (
	slugDisallowed = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	slugWhitespace = regexp.MustCompile(`\s+`)
)

// Slugify derives a URL-safe slug from a title. An empty result maps to
// "untitled".
func Slugify(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = slugDisallowed.ReplaceAllString(slug, "")
	slug = slugWhitespace.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "untitled"
	}
	return slug
}
