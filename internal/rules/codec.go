package rules

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"
)

// ChallengeMarkers are substrings that identify an anti-bot interstitial
// page served instead of the requested document.
var ChallengeMarkers = []string{
	"Checking your browser before accessing",
	"Just a moment...",
	"cf-browser-verification",
}

var errMissingField = errors.New("missing required field")

// Report describes what Parse did with a blob.
type Report struct {
	// Total is the number of array elements seen.
	Total int
	// Dropped is the number of elements that failed to decode.
	Dropped int
	// Malformed is set when the document itself was not a JSON array.
	Malformed bool
	// Err holds the document-level error when Malformed is set.
	Err error
}

type wireEntry struct {
	AppName         *string         `json:"appName"`
	PackageName     *string         `json:"packageName"`
	IsEnabled       *bool           `json:"isEnabled"`
	IsEnabledAll    *bool           `json:"isEnabledAll"`
	IconBitmap      *string         `json:"iconBitmap"`
	IconColor       json.RawMessage `json:"iconColor,omitempty"`
	ContributorName *string         `json:"contributorName"`
}

type outEntry struct {
	AppName         string `json:"appName"`
	PackageName     string `json:"packageName"`
	IsEnabled       bool   `json:"isEnabled"`
	IsEnabledAll    bool   `json:"isEnabledAll"`
	IconBitmap      string `json:"iconBitmap"`
	IconColor       string `json:"iconColor,omitempty"`
	ContributorName string `json:"contributorName"`
}

// Parse decodes a stored rule blob. A blob that is not a JSON array yields
// an empty set; elements that fail to decode are skipped.
func Parse(blob string) *RuleSet {
	set, _ := ParseWithReport(blob)
	return set
}

// ParseWithReport is Parse plus a summary of dropped elements.
func ParseWithReport(blob string) (*RuleSet, Report) {
	var report Report
	if strings.TrimSpace(blob) == "" {
		return NewRuleSet(nil), report
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		report.Malformed = true
		report.Err = err
		return NewRuleSet(nil), report
	}

	entries := make([]Entry, 0, len(raw))
	for _, elem := range raw {
		report.Total++
		e, err := decodeEntry(elem)
		if err != nil {
			report.Dropped++
			continue
		}
		entries = append(entries, e)
	}
	return &RuleSet{entries: entries}, report
}

func decodeEntry(elem json.RawMessage) (Entry, error) {
	var w wireEntry
	if err := json.Unmarshal(elem, &w); err != nil {
		return Entry{}, err
	}
	if w.PackageName == nil || *w.PackageName == "" {
		return Entry{}, fmt.Errorf("packageName: %w", errMissingField)
	}
	if w.IsEnabled == nil || w.IsEnabledAll == nil {
		return Entry{}, fmt.Errorf("%s: enable flags: %w", *w.PackageName, errMissingField)
	}
	if w.IconBitmap == nil {
		return Entry{}, fmt.Errorf("%s: iconBitmap: %w", *w.PackageName, errMissingField)
	}

	img, err := DecodeImage(*w.IconBitmap)
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %w", *w.PackageName, err)
	}

	e := Entry{
		PackageName:  *w.PackageName,
		IsEnabled:    *w.IsEnabled,
		IsEnabledAll: *w.IsEnabledAll,
		Icon:         img,
	}
	if w.AppName != nil {
		e.AppName = *w.AppName
	}
	if w.ContributorName != nil {
		e.ContributorName = *w.ContributorName
	}
	if len(w.IconColor) > 0 {
		var s string
		if json.Unmarshal(w.IconColor, &s) == nil {
			e.IconColor, e.HasIconColor = ParseColor(s)
		}
	}
	return e, nil
}

// DecodeImage decodes a base64 encoded raster image. Line breaks inside the
// encoded text are ignored.
func DecodeImage(encoded string) (image.Image, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, encoded)

	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "="))
		if err != nil {
			return nil, fmt.Errorf("icon bitmap is not base64: %w", err)
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode icon bitmap: %w", err)
	}
	return img, nil
}

// EncodeImage encodes img as base64 PNG.
func EncodeImage(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode icon bitmap: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Serialize encodes set as the JSON array format read by Parse.
func Serialize(set *RuleSet) (string, error) {
	out := make([]outEntry, 0, set.Len())
	for _, e := range set.Entries() {
		if e.Icon == nil {
			return "", fmt.Errorf("%s: icon bitmap is required", e.PackageName)
		}
		bitmap, err := EncodeImage(e.Icon)
		if err != nil {
			return "", fmt.Errorf("%s: %w", e.PackageName, err)
		}
		o := outEntry{
			AppName:         e.AppName,
			PackageName:     e.PackageName,
			IsEnabled:       e.IsEnabled,
			IsEnabledAll:    e.IsEnabledAll,
			IconBitmap:      bitmap,
			ContributorName: e.ContributorName,
		}
		if e.HasIconColor {
			o.IconColor = e.IconColor.String()
		}
		out = append(out, o)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to marshal rules: %w", err)
	}
	return string(data), nil
}

// Merge splices two JSON array texts into one by dropping the closing
// bracket of a and the opening bracket of b. No validation is done; a blank
// or empty-array side returns the other side unchanged.
func Merge(a, b string) string {
	if isEmptyArrayText(a) {
		if strings.TrimSpace(b) == "" {
			return "[]"
		}
		return b
	}
	if isEmptyArrayText(b) {
		return a
	}

	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if i := strings.LastIndex(a, "]"); i >= 0 {
		a = a[:i]
	}
	if i := strings.Index(b, "["); i >= 0 {
		b = b[i+1:]
	}
	return a + "," + b
}

func isEmptyArrayText(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return false
	}
	return strings.TrimSpace(s[1:len(s)-1]) == ""
}

// IsValidJSONArray is a cheap structural check: the trimmed text must start
// with '[' and end with ']'.
func IsValidJSONArray(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")
}

// IsChallengePage reports whether s is an anti-bot interstitial page.
func IsChallengePage(s string) bool {
	for _, marker := range ChallengeMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// Differs compares two blobs after trimming surrounding whitespace.
func Differs(stored, candidate string) bool {
	return strings.TrimSpace(stored) != strings.TrimSpace(candidate)
}
