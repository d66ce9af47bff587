// Package sanitize cleans user input before it is displayed, stored or sent
// to the API.
package sanitize

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Limits
const (
	MaxFilenameLength = 255
	MaxQueryLength    = 100
	MinPhoneDigits    = 10
	MaxPhoneDigits    = 15
)

var (
	emailPattern      = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	filenameInvalid   = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
	filenameDots      = regexp.MustCompile(`\.{2,}`)
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	entityPattern     = regexp.MustCompile(`&[^;]+;`)
	nonDigitPattern   = regexp.MustCompile(`\D`)
	queryInvalidChars = regexp.MustCompile(`[^\w\s-]`)
)

var textEscaper = strings.NewReplacer(
	"<", "",
	">", "",
	"&", "&amp;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// Text removes angle brackets, escapes & " ' / and trims surrounding space.
func Text(input string) string {
	return strings.TrimSpace(textEscaper.Replace(input))
}

// allowedTags may appear in HTML output. Everything else is dropped along
// with its content.
var allowedTags = map[atom.Atom]bool{
	atom.P:      true,
	atom.B:      true,
	atom.I:      true,
	atom.Em:     true,
	atom.Strong: true,
	atom.A:      true,
	atom.Ul:     true,
	atom.Ol:     true,
	atom.Li:     true,
	atom.Br:     true,
}

var allowedAttrs = map[string]bool{
	"href":   true,
	"title":  true,
	"target": true,
}

// HTML keeps only allow-listed tags and attributes. href survives only when it
// starts with "http".
func HTML(input string) string {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}

	nodes, err := html.ParseFragment(strings.NewReader(input), ctx)
	if err != nil {
		return ""
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		if !cleanNode(n) {
			continue
		}
		if err := html.Render(&buf, n); err != nil {
			return ""
		}
	}
	return buf.String()
}

// cleanNode strips n in place and reports whether it should be kept.
func cleanNode(n *html.Node) bool {
	switch n.Type {
	case html.TextNode:
		return true
	case html.ElementNode:
		if !allowedTags[n.DataAtom] {
			return false
		}
	default:
		return false
	}

	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace != "" || !allowedAttrs[a.Key] {
			continue
		}
		if a.Key == "href" && !strings.HasPrefix(a.Val, "http") {
			continue
		}
		attrs = append(attrs, a)
	}
	n.Attr = attrs

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if !cleanNode(c) {
			n.RemoveChild(c)
		}
		c = next
	}
	return true
}

// Filename replaces anything outside [A-Za-z0-9.-] with '_', collapses runs of
// dots, trims leading and trailing dots and caps the length.
func Filename(name string) string {
	name = filenameInvalid.ReplaceAllString(name, "_")
	name = filenameDots.ReplaceAllString(name, ".")
	name = strings.Trim(name, ".")
	if len(name) > MaxFilenameLength {
		name = name[:MaxFilenameLength]
	}
	return name
}

// URL returns the normalized URL, or "" unless it is absolute http or https.
func URL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if u.Host == "" {
		return ""
	}

	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// Email returns the lower-cased address, or "" when it is not valid.
func Email(email string) string {
	if !emailPattern.MatchString(email) {
		return ""
	}
	return NormalizeEmail(email)
}

// NormalizeEmail trims and lower-cases an address without checking it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// StripHTML removes tags and entities.
func StripHTML(input string) string {
	input = tagPattern.ReplaceAllString(input, "")
	input = entityPattern.ReplaceAllString(input, "")
	return strings.TrimSpace(input)
}

// Phone keeps only digits. Fewer than 10 or more than 15 yields "".
func Phone(phone string) string {
	digits := nonDigitPattern.ReplaceAllString(phone, "")
	if len(digits) < MinPhoneDigits || len(digits) > MaxPhoneDigits {
		return ""
	}
	return digits
}

// SearchQuery drops everything but word characters, spaces and hyphens and
// caps the result at MaxQueryLength characters.
func SearchQuery(query string) string {
	query = strings.TrimSpace(queryInvalidChars.ReplaceAllString(query, ""))
	if utf8.RuneCountInString(query) > MaxQueryLength {
		query = string([]rune(query)[:MaxQueryLength])
	}
	return query
}

// ErrInvalidJSON is returned by JSON for input that does not parse.
var ErrInvalidJSON = errors.New("invalid JSON")

// JSON validates data and re-encodes it compactly. Numbers keep their
// original text.
func JSON(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, ErrInvalidJSON
	}
	if err := dec.Decode(new(interface{})); err != io.EOF {
		return nil, ErrInvalidJSON
	}

	out, err := json.Marshal(v)
	if err != nil {
		return nil, ErrInvalidJSON
	}
	return out, nil
}
