package sanitize

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var (
	// StrictPolicy removes all HTML. Titles, names, captions.
	StrictPolicy = bluemonday.StrictPolicy()

	// RichTextPolicy allows the formatting the admin editor produces.
	RichTextPolicy = newRichTextPolicy()
)

func newRichTextPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// Text strips all HTML tags and returns unescaped plain text, ready for
// template escaping.
func Text(input string) string {
	return strings.TrimSpace(html.UnescapeString(StrictPolicy.Sanitize(input)))
}

// HTML sanitizes rich text such as event descriptions and FAQ answers.
func HTML(input string) string {
	return strings.TrimSpace(RichTextPolicy.Sanitize(input))
}

// Excerpt renders sanitized HTML as plain text with collapsed whitespace,
// cut at a word boundary to at most maxRunes runes (plus an ellipsis).
func Excerpt(htmlInput string, maxRunes int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(HTML(htmlInput)))
	if err != nil {
		return truncate(Text(htmlInput), maxRunes)
	}
	doc.Find("br").ReplaceWithHtml(" ")
	doc.Find("p, li, h1, h2, h3, h4").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return truncate(strings.Join(strings.Fields(doc.Text()), " "), maxRunes)
}

func truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)[:maxRunes]
	cut := len(runes)
	for i := len(runes) - 1; i > maxRunes/2; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace) + "…"
}

var turkishFold = strings.NewReplacer(
	"ç", "c", "Ç", "c",
	"ğ", "g", "Ğ", "g",
	"ı", "i", "I", "i", "İ", "i",
	"ö", "o", "Ö", "o",
	"ş", "s", "Ş", "s",
	"ü", "u", "Ü", "u",
	"â", "a", "Â", "a",
	"î", "i", "Î", "i",
	"û", "u", "Û", "u",
)

// Slug folds Turkish letters to ASCII and joins words with hyphens:
// "Müzik ve Şiir Kulübü" -> "muzik-ve-siir-kulubu".
func Slug(input string) string {
	folded := strings.ToLower(turkishFold.Replace(Text(input)))

	var b strings.Builder
	pendingDash := false
	for _, r := range folded {
		switch {
		case r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}
	return b.String()
}
