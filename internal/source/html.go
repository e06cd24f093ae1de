// Package source provides email sources that seed the repository: an
// embedded mock inbox for demos and tests, and a live IMAP adapter.
package source

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// htmlToText converts an HTML email body to clean plain text. Prompts built
// from email bodies should carry prose, not markup.
type htmlToText struct {
	whitespace *regexp.Regexp
	newlines   *regexp.Regexp
	invisible  *regexp.Regexp
}

func newHTMLToText() *htmlToText {
	return &htmlToText{
		whitespace: regexp.MustCompile(`[^\S\n]+`),
		newlines:   regexp.MustCompile(`\n{3,}`),
		// Zero-width spaces and similar invisible characters that email
		// campaigns sprinkle into bodies.
		invisible: regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{2060}-\x{2064}]+`),
	}
}

func (p *htmlToText) Parse(html string) (string, error) {
	if html == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link").Remove()

	// Block elements become line breaks so the text keeps its structure.
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(i int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := doc.Text()
	text = p.invisible.ReplaceAllString(text, "")
	text = p.whitespace.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	var clean []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			clean = append(clean, line)
		}
	}
	text = strings.Join(clean, "\n")
	text = p.newlines.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text), nil
}
