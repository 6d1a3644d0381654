// Package htmlproc extracts title, text, and links from a page's HTML
// under fixed memory and size bounds, using goquery for DOM traversal.
package htmlproc

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/reeflabs/reef/internal/urlpolicy"
)

const (
	// DefaultMaxHTMLBytes is the hard cap applied to the input before
	// parsing when a Processor is built with htmlCap <= 0.
	DefaultMaxHTMLBytes = 500 * 1024
	// DefaultMaxTextBytes is the cap applied to the extracted text output
	// when a Processor is built with textCap <= 0.
	DefaultMaxTextBytes = 10 * 1024
	// MaxTitleChars caps the extracted title.
	MaxTitleChars = 200
	// MaxLinks caps the number of link candidates returned per page.
	MaxLinks = 50
	// truncationMarker is appended when text output is elided.
	truncationMarker = "…[truncated]"
	// minTextNodeLen filters out short, low-value text nodes.
	minTextNodeLen = 10
)

// strippedSelectors removes non-content subtrees before extraction.
const strippedSelectors = "script, style, nav, header, footer, aside, form, iframe"

// Result is the output of processing one page's HTML.
type Result struct {
	Title string
	Text  string
	Links []string
	// Failed is set when the HTML could not be parsed into any usable
	// output (spec's "parse-failed indicator").
	Failed bool
}

// Processor extracts title, text, and links from a page's HTML under
// configurable size bounds.
type Processor struct {
	maxHTMLBytes int
	maxTextBytes int
}

// NewProcessor builds a Processor. htmlCap/textCap <= 0 fall back to
// DefaultMaxHTMLBytes/DefaultMaxTextBytes.
func NewProcessor(htmlCap, textCap int) *Processor {
	if htmlCap <= 0 {
		htmlCap = DefaultMaxHTMLBytes
	}
	if textCap <= 0 {
		textCap = DefaultMaxTextBytes
	}
	return &Processor{maxHTMLBytes: htmlCap, maxTextBytes: textCap}
}

// Process parses raw HTML bytes relative to sourceURL and extracts title,
// text, and absolutized, policy-filtered links. The goquery document and its
// underlying x/net/html tree are local to this call and released on return;
// no state is retained across calls.
func (p *Processor) Process(htmlBytes []byte, sourceURL string) Result {
	if len(htmlBytes) > p.maxHTMLBytes {
		htmlBytes = htmlBytes[:p.maxHTMLBytes]
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(htmlBytes)))
	if err != nil {
		return Result{Failed: true}
	}

	doc.Find(strippedSelectors).Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if len(title) > MaxTitleChars {
		title = title[:MaxTitleChars]
	}

	text := p.extractText(doc)
	links := extractLinks(doc, sourceURL)

	if title == "" && text == "" && len(links) == 0 {
		return Result{Failed: true}
	}

	return Result{Title: title, Text: text, Links: links}
}

// extractText concatenates trimmed text nodes longer than minTextNodeLen,
// joined by single spaces, capped at maxTextBytes with a terminal marker.
func (p *Processor) extractText(doc *goquery.Document) string {
	var parts []string
	size := 0

	// Visit each text node once, as a child of its parent element, to avoid
	// quadratic re-accumulation of nested node text.
	doc.Find("*").Contents().Each(func(_ int, s *goquery.Selection) {
		if size >= p.maxTextBytes {
			return
		}
		if goquery.NodeName(s) != "#text" {
			return
		}
		text := strings.TrimSpace(s.Text())
		if len(text) <= minTextNodeLen {
			return
		}
		parts = append(parts, text)
		size += len(text) + 1
	})

	joined := strings.Join(parts, " ")
	if len(joined) > p.maxTextBytes {
		joined = joined[:p.maxTextBytes] + truncationMarker
	}
	return joined
}

// extractLinks absolutizes and policy-filters anchor hrefs, capped at
// MaxLinks. Duplicates within a page are not removed here.
func extractLinks(doc *goquery.Document, sourceURL string) []string {
	var links []string

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(links) >= MaxLinks {
			return false
		}
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		resolved, err := urlpolicy.ResolveURL(sourceURL, href)
		if err != nil {
			return true
		}
		if !urlpolicy.Accept(resolved) {
			return true
		}
		links = append(links, resolved)
		return true
	})

	return links
}
