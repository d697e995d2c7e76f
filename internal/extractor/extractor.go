// Package extractor turns a fetched HTML page into a title, clean plain text
// and the outbound links used to grow the crawl frontier.
package extractor

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var ErrEmptyContent = errors.New("no text content extracted")

// minArticleChars is the smallest container text accepted from the
// densest-block heuristic; shorter blocks are usually navigation.
const minArticleChars = 200

var (
	noiseSelector   = "script, style, noscript, template, nav, header, footer, aside, form, iframe, svg"
	articleSelector = []string{"article", "main", "[role=main]", "#content", ".content", "#main", ".main-content"}

	scriptRe     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Page is the extraction result for one fetched document.
type Page struct {
	Title string
	Text  string
	Links []string
	// Readable is true when the main-content pass found an article body;
	// false means the tag-stripping fallback produced Text.
	Readable bool
}

type Extractor struct {
	logger *slog.Logger
}

func New() *Extractor {
	return &Extractor{logger: slog.Default().With("component", "extractor")}
}

// Extract never fails on malformed markup; parser problems fall back to
// plain tag stripping. ErrEmptyContent is returned only when no text is left.
func (e *Extractor) Extract(rawHTML, sourceURL string) (*Page, error) {
	base, _ := url.Parse(sourceURL)

	page := &Page{}
	doc, err := e.parse(rawHTML)
	if err != nil {
		e.logger.Debug("html parse failed, using fallback", "url", sourceURL, "error", err)
	}

	if doc != nil {
		page.Title = strings.TrimSpace(doc.Find("title").First().Text())
		page.Links = extractLinks(doc, base)
		if text := readableText(doc); text != "" {
			page.Text = text
			page.Readable = true
		}
	}

	if page.Text == "" {
		page.Text = FallbackText(rawHTML)
	}
	if page.Title == "" {
		page.Title = titleFromURL(base)
	}
	if page.Text == "" {
		return page, ErrEmptyContent
	}
	return page, nil
}

func (e *Extractor) parse(rawHTML string) (doc *goquery.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("html parser panic: %v", r)
		}
	}()
	return goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
}

// readableText picks the main content container and returns its collapsed
// text, or "" when no article body can be identified.
func readableText(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		return ""
	}
	body = body.Clone()
	body.Find(noiseSelector).Remove()

	for _, sel := range articleSelector {
		if text := collapse(body.Find(sel).First().Text()); text != "" {
			return text
		}
	}

	var best string
	body.Find("div, section").Each(func(_ int, s *goquery.Selection) {
		if text := collapse(s.Text()); len(text) > len(best) {
			best = text
		}
	})
	if len(best) >= minArticleChars {
		return best
	}
	return ""
}

// FallbackText strips script/style blocks and tags, decodes entities and
// collapses whitespace.
func FallbackText(rawHTML string) string {
	text := scriptRe.ReplaceAllString(rawHTML, " ")
	text = styleRe.ReplaceAllString(text, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	return collapse(text)
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func titleFromURL(u *url.URL) string {
	if u == nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

func extractLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved := ResolveLink(base, href)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		links = append(links, resolved)
	})
	return links
}

// ResolveLink resolves href against base and returns an absolute http(s)
// URL without fragment, or "" when the link cannot be followed.
func ResolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	abs.RawFragment = ""
	abs.Host = strings.ToLower(abs.Host)
	return abs.String()
}
