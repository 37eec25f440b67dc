// Package links extracts outgoing anchors from HTML documents.
package links

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extract parses an HTML document and returns the href of every <a> element
// resolved against the document base, in document order of first
// appearance. The base is the first <base href> when present, otherwise
// pageURL. Hrefs that cannot be parsed are skipped and repeats are dropped.
func Extract(pageURL *url.URL, body io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return FromDocument(pageURL, doc), nil
}

// FromDocument is Extract for an already parsed document.
func FromDocument(pageURL *url.URL, doc *goquery.Document) []string {
	base := documentBase(pageURL, doc)
	var out []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := Resolve(base, href)
		if abs == "" {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	})
	return out
}

// Resolve turns href into an absolute URL string relative to base. It
// returns "" when href is unusable.
func Resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		if !ref.IsAbs() {
			return ""
		}
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func documentBase(pageURL *url.URL, doc *goquery.Document) *url.URL {
	href, ok := doc.Find("base[href]").First().Attr("href")
	if !ok {
		return pageURL
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return pageURL
	}
	if pageURL == nil {
		if ref.IsAbs() {
			return ref
		}
		return nil
	}
	return pageURL.ResolveReference(ref)
}
