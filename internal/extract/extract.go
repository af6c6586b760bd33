// Package extract turns an HTML page into plain text lines suitable for
// diffing.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ppiankov/changewatch/internal/diff"
)

// Lines parses raw HTML and returns its visible text as lines. Every anchor
// gets its absolute target appended as " (URL)" so that a diff shows link
// changes as well as text changes. Relative targets resolve against the
// document's <base href> when present, else against pageURL.
func Lines(raw []byte, pageURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(bytes.TrimSpace(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	doc.Find("script, style, noscript, template").Remove()

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		target := resolve(base, href)
		a.AppendNodes(&html.Node{Type: html.TextNode, Data: " (" + target + ")"})
	})

	return diff.SplitLines(strings.TrimSpace(doc.Text())), nil
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
