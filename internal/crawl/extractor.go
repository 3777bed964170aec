package crawl

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// metadataBuckets are the DSFR card sections harvested verbatim into
// Candidate.Metadata.
var metadataBuckets = []string{BucketCardTitle, BucketCardContent, BucketCardDetail}

// ExtractCards parses one results page into an order-preserving slice of
// candidates, one per div.fr-card. Cards with neither title nor link are
// dropped; everything else is kept even with partial fields, so a portal
// that changes one sub-element degrades instead of going dark.
func ExtractCards(body []byte, pageURL string) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url %q: %w", pageURL, err)
	}

	var cards []Candidate
	doc.Find("div.fr-card").Each(func(_ int, sel *goquery.Selection) {
		cand := extractCard(sel, base)
		if cand.Title == "" && cand.Link == "" {
			return
		}
		cards = append(cards, cand)
	})
	return cards, nil
}

func extractCard(sel *goquery.Selection, base *url.URL) Candidate {
	var cand Candidate

	for _, tag := range []string{"h3", "h2", "h1"} {
		if t := cleanText(sel.Find(tag).First().Text()); t != "" {
			cand.Title = t
			break
		}
	}

	if href, ok := sel.Find("a[href]").First().Attr("href"); ok {
		cand.Link = absoluteURL(base, href)
	}

	cand.Description = cleanText(sel.Find("p").First().Text())
	if cand.Description == "" {
		cand.Description = cleanText(sel.Find("div.fr-card__desc").First().Text())
	}

	cand.DateLabel = cleanText(sel.Find("time").First().Text())
	if cand.DateLabel == "" {
		cand.DateLabel = cleanText(sel.Find("span.date").First().Text())
	}

	for _, bucket := range metadataBuckets {
		sel.Find("." + bucket).Each(func(_ int, b *goquery.Selection) {
			text := cleanText(b.Text())
			if text == "" {
				return
			}
			if cand.Metadata == nil {
				cand.Metadata = make(map[string][]string, len(metadataBuckets))
			}
			cand.Metadata[bucket] = append(cand.Metadata[bucket], text)
		})
	}

	if html, err := goquery.OuterHtml(sel); err == nil {
		cand.RawHTML = html
	}

	return cand
}

// absoluteURL resolves href against base; unparseable hrefs yield "".
func absoluteURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// cleanText collapses runs of whitespace into single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
