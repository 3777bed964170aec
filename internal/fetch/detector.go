package fetch

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// RenderDetector decides whether a fetched page needs the headless
// browser, using cheap HTML signals: a suspiciously small body, known
// JS-wall phrases, or the absence of selectors the portal always renders
// server-side.
type RenderDetector struct {
	minHTMLBytes int
	selectors    []string
	markers      [][]byte
}

// NewRenderDetector constructs a detector with the configured thresholds.
func NewRenderDetector(minBytes int, selectors, markers []string) *RenderDetector {
	lowered := make([][]byte, 0, len(markers))
	for _, m := range markers {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		lowered = append(lowered, bytes.ToLower([]byte(m)))
	}
	return &RenderDetector{
		minHTMLBytes: minBytes,
		selectors:    selectors,
		markers:      lowered,
	}
}

// NeedsRender inspects the body for signals that the page is JS-gated.
func (d *RenderDetector) NeedsRender(body []byte) bool {
	if d == nil {
		return false
	}
	switch {
	case d.bodyBelowThreshold(body):
		return true
	case d.containsMarkers(body):
		return true
	default:
		return d.missingSelectors(body)
	}
}

func (d *RenderDetector) bodyBelowThreshold(body []byte) bool {
	return d.minHTMLBytes > 0 && len(body) < d.minHTMLBytes
}

func (d *RenderDetector) containsMarkers(body []byte) bool {
	if len(body) == 0 || len(d.markers) == 0 {
		return false
	}
	lowerBody := bytes.ToLower(body)
	for _, m := range d.markers {
		if bytes.Contains(lowerBody, m) {
			return true
		}
	}
	return false
}

func (d *RenderDetector) missingSelectors(body []byte) bool {
	if len(d.selectors) == 0 || len(body) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return true
	}
	for _, sel := range d.selectors {
		if sel == "" {
			continue
		}
		if doc.Find(sel).Length() == 0 {
			return true
		}
	}
	return false
}
