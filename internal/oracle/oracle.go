// Package oracle hands notice text to an OpenAI-compatible model and
// returns structured classifications. The pipeline never guesses: when
// the oracle is unavailable or answers with malformed JSON, callers get
// an error and the item is skipped.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ClassifyRequest names one structured-output completion.
type ClassifyRequest struct {
	// Text is the user message sent to the model.
	Text string
	// SchemaName and Schema drive the model's structured-output mode.
	SchemaName string
	Schema     json.RawMessage
	// SystemInstructions optionally prime the model.
	SystemInstructions string
	// Kind labels telemetry; empty falls back to SchemaName.
	Kind string
}

// Oracle classifies notice text.
type Oracle interface {
	Classify(ctx context.Context, req ClassifyRequest) (json.RawMessage, error)
}

// DocumentInfo is the primary classification of one notice.
type DocumentInfo struct {
	Summary         string `json:"summary"`
	IsAnimalProject bool   `json:"is_animal_project"`
	AnimalType      string `json:"animal_type"`
	AnimalNumber    *int   `json:"animal_number"`
}

// animalTypes is the closed set of livestock categories the archive
// tracks.
var animalTypes = map[string]bool{
	"ovin":     true,
	"caprin":   true,
	"bovin":    true,
	"porcin":   true,
	"volaille": true,
}

// Normalize lowercases AnimalType and blanks values outside the known
// set, so a chatty model cannot invent categories.
func (d *DocumentInfo) Normalize() {
	d.AnimalType = strings.ToLower(strings.TrimSpace(d.AnimalType))
	if !animalTypes[d.AnimalType] {
		d.AnimalType = ""
	}
}

// SubDocument is one entry recovered from a bundle index page.
type SubDocument struct {
	Title string `json:"title"`
	Link  string `json:"link"`
	Date  string `json:"date"`
}

// LinkPair is an anchor (text, href) pair offered to the fallback
// extraction.
type LinkPair struct {
	Text string
	Href string
}

type intensiveCheck struct {
	IsIntensiveFarming bool `json:"is_intensive_farming"`
}

type subDocumentList struct {
	Documents []SubDocument `json:"documents"`
}

// RequestDocumentInfo runs the primary classification over the full
// notice text.
func RequestDocumentInfo(ctx context.Context, o Oracle, text string) (DocumentInfo, error) {
	raw, err := o.Classify(ctx, ClassifyRequest{
		Kind:       "document_info",
		SchemaName: "prefecture_document_summary",
		Schema:     documentInfoSchema,
		Text:       fmt.Sprintf(documentInfoPrompt, text),
	})
	if err != nil {
		return DocumentInfo{}, err
	}
	var info DocumentInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return DocumentInfo{}, fmt.Errorf("decode document info: %w", err)
	}
	info.Normalize()
	return info, nil
}

// RequestIntensiveFarming asks whether the summarized project reads as
// intensive farming.
func RequestIntensiveFarming(ctx context.Context, o Oracle, summary string) (bool, error) {
	raw, err := o.Classify(ctx, ClassifyRequest{
		Kind:       "intensive_farming",
		SchemaName: "intensive_farming_check",
		Schema:     intensiveFarmingSchema,
		Text:       fmt.Sprintf(intensiveFarmingPrompt, summary),
	})
	if err != nil {
		return false, err
	}
	var check intensiveCheck
	if err := json.Unmarshal(raw, &check); err != nil {
		return false, fmt.Errorf("decode intensive farming check: %w", err)
	}
	return check.IsIntensiveFarming, nil
}

// RequestSubDocuments asks the model to pick the real document entries
// out of a bundle index page, given its text and harvested anchors.
func RequestSubDocuments(ctx context.Context, o Oracle, pageText string, links []LinkPair) ([]SubDocument, error) {
	if len(links) == 0 {
		return nil, nil
	}
	var sb strings.Builder
	for _, l := range links {
		fmt.Fprintf(&sb, "%s => %s\n", strings.TrimSpace(l.Text), l.Href)
	}
	raw, err := o.Classify(ctx, ClassifyRequest{
		Kind:       "sub_documents",
		SchemaName: "bundle_document_list",
		Schema:     subDocumentsSchema,
		Text:       fmt.Sprintf(subDocumentsPrompt, pageText, sb.String()),
	})
	if err != nil {
		return nil, err
	}
	var list subDocumentList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode sub-document list: %w", err)
	}
	return list.Documents, nil
}
