package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// documentDTO is the JSON shape of one archived notice.
type documentDTO struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Link               string    `json:"link"`
	Description        string    `json:"description,omitempty"`
	DateUpdated        time.Time `json:"date_updated"`
	Summary            string    `json:"summary,omitempty"`
	IsAnimalProject    bool      `json:"is_animal_project"`
	AnimalType         string    `json:"animal_type,omitempty"`
	AnimalNumber       *int      `json:"animal_number,omitempty"`
	IsIntensiveFarming bool      `json:"is_intensive_farming"`
	PrefectureName     string    `json:"prefecture_name,omitempty"`
	PrefectureCode     string    `json:"prefecture_code,omitempty"`
	RegionName         string    `json:"region_name,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func toDocumentDTO(d store.Document) documentDTO {
	return documentDTO{
		ID:                 d.ID.String(),
		Title:              d.Title,
		Link:               d.Link,
		Description:        d.Description,
		DateUpdated:        d.DateUpdated,
		Summary:            d.Summary,
		IsAnimalProject:    d.IsAnimalProject,
		AnimalType:         d.AnimalType,
		AnimalNumber:       d.AnimalNumber,
		IsIntensiveFarming: d.IsIntensiveFarming,
		PrefectureName:     d.PrefectureName,
		PrefectureCode:     d.PrefectureCode,
		RegionName:         d.RegionName,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

// listDocuments handles GET /v1/documents?region=&animal_type=&intensive=&limit=&offset=.
// It returns {"documents": [...], "total": N}, 400 for invalid filters, or
// 500 if the store call fails.
func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultListLimit, maxListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := store.DocumentFilter{
		Region:     strings.TrimSpace(r.URL.Query().Get("region")),
		AnimalType: strings.TrimSpace(r.URL.Query().Get("animal_type")),
		Limit:      limit,
		Offset:     offset,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("intensive")); raw != "" {
		intensive, parseErr := strconv.ParseBool(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "intensive must be a boolean")
			return
		}
		filter.IntensiveOnly = intensive
	}

	docs, err := s.docs.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	total, err := s.docs.Count(r.Context(), store.DocumentFilter{
		Region:        filter.Region,
		AnimalType:    filter.AnimalType,
		IntensiveOnly: filter.IntensiveOnly,
	})
	if err != nil {
		s.logger.Error("count documents failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to count documents")
		return
	}

	dtos := make([]documentDTO, 0, len(docs))
	for _, d := range docs {
		dtos = append(dtos, toDocumentDTO(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": dtos,
		"total":     total,
	})
}

// getDocument handles GET /v1/documents/{document_id}. It returns
// {"document": {...}}, 400 for malformed IDs, or 404 when the link is gone.
func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "document_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "document_id must be a UUID")
		return
	}
	doc, err := s.docs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("get document failed", zap.String("id", id.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": toDocumentDTO(doc)})
}

// sourceDTO aggregates documents per source prefecture.
type sourceDTO struct {
	PrefectureName string    `json:"prefecture_name"`
	PrefectureCode string    `json:"prefecture_code"`
	RegionName     string    `json:"region_name"`
	Documents      int64     `json:"documents"`
	LastUpdated    time.Time `json:"last_updated"`
}

// listSources handles GET /v1/sources, one row per prefecture that has at
// least one archived document.
func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	counts, err := s.docs.AttributionCounts(r.Context())
	if err != nil {
		s.logger.Error("list sources failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}
	dtos := make([]sourceDTO, 0, len(counts))
	for _, c := range counts {
		dtos = append(dtos, sourceDTO{
			PrefectureName: c.PrefectureName,
			PrefectureCode: c.PrefectureCode,
			RegionName:     c.RegionName,
			Documents:      c.Documents,
			LastUpdated:    c.LastUpdated,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": dtos})
}

// runDTO is the JSON shape of one crawl run.
type runDTO struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       string     `json:"status"`
	Steps        int64      `json:"steps"`
	Changes      int64      `json:"changes"`
	Skips        int64      `json:"skips"`
	Failures     int64      `json:"failures"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// listRuns handles GET /v1/runs?status=&limit=&offset=.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultListLimit, maxListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *store.RunStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, parseErr := parseRunStatus(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &parsed
	}

	runs, err := s.runs.ListRuns(r.Context(), status, limit, offset)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	dtos := make([]runDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, runDTO{
			ID:           run.ID.String(),
			StartedAt:    run.StartedAt,
			FinishedAt:   run.FinishedAt,
			Status:       string(run.Status),
			Steps:        run.Totals.Steps,
			Changes:      run.Totals.Changes,
			Skips:        run.Totals.Skips,
			Failures:     run.Totals.Failures,
			ErrorMessage: run.ErrorMessage,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

func parseRunStatus(raw string) (store.RunStatus, error) {
	switch status := store.RunStatus(strings.ToLower(raw)); status {
	case store.RunRunning, store.RunSuccess, store.RunError:
		return status, nil
	default:
		return "", fmt.Errorf("unknown run status %q", raw)
	}
}

// parseLimitOffset reads limit/offset query parameters with bounds.
func parseLimitOffset(r *http.Request, def, max int) (int, int, error) {
	limit := def
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return 0, 0, fmt.Errorf("limit must be a positive integer")
		}
		if parsed > max {
			parsed = max
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return 0, 0, fmt.Errorf("offset must be a non-negative integer")
		}
		offset = parsed
	}
	return limit, offset, nil
}
