package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/server/models"
	"github.com/dmitrijs2005/mediaflow/internal/server/services"
	"github.com/gorilla/mux"
)

type duplicatesRequest struct {
	PodcastID    string   `json:"podcastId"`
	Fingerprints []string `json:"fingerprints"`
}

type duplicatesResponse struct {
	Known []string `json:"known"`
}

type createSourceRequest struct {
	PodcastID   string  `json:"podcastId"`
	EpisodeID   *string `json:"episodeId,omitempty"`
	Filename    string  `json:"filename"`
	URL         string  `json:"url"`
	SizeBytes   int64   `json:"sizeBytes"`
	Fingerprint string  `json:"fingerprint"`
}

type sourceResponse struct {
	SourceID     string    `json:"sourceId"`
	PodcastID    string    `json:"podcastId"`
	EpisodeID    *string   `json:"episodeId,omitempty"`
	Filename     string    `json:"filename"`
	URL          string    `json:"url"`
	SizeBytes    int64     `json:"sizeBytes"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toSourceResponse(src *models.Source) sourceResponse {
	return sourceResponse{
		SourceID:     src.ID,
		PodcastID:    src.PodcastID,
		EpisodeID:    src.EpisodeID,
		Filename:     src.Filename,
		URL:          src.URL,
		SizeBytes:    src.SizeBytes,
		Fingerprint:  src.Fingerprint,
		Status:       string(src.Status),
		ErrorMessage: src.ErrorMessage,
		CreatedAt:    src.CreatedAt,
	}
}

type processResponse struct {
	Status string `json:"status"`
}

func (s *Server) checkDuplicates(w http.ResponseWriter, r *http.Request) {
	var req duplicatesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	known, err := s.sources.CheckDuplicates(r.Context(), userID(r), req.PodcastID, req.Fingerprints)
	if err != nil {
		writeError(w, err)
		return
	}
	if known == nil {
		known = []string{}
	}
	writeJSON(w, http.StatusOK, duplicatesResponse{Known: known})
}

func (s *Server) createSource(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	src, err := s.sources.Create(r.Context(), userID(r), services.CreateSourceInput{
		PodcastID:   req.PodcastID,
		EpisodeID:   req.EpisodeID,
		Filename:    req.Filename,
		URL:         req.URL,
		SizeBytes:   req.SizeBytes,
		Fingerprint: req.Fingerprint,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSourceResponse(src))
}

func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.sources.Get(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSourceResponse(src))
}

func (s *Server) processSource(w http.ResponseWriter, r *http.Request) {
	status, err := s.sources.Process(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, processResponse{Status: string(status)})
}
