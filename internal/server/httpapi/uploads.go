package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/common"
	"github.com/dmitrijs2005/mediaflow/internal/server/services"
	"github.com/gorilla/mux"
)

type initUploadRequest struct {
	PodcastID   string  `json:"podcastId"`
	EpisodeID   *string `json:"episodeId,omitempty"`
	Filename    string  `json:"filename"`
	ContentType string  `json:"contentType"`
	TotalBytes  int64   `json:"totalBytes"`
}

type initUploadResponse struct {
	SessionID  string    `json:"sessionId"`
	ChunkSize  int64     `json:"chunkSize"`
	TotalParts int       `json:"totalParts"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type partResponse struct {
	PartNumber    int     `json:"partNumber"`
	ETag          string  `json:"etag"`
	UploadedBytes int64   `json:"uploadedBytes"`
	Progress      float64 `json:"progress"`
	Skipped       bool    `json:"skipped"`
}

type completeResponse struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

type statusResponse struct {
	SessionID      string    `json:"sessionId"`
	Status         string    `json:"status"`
	Filename       string    `json:"filename"`
	TotalBytes     int64     `json:"totalBytes"`
	ChunkSize      int64     `json:"chunkSize"`
	TotalParts     int       `json:"totalParts"`
	CompletedParts []int     `json:"completedParts"`
	UploadedBytes  int64     `json:"uploadedBytes"`
	Progress       float64   `json:"progress"`
	ExpiresAt      time.Time `json:"expiresAt"`
	URL            string    `json:"url,omitempty"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
}

func toStatusResponse(st *services.TransferStatus) statusResponse {
	parts := st.CompletedParts
	if parts == nil {
		parts = []int{}
	}
	return statusResponse{
		SessionID:      st.SessionID,
		Status:         string(st.Status),
		Filename:       st.Filename,
		TotalBytes:     st.TotalBytes,
		ChunkSize:      st.ChunkSize,
		TotalParts:     st.TotalParts,
		CompletedParts: parts,
		UploadedBytes:  st.UploadedBytes,
		Progress:       st.Progress,
		ExpiresAt:      st.ExpiresAt,
		URL:            st.URL,
		ErrorMessage:   st.ErrorMessage,
	}
}

type resumeResponse struct {
	HasResumable bool `json:"hasResumable"`
	*statusResponse
}

func (s *Server) initUpload(w http.ResponseWriter, r *http.Request) {
	var req initUploadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.transfers.Init(r.Context(), userID(r), services.InitTransferInput{
		PodcastID:   req.PodcastID,
		EpisodeID:   req.EpisodeID,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		TotalBytes:  req.TotalBytes,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, initUploadResponse{
		SessionID:  res.SessionID,
		ChunkSize:  res.ChunkSize,
		TotalParts: res.TotalParts,
		ExpiresAt:  res.ExpiresAt,
	})
}

func (s *Server) uploadPart(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	n, err := strconv.Atoi(vars["n"])
	if err != nil {
		writeError(w, fmt.Errorf("%w: part number %q", common.ErrInvalidArgument, vars["n"]))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxPartBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, fmt.Errorf("%w: part larger than %d bytes", common.ErrInvalidArgument, tooLarge.Limit))
			return
		}
		writeError(w, err)
		return
	}

	res, err := s.transfers.UploadPart(r.Context(), userID(r), vars["id"], n, body)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, partResponse{
		PartNumber:    res.PartNumber,
		ETag:          res.ETag,
		UploadedBytes: res.UploadedBytes,
		Progress:      res.Progress,
		Skipped:       res.Skipped,
	})
}

func (s *Server) completeUpload(w http.ResponseWriter, r *http.Request) {
	res, err := s.transfers.Complete(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completeResponse{URL: res.URL, Size: res.Size})
}

func (s *Server) uploadStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.transfers.Status(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(st))
}

func (s *Server) resumableUpload(w http.ResponseWriter, r *http.Request) {
	podcastID := r.URL.Query().Get("podcastId")
	if podcastID == "" {
		writeError(w, fmt.Errorf("%w: podcastId required", common.ErrInvalidArgument))
		return
	}

	st, err := s.transfers.FindResumable(r.Context(), userID(r), podcastID)
	if err != nil {
		writeError(w, err)
		return
	}
	if st == nil {
		writeJSON(w, http.StatusOK, resumeResponse{})
		return
	}

	sr := toStatusResponse(st)
	writeJSON(w, http.StatusOK, resumeResponse{HasResumable: true, statusResponse: &sr})
}

func (s *Server) abortUpload(w http.ResponseWriter, r *http.Request) {
	if err := s.transfers.Abort(r.Context(), userID(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
