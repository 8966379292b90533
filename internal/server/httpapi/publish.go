package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/server/models"
	"github.com/dmitrijs2005/mediaflow/internal/server/publish"
	"github.com/gorilla/mux"
)

type initPublishRequest struct {
	PostID      string   `json:"postId"`
	ClipID      string   `json:"clipId"`
	Format      string   `json:"format"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Privacy     string   `json:"privacy"`
	Tags        []string `json:"tags"`
	Text        string   `json:"text"`
	Caption     string   `json:"caption"`
}

type initPublishResponse struct {
	UploadID string `json:"uploadId"`
	Status   string `json:"status"`
}

type publishStatusResponse struct {
	UploadID           string     `json:"uploadId"`
	Platform           string     `json:"platform"`
	Status             string     `json:"status"`
	Phase              string     `json:"phase"`
	UploadProgress     int        `json:"uploadProgress"`
	ProcessingProgress int        `json:"processingProgress"`
	PlatformMediaID    string     `json:"platformMediaId,omitempty"`
	PublishedID        string     `json:"publishedId,omitempty"`
	PlatformURL        string     `json:"platformUrl,omitempty"`
	ErrorMessage       string     `json:"errorMessage,omitempty"`
	RetryCount         int        `json:"retryCount"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func toPublishStatus(u *models.PublishUpload) publishStatusResponse {
	return publishStatusResponse{
		UploadID:           u.ID,
		Platform:           string(u.Platform),
		Status:             string(u.Status),
		Phase:              string(u.Phase),
		UploadProgress:     u.UploadProgress,
		ProcessingProgress: u.ProcessingProgress,
		PlatformMediaID:    u.PlatformMediaID,
		PublishedID:        u.PublishedID,
		PlatformURL:        u.PlatformURL,
		ErrorMessage:       u.ErrorMessage,
		RetryCount:         u.RetryCount,
		CompletedAt:        u.CompletedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

func platformOf(r *http.Request) models.Platform {
	return models.Platform(mux.Vars(r)["platform"])
}

func (s *Server) initPublish(w http.ResponseWriter, r *http.Request) {
	var req initPublishRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	u, err := s.publisher.Init(r.Context(), userID(r), platformOf(r), publish.InitInput{
		PostID: req.PostID,
		ClipID: req.ClipID,
		Format: req.Format,
		Metadata: models.PublishMetadata{
			Title:       req.Title,
			Description: req.Description,
			Privacy:     req.Privacy,
			Tags:        req.Tags,
			Text:        req.Text,
			Caption:     req.Caption,
		},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, initPublishResponse{UploadID: u.ID, Status: string(u.Status)})
}

func (s *Server) publishStatus(w http.ResponseWriter, r *http.Request) {
	u, err := s.publisher.Status(r.Context(), userID(r), platformOf(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublishStatus(u))
}

func (s *Server) retryPublish(w http.ResponseWriter, r *http.Request) {
	u, err := s.publisher.Retry(r.Context(), userID(r), platformOf(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toPublishStatus(u))
}

func (s *Server) cancelPublish(w http.ResponseWriter, r *http.Request) {
	if err := s.publisher.Cancel(r.Context(), userID(r), platformOf(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
