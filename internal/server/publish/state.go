// Package publish drives publish attempts through their lifecycle:
//
//	pending → uploading → processing → [posting] → completed
//
// with failed reachable from uploading, processing and posting. A failed
// attempt returns to pending only through Retry. One Runner loop serves
// every platform; the platform specific protocol lives behind Driver.
package publish

import (
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
)

// CancelMessage is recorded on attempts cancelled by their owner.
const CancelMessage = "cancelled by user"

var transitions = map[models.PublishStatus][]models.PublishStatus{
	models.PublishPending:    {models.PublishUploading, models.PublishPosting, models.PublishFailed},
	models.PublishUploading:  {models.PublishProcessing, models.PublishFailed},
	models.PublishProcessing: {models.PublishPosting, models.PublishCompleted, models.PublishFailed},
	models.PublishPosting:    {models.PublishCompleted, models.PublishFailed},
	models.PublishFailed:     {models.PublishPending},
}

// CanTransition reports whether an attempt may move from one status to
// another. pending → posting is the resume path of a retry after a failed
// post; pending → failed covers cancelling an attempt that has not started.
func CanTransition(from, to models.PublishStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ResetForRetry moves a failed attempt back to pending. Identifiers acquired
// in the failed phase and later are cleared so the driver re-derives them: a
// failed post keeps the uploaded media and resumes at posting, any earlier
// failure starts over at acquisition. The retry counter is kept.
func ResetForRetry(u *models.PublishUpload) {
	if u.Phase == models.PhasePosting {
		u.PublishedID = ""
		u.PlatformURL = ""
	} else {
		u.UploadTarget = ""
		u.PlatformMediaID = ""
		u.PublishedID = ""
		u.PlatformURL = ""
		u.UploadProgress = 0
		u.ProcessingProgress = 0
		u.Phase = models.PhaseAcquire
	}
	u.Status = models.PublishPending
	u.ErrorMessage = ""
	u.CompletedAt = nil
}
