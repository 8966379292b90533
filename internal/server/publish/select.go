package publish

import (
	"strings"

	"github.com/dmitrijs2005/mediaflow/internal/server/models"
)

// SelectExport picks the newest export in the requested format, or the
// newest export of any format when none matches. exports must be ordered
// newest first. It returns nil for an empty list.
func SelectExport(exports []*models.MediaExport, format string) *models.MediaExport {
	if len(exports) == 0 {
		return nil
	}
	if format != "" {
		for _, e := range exports {
			if strings.EqualFold(e.Format, format) {
				return e
			}
		}
	}
	return exports[0]
}
