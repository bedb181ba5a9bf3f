package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cityair/conductor/internal/export"
	"github.com/cityair/conductor/internal/log"
)

// exportsHandler streams committed export files for download.
type exportsHandler struct {
	spool  *export.Spool
	logger log.Logger
}

// download handles GET /api/v1/exports/{id}. The file streams straight from
// the spool to the client.
func (h *exportsHandler) download(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	reader, handle, err := h.spool.Open(id)
	if err != nil {
		if errors.Is(err, export.ErrUnknownExport) {
			writeError(w, http.StatusNotFound, "unknown_export", "export does not exist or has expired", h.logger)
			return
		}
		h.logger.Error("failed to open export", "export_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "export_unreadable", "export could not be read", h.logger)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", handle.Filename))
	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Debug("export download interrupted", "export_id", id, "error", err)
	}
}
