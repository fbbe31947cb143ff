package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sells-group/evidence-cli/internal/document"
	"github.com/sells-group/evidence-cli/internal/export"
	"github.com/sells-group/evidence-cli/internal/findings"
)

type normalizeRequest struct {
	Text string   `json:"text"`
	IDs  []string `json:"ids"`
}

type normalizeResponse struct {
	Text string   `json:"text"`
	IDs  []string `json:"ids"`
}

// handleFindings extracts findings from the request body text and returns
// them as JSON, CSV or XLSX (?format=, default json).
func (s *Server) handleFindings(w http.ResponseWriter, r *http.Request) {
	format := export.FormatJSON
	if q := r.URL.Query().Get("format"); q != "" {
		f, err := export.ParseFormat(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		format = f
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxTextBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, findings.Extract(string(body))); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	if format != export.FormatJSON {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="key_findings.%s"`, format))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleNormalize repairs citation links in text. Without ids, the DOIs
// detected in the text are used.
func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxTextBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ids := req.IDs
	if len(ids) == 0 {
		ids = document.ExtractDOIs(req.Text)
	}
	writeJSON(w, http.StatusOK, normalizeResponse{
		Text: s.normalizer.Normalize(req.Text, ids),
		IDs:  ids,
	})
}
