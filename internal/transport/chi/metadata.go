package chi

import (
	"encoding/base64"
	"net/http"

	"github.com/kailas-cloud/swarmkb/internal/domain/upload"
)

// UploadRequest is the body of POST /upload. File is base64 encoded.
type UploadRequest struct {
	File               string `json:"file"`
	Filename           string `json:"filename"`
	StoreFullStructure *bool  `json:"store_full_structure,omitempty"`
	TargetStore        string `json:"target_store,omitempty"`
	Uploader           string `json:"uploader,omitempty"`
}

// MetadataUpdateRequest is the body of POST /metadata/update.
type MetadataUpdateRequest struct {
	MetadataID string         `json:"metadata_id"`
	Fields     map[string]any `json:"fields"`
}

// SQLRequest is the body of POST /sql.
type SQLRequest struct {
	Query string `json:"query"`
}

// SQLResponse carries mirror rows.
type SQLResponse struct {
	Status  string           `json:"status"`
	Records []map[string]any `json:"records"`
	Count   int              `json:"count"`
}

// Upload handles POST /upload.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if !s.decode(w, r, &req) {
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.File)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "file must be base64 encoded")
		return
	}
	full := true
	if req.StoreFullStructure != nil {
		full = *req.StoreFullStructure
	}
	ureq := upload.Request{
		Content:            content,
		Filename:           req.Filename,
		StoreFullStructure: full,
		TargetStore:        req.TargetStore,
		Uploader:           req.Uploader,
	}
	if err := ureq.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	res, err := s.svc.Catalog.Upload(r.Context(), ureq)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeOK(w, res, nil)
}

// GetMetadata handles GET /metadata?id=... or ?associated_id=....
func (s *Server) GetMetadata(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, assoc := q.Get("id"), q.Get("associated_id")

	var err error
	var data any
	switch {
	case id != "":
		rec, e := s.svc.Metadata.GetMetadata(r.Context(), id)
		data, err = rec.ToMap(), e
	case assoc != "":
		rec, e := s.svc.Metadata.FindByAssociatedID(r.Context(), assoc)
		data, err = rec.ToMap(), e
	default:
		writeError(w, http.StatusBadRequest, CodeBadRequest, "id or associated_id is required")
		return
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeOK(w, data, nil)
}

// EnrichmentStatus handles GET /metadata/status?associated_id=. It reports the
// last enrichment task this node ran for the document.
func (s *Server) EnrichmentStatus(w http.ResponseWriter, r *http.Request) {
	assoc := r.URL.Query().Get("associated_id")
	if assoc == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "associated_id is required")
		return
	}
	out, ok := s.svc.Metadata.Outcome(assoc)
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, "no enrichment task for "+assoc)
		return
	}
	writeOK(w, out, nil)
}

// UpdateMetadata handles POST /metadata/update.
func (s *Server) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	var req MetadataUpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.MetadataID == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "metadata_id is required")
		return
	}
	if len(req.Fields) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "fields are required")
		return
	}
	rec, err := s.svc.Metadata.UpdateFields(r.Context(), req.MetadataID, req.Fields)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeOK(w, rec.ToMap(), nil)
}

// ExecuteSQL handles POST /sql.
func (s *Server) ExecuteSQL(w http.ResponseWriter, r *http.Request) {
	if s.svc.SQL == nil {
		writeError(w, http.StatusServiceUnavailable, CodeStoreUnavailable, "relational mirror is not configured")
		return
	}
	var req SQLRequest
	if !s.decode(w, r, &req) {
		return
	}
	rows, err := s.svc.SQL.RunSQL(r.Context(), req.Query)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SQLResponse{Status: StatusSuccess, Records: rows, Count: len(rows)})
}
