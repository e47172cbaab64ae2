package chi

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/swarmkb/internal/domain"
	"github.com/kailas-cloud/swarmkb/internal/domain/batch"
	"github.com/kailas-cloud/swarmkb/internal/domain/criteria"
	domquery "github.com/kailas-cloud/swarmkb/internal/domain/query"
	"github.com/kailas-cloud/swarmkb/internal/logger"
	"github.com/kailas-cloud/swarmkb/internal/metrics"
)

// Command names accepted by POST /command.
const (
	CmdGet    = "crudget"
	CmdPut    = "crudput"
	CmdUpdate = "crudupdate"
	CmdDelete = "cruddelete"
	CmdQuery  = "query"
)

// Method names the command to run. argcnt is accepted and ignored.
type Method struct {
	Cmd    string `json:"cmd"`
	ArgCnt int    `json:"argcnt,omitempty"`
}

// CommandRequest is the body of POST /command. For crudput, Criteria holds
// the documents to store.
type CommandRequest struct {
	Method     Method           `json:"method"`
	DSType     string           `json:"dstype,omitempty"`
	Criteria   any              `json:"criteria,omitempty"`
	UpdateData []map[string]any `json:"UpdateData,omitempty"`
	Options    domquery.Options `json:"options"`
}

// PutItem is the per-document outcome of crudput.
type PutItem struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Command handles POST /command.
func (s *Server) Command(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if !s.decode(w, r, &req) {
		return
	}
	store := req.DSType
	if store == "" {
		store = domain.DefaultStore
	}
	cmd := strings.ToLower(strings.TrimSpace(req.Method.Cmd))
	metrics.SetCommand(r.Context(), cmd)
	logger.FromContext(r.Context()).Debug("command",
		zap.String("cmd", cmd), zap.String("store", store))

	switch cmd {
	case CmdPut:
		s.putDocs(w, r, store, req.Criteria)
	case CmdGet:
		s.getDocs(w, r, store, req.Criteria)
	case CmdUpdate:
		s.updateDocs(w, r, store, req.Criteria, req.UpdateData)
	case CmdDelete:
		s.deleteDocs(w, r, store, req.Criteria)
	case CmdQuery:
		s.runQuery(w, r, store, req.Criteria, req.Options)
	default:
		metrics.SetCommand(r.Context(), "unknown")
		writeError(w, http.StatusBadRequest, CodeUnknownCommand, fmt.Sprintf("unknown command %q", req.Method.Cmd))
	}
}

func (s *Server) putDocs(w http.ResponseWriter, r *http.Request, store string, raw any) {
	docs, err := documentsFromRaw(raw)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	results, err := s.svc.Catalog.Put(r.Context(), store, docs)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	items := make([]PutItem, len(results))
	for i, res := range results {
		items[i] = PutItem{ID: res.ID(), Status: string(res.Status())}
		if res.Err() != nil {
			items[i].Error = safeDomainMessage(res.Err())
		}
	}
	summary := batch.Summarize(results)
	status := StatusSuccess
	if !summary.AllOK() {
		status = StatusPartial
	}
	writeJSON(w, http.StatusOK, Response{Status: status, Data: items, Meta: summary})
}

func (s *Server) getDocs(w http.ResponseWriter, r *http.Request, store string, raw any) {
	p, err := criteria.Compile(raw)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	docs, err := s.svc.Catalog.Get(r.Context(), store, p)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeOK(w, docs, map[string]int{"count": len(docs)})
}

func (s *Server) updateDocs(w http.ResponseWriter, r *http.Request, store string, raw any, data []map[string]any) {
	p, err := criteria.Compile(raw)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "UpdateData is required")
		return
	}
	merged := make(map[string]any)
	for _, d := range data {
		for k, v := range d {
			merged[k] = v
		}
	}
	n, err := s.svc.Catalog.Update(r.Context(), store, p, merged)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeOK(w, map[string]int{"updated": n}, nil)
}

func (s *Server) deleteDocs(w http.ResponseWriter, r *http.Request, store string, raw any) {
	p, err := criteria.Compile(raw)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	n, err := s.svc.Catalog.Delete(r.Context(), store, p)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeOK(w, map[string]int{"deleted": n}, nil)
}

func (s *Server) runQuery(w http.ResponseWriter, r *http.Request, store string, raw any, opts domquery.Options) {
	p, err := criteria.Compile(raw)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	res, err := s.svc.Query.Query(r.Context(), store, p, opts)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeOK(w, res.Documents, res.Meta)
}

// documentsFromRaw accepts a single object or a list of objects.
func documentsFromRaw(raw any) ([]map[string]any, error) {
	switch v := raw.(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: document %d is %T, want object", domain.ErrInvalidSchema, i, item)
			}
			out = append(out, m)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: no documents to store", domain.ErrInvalidSchema)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: crudput expects documents in criteria", domain.ErrInvalidSchema)
	}
}
