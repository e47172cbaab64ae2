package swarmkb

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Command names understood by the node.
const (
	cmdGet    = "crudget"
	cmdPut    = "crudput"
	cmdUpdate = "crudupdate"
	cmdDelete = "cruddelete"
	cmdQuery  = "query"
)

type method struct {
	Cmd    string `json:"cmd"`
	ArgCnt int    `json:"argcnt"`
}

type commandRequest struct {
	Method     method           `json:"method"`
	DSType     string           `json:"dstype,omitempty"`
	Criteria   any              `json:"criteria,omitempty"`
	UpdateData []map[string]any `json:"UpdateData,omitempty"`
	Options    *QueryOptions    `json:"options,omitempty"`
}

type countData struct {
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

// Put stores documents in store. Documents without an _id get one.
// A partially failed batch returns the per-item outcome and no error.
func (c *Client) Put(ctx context.Context, store string, docs []map[string]any) (res PutResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("put", start, err) }()

	if len(docs) == 0 {
		return PutResult{}, errors.New("swarmkb: no documents to put")
	}
	var summary struct {
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
	}
	err = c.call(ctx, http.MethodPost, "/command", commandRequest{
		Method:   method{Cmd: cmdPut, ArgCnt: 1},
		DSType:   store,
		Criteria: docs,
	}, &res.Items, &summary)
	res.Succeeded, res.Failed = summary.Succeeded, summary.Failed
	return res, err
}

// Get returns the documents of store matching criteria on the node itself.
// criteria may be nil (everything), a list of clauses or a single clause map.
func (c *Client) Get(ctx context.Context, store string, criteria any) (docs []Document, err error) {
	start := time.Now()
	defer func() { c.obs.observe("get", start, err) }()

	err = c.call(ctx, http.MethodPost, "/command", commandRequest{
		Method:   method{Cmd: cmdGet, ArgCnt: 1},
		DSType:   store,
		Criteria: criteria,
	}, &docs, nil)
	return docs, err
}

// Update merges data into every matching document and returns how many changed.
func (c *Client) Update(ctx context.Context, store string, criteria any, data map[string]any) (n int, err error) {
	start := time.Now()
	defer func() { c.obs.observe("update", start, err) }()

	var out countData
	err = c.call(ctx, http.MethodPost, "/command", commandRequest{
		Method:     method{Cmd: cmdUpdate, ArgCnt: 1},
		DSType:     store,
		Criteria:   criteria,
		UpdateData: []map[string]any{data},
	}, &out, nil)
	return out.Updated, err
}

// Delete removes every matching document and returns how many were removed.
func (c *Client) Delete(ctx context.Context, store string, criteria any) (n int, err error) {
	start := time.Now()
	defer func() { c.obs.observe("delete", start, err) }()

	var out countData
	err = c.call(ctx, http.MethodPost, "/command", commandRequest{
		Method:   method{Cmd: cmdDelete, ArgCnt: 1},
		DSType:   store,
		Criteria: criteria,
	}, &out, nil)
	return out.Deleted, err
}

// DeleteAll removes every document of store.
func (c *Client) DeleteAll(ctx context.Context, store string) (int, error) {
	return c.Delete(ctx, store, []map[string]any{{"_id": map[string]any{"$regex": ".*"}}})
}

// Query runs a distributed query through the node. Peer failures that do not
// break the requested consistency are reported in the result meta.
func (c *Client) Query(ctx context.Context, store string, criteria any, opts QueryOptions) (res QueryResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("query", start, err) }()

	err = c.call(ctx, http.MethodPost, "/command", commandRequest{
		Method:   method{Cmd: cmdQuery},
		DSType:   store,
		Criteria: criteria,
		Options:  &opts,
	}, &res.Documents, &res.Meta)
	return res, err
}

// PeerQuery evaluates criteria against the node's own snapshot only.
// Coordinators use it to fan a query out.
func (c *Client) PeerQuery(ctx context.Context, store string, criteria any) (docs []Document, err error) {
	start := time.Now()
	defer func() { c.obs.observe("peer_query", start, err) }()

	err = c.call(ctx, http.MethodPost, "/peer/query", struct {
		DSType   string `json:"dstype,omitempty"`
		Criteria any    `json:"criteria,omitempty"`
	}{store, criteria}, &docs, nil)
	return docs, err
}
