package swarmkb

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type uploadRequest struct {
	File               string `json:"file"`
	Filename           string `json:"filename"`
	StoreFullStructure bool   `json:"store_full_structure"`
	TargetStore        string `json:"target_store,omitempty"`
	Uploader           string `json:"uploader,omitempty"`
}

// Upload sends a template to the node. With the zero UploadOptions the node
// parses the YAML into a queryable document.
func (c *Client) Upload(ctx context.Context, filename string, content []byte, opts UploadOptions) (res UploadResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("upload", start, err) }()

	if len(content) == 0 {
		return UploadResult{}, errors.New("swarmkb: upload content is empty")
	}
	err = c.call(ctx, http.MethodPost, "/upload", uploadRequest{
		File:               base64.StdEncoding.EncodeToString(content),
		Filename:           filename,
		StoreFullStructure: !opts.BlobOnly,
		TargetStore:        opts.TargetStore,
		Uploader:           opts.Uploader,
	}, &res, nil)
	return res, err
}

// UploadFile reads a YAML template from disk, checks that it parses and uploads it.
func (c *Client) UploadFile(ctx context.Context, path string, opts UploadOptions) (UploadResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return UploadResult{}, fmt.Errorf("swarmkb: read %s: %w", path, err)
	}
	var probe any
	if err := yaml.Unmarshal(content, &probe); err != nil {
		return UploadResult{}, fmt.Errorf("swarmkb: %s is not valid YAML: %w", path, err)
	}
	return c.Upload(ctx, filepath.Base(path), content, opts)
}

// Metadata returns a metadata record by its id.
func (c *Client) Metadata(ctx context.Context, id string) (rec MetadataRecord, err error) {
	start := time.Now()
	defer func() { c.obs.observe("metadata", start, err) }()

	err = c.call(ctx, http.MethodGet, "/metadata?id="+url.QueryEscape(id), nil, &rec, nil)
	return rec, err
}

// MetadataFor returns the metadata record derived from a source document.
// A document without a record yields an error matching ErrNotFound.
func (c *Client) MetadataFor(ctx context.Context, associatedID string) (rec MetadataRecord, err error) {
	start := time.Now()
	defer func() { c.obs.observe("metadata_for", start, err) }()

	err = c.call(ctx, http.MethodGet, "/metadata?associated_id="+url.QueryEscape(associatedID), nil, &rec, nil)
	return rec, err
}

// EnrichmentStatus reports how the node's last enrichment of a document ended.
// A document the node never enriched yields an error matching ErrNotFound.
func (c *Client) EnrichmentStatus(ctx context.Context, associatedID string) (out EnrichmentOutcome, err error) {
	start := time.Now()
	defer func() { c.obs.observe("enrichment_status", start, err) }()

	err = c.call(ctx, http.MethodGet, "/metadata/status?associated_id="+url.QueryEscape(associatedID), nil, &out, nil)
	return out, err
}

// UpdateMetadata changes fields of a metadata record and returns the result.
// id and associated_id cannot be changed.
func (c *Client) UpdateMetadata(ctx context.Context, id string, fields map[string]any) (rec MetadataRecord, err error) {
	start := time.Now()
	defer func() { c.obs.observe("update_metadata", start, err) }()

	err = c.call(ctx, http.MethodPost, "/metadata/update", map[string]any{
		"metadata_id": id,
		"fields":      fields,
	}, &rec, nil)
	return rec, err
}

// SQL runs one statement against the node's relational mirror.
func (c *Client) SQL(ctx context.Context, stmt string) (records []map[string]any, err error) {
	start := time.Now()
	defer func() { c.obs.observe("sql", start, err) }()

	resp, err := c.send(ctx, http.MethodPost, "/sql", map[string]string{"query": stmt})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var out struct {
		Records []map[string]any `json:"records"`
	}
	if err := jsonDecode(resp, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// Replication asks the node which peers hold the metadata of a document.
func (c *Client) Replication(ctx context.Context, associatedID string) (rep ReplicationReport, err error) {
	start := time.Now()
	defer func() { c.obs.observe("replication", start, err) }()

	err = c.call(ctx, http.MethodGet, "/replication/"+url.PathEscape(associatedID), nil, &rep, nil)
	return rep, err
}

// VerifySchema checks the node's mirror table against the metadata field list.
func (c *Client) VerifySchema(ctx context.Context) (rep SchemaReport, err error) {
	start := time.Now()
	defer func() { c.obs.observe("verify_schema", start, err) }()

	err = c.call(ctx, http.MethodGet, "/schema/verify", nil, &rep, nil)
	return rep, err
}
