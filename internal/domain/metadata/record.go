package metadata

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/swarmkb/internal/domain/document"
)

// idNamespace seeds deterministic record ids.
var idNamespace = uuid.MustParse("6f1c1c52-8a7e-4d0e-9c55-2f0f3b1f6a10")

// Record is the fixed-schema metadata derived from one ingested document.
// Field order is the column order of the relational mirror.
type Record struct {
	// Core identity.
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Description  string   `json:"description,omitempty"`
	MetadataType string   `json:"metadata_type,omitempty"`
	Version      string   `json:"version,omitempty"`
	Status       Status   `json:"status,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Language     string   `json:"language,omitempty"`

	// Relations.
	AssociatedID    string   `json:"associated_id,omitempty"`
	ParentID        string   `json:"parent_id,omitempty"`
	RelatedIDs      []string `json:"related_ids,omitempty"`
	SourceStore     string   `json:"source_store,omitempty"`
	SourceFilename  string   `json:"source_filename,omitempty"`
	StorageLocation string   `json:"storage_location,omitempty"`

	// Classification.
	DataDomain         string   `json:"data_domain,omitempty"`
	DataClassification string   `json:"data_classification,omitempty"`
	Category           string   `json:"category,omitempty"`
	Keywords           []string `json:"keywords,omitempty"`
	Priority           string   `json:"priority,omitempty"`
	LicenseType        string   `json:"license_type,omitempty"`
	ComplianceTags     []string `json:"compliance_tags,omitempty"`

	// Quality.
	DataQualityScore  float64 `json:"data_quality_score,omitempty"`
	CompletenessScore float64 `json:"completeness_score,omitempty"`
	ValidityScore     float64 `json:"validity_score,omitempty"`
	NodeCount         int64   `json:"node_count,omitempty"`
	RelationshipCount int64   `json:"relationship_count,omitempty"`
	FieldCount        int64   `json:"field_count,omitempty"`
	SizeBytes         int64   `json:"size_bytes,omitempty"`

	// Temporal.
	CreatedAt       time.Time `json:"created_at,omitzero"`
	UpdatedAt       time.Time `json:"updated_at,omitzero"`
	PublishedAt     time.Time `json:"published_at,omitzero"`
	ValidFrom       time.Time `json:"valid_from,omitzero"`
	ValidUntil      time.Time `json:"valid_until,omitzero"`
	UpdateFrequency string    `json:"update_frequency,omitempty"`
	RetentionPolicy string    `json:"retention_policy,omitempty"`

	// Governance.
	Owner            string `json:"owner,omitempty"`
	ContactInfo      string `json:"contact_info,omitempty"`
	AccessControl    string `json:"access_control,omitempty"`
	GeoLocation      string `json:"geo_location,omitempty"`
	APIEndpoint      string `json:"api_endpoint,omitempty"`
	ProcessingStatus string `json:"processing_status,omitempty"`

	// Provenance.
	SourceAgent      string `json:"source_agent,omitempty"`
	PeerID           string `json:"peer_id,omitempty"`
	IPFSCID          string `json:"ipfs_cid,omitempty"`
	SHA256Hash       string `json:"sha256_hash,omitempty"`
	Lineage          string `json:"lineage,omitempty"`
	ExtractionMethod string `json:"extraction_method,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`
}

// NewID derives the record id for a source document. Re-ingesting the same
// document yields the same id, so writes upsert instead of duplicating.
func NewID(sourceStore, associatedID string) string {
	return uuid.NewSHA1(idNamespace, []byte(sourceStore+":"+associatedID)).String()
}

// Validate checks the identity fields.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("metadata id is required")
	}
	if r.AssociatedID == "" {
		return fmt.Errorf("metadata %s: associated_id is required", r.ID)
	}
	if r.Status != "" && !r.Status.Valid() {
		return fmt.Errorf("metadata %s: unknown status %q", r.ID, r.Status)
	}
	return nil
}

// ToMap returns the JSON object form of the record.
func (r Record) ToMap() map[string]any {
	data, err := json.Marshal(r)
	if err != nil {
		return map[string]any{"id": r.ID}
	}
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	return m
}

// Document returns the record as a log-store document keyed by the record id.
func (r Record) Document(importedAt time.Time) (document.Document, error) {
	fields := r.ToMap()
	delete(fields, "id")
	doc, err := document.New(r.ID, importedAt, fields)
	if err != nil {
		return document.Document{}, fmt.Errorf("metadata %s: %w", r.ID, err)
	}
	return doc, nil
}

// FromDocument rebuilds a record from a log-store document.
func FromDocument(d document.Document) (Record, error) {
	fields := make(map[string]any, len(d.Fields())+1)
	for k, v := range d.Fields() {
		if _, ok := Lookup(k); ok {
			fields[k] = v
		}
	}
	fields["id"] = d.ID()
	data, err := json.Marshal(fields)
	if err != nil {
		return Record{}, fmt.Errorf("encode metadata %s: %w", d.ID(), err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode metadata %s: %w", d.ID(), err)
	}
	return r, nil
}
