package enrichment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/kailas-cloud/swarmkb/internal/domain/document"
	dommeta "github.com/kailas-cloud/swarmkb/internal/domain/metadata"
)

// ExtractionRules names the rule-based extraction method.
const ExtractionRules = "rules"

// maxKeywords caps derived keywords.
const maxKeywords = 20

// RuleExtractor derives a record from structural statistics and well-known
// top-level fields. It knows nothing about specific document formats.
type RuleExtractor struct{}

// Extract implements Extractor.
func (RuleExtractor) Extract(_ context.Context, store string, doc document.Document) (dommeta.Record, error) {
	fields := doc.Fields()
	body, err := json.Marshal(fields)
	if err != nil {
		return dommeta.Record{}, fmt.Errorf("encode %s: %w", doc.ID(), err)
	}
	sum := sha256.Sum256(body)

	st := stats{}
	st.walk(fields, 0)

	rec := dommeta.Record{
		Name:              firstString(fields, "name", "title", document.FieldFilename),
		Description:       firstString(fields, "description", "summary"),
		MetadataType:      metadataType(fields),
		Version:           firstString(fields, "version", "tosca_definitions_version"),
		Language:          firstString(fields, "language"),
		Tags:              stringList(fields["tags"]),
		SourceFilename:    cast.ToString(fields[document.FieldFilename]),
		StorageLocation:   store + "/" + doc.ID(),
		Keywords:          keywords(fields),
		NodeCount:         int64(st.objects),
		FieldCount:        int64(st.leaves),
		RelationshipCount: int64(st.references),
		SizeBytes:         int64(len(body)),
		SHA256Hash:        hex.EncodeToString(sum[:]),
		Lineage:           cast.ToString(fields[document.FieldLineage]),
		ExtractionMethod:  ExtractionRules,
	}
	if rec.Name == "" {
		rec.Name = doc.ID()
	}
	rec.CompletenessScore = completeness(rec)
	return rec, nil
}

type stats struct {
	objects    int
	leaves     int
	references int
}

func (s *stats) walk(v any, depth int) {
	switch t := v.(type) {
	case map[string]any:
		if depth > 0 {
			s.objects++
		}
		for k, e := range t {
			if strings.HasSuffix(k, "_id") || strings.HasSuffix(k, "_ids") || k == "requirements" {
				s.references++
			}
			s.walk(e, depth+1)
		}
	case []any:
		for _, e := range t {
			s.walk(e, depth+1)
		}
	default:
		s.leaves++
	}
}

func metadataType(fields map[string]any) string {
	if t := firstString(fields, "metadata_type", "type", "kind"); t != "" {
		return t
	}
	if storage := cast.ToString(fields[document.FieldStorage]); storage != "" {
		return storage
	}
	return "document"
}

func firstString(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := fields[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s := cast.ToString(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	}
	return nil
}

// keywords merges explicit keywords with the document's top-level keys.
func keywords(fields map[string]any) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || strings.HasPrefix(s, "_") || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, k := range stringList(fields["keywords"]) {
		add(k)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k)
	}
	if len(out) > maxKeywords {
		out = out[:maxKeywords]
	}
	return out
}

// completeness is the share of descriptive fields that carry a value.
func completeness(rec dommeta.Record) float64 {
	filled := 0
	checks := []bool{
		rec.Name != "",
		rec.Description != "",
		rec.MetadataType != "",
		rec.Version != "",
		len(rec.Tags) > 0,
		len(rec.Keywords) > 0,
		rec.Language != "",
		rec.SourceFilename != "",
	}
	for _, ok := range checks {
		if ok {
			filled++
		}
	}
	return float64(filled) / float64(len(checks))
}
