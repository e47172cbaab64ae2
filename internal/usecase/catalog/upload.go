package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/swarmkb/internal/domain"
	"github.com/kailas-cloud/swarmkb/internal/domain/document"
	"github.com/kailas-cloud/swarmkb/internal/domain/upload"
)

// Upload stores a template either as a queryable parsed document or as an opaque
// base64 blob, indexes it in the mirror and schedules enrichment.
func (s *Service) Upload(ctx context.Context, req upload.Request) (upload.Result, error) {
	if err := req.Validate(); err != nil {
		return upload.Result{}, fmt.Errorf("upload: %w: %w", domain.ErrInvalidSchema, err)
	}
	target := req.TargetStore
	if target == "" {
		target = domain.DefaultStore
	}
	if err := domain.ValidateStoreName(target); err != nil {
		return upload.Result{}, fmt.Errorf("upload: %w", err)
	}

	sum := sha256.Sum256(req.Content)
	id := s.newID()
	fields := map[string]any{
		document.FieldFilename: req.Filename,
		document.FieldLineage:  lineage(s.nodeID, req.Filename),
	}

	var (
		storageType = upload.StorageBlob
		nodeCount   int
	)
	if req.StoreFullStructure {
		parsed, err := parseYAML(req.Content)
		if err != nil {
			return upload.Result{}, fmt.Errorf("upload %s: %w: %w", req.Filename, domain.ErrInvalidSchema, err)
		}
		for k, v := range parsed {
			if k == document.FieldID || k == document.FieldImportedAt {
				continue
			}
			fields[k] = v
		}
		storageType = upload.StorageFullStructure
		nodeCount = countNodes(parsed)
	} else {
		fields["content"] = base64.StdEncoding.EncodeToString(req.Content)
		fields["encoding"] = "base64"
	}
	fields[document.FieldStorage] = storageType

	doc, err := document.New(id, s.now(), fields)
	if err != nil {
		return upload.Result{}, fmt.Errorf("upload %s: %w: %w", req.Filename, domain.ErrInvalidSchema, err)
	}
	if err := s.persist(ctx, target, doc); err != nil {
		return upload.Result{}, fmt.Errorf("upload %s: %w", req.Filename, err)
	}

	res := upload.Result{
		TemplateID:      id,
		Queryable:       req.StoreFullStructure,
		StorageLocation: domain.DocumentKey(target, id),
		StorageType:     storageType,
		FileSize:        int64(len(req.Content)),
	}

	if s.index != nil {
		uploader := req.Uploader
		if uploader == "" {
			uploader = s.nodeID
		}
		err := s.index.UpsertTemplate(ctx, upload.Template{
			TemplateID:      id,
			Filename:        req.Filename,
			NodeCount:       nodeCount,
			Uploader:        uploader,
			FileSize:        res.FileSize,
			SHA256:          hex.EncodeToString(sum[:]),
			StorageLocation: res.StorageLocation,
			StorageType:     storageType,
		})
		if err != nil {
			s.logger.Warn("Template index write failed",
				zap.String("template_id", id), zap.String("filename", req.Filename), zap.Error(err))
		}
	}

	s.logger.Info("Template uploaded",
		zap.String("template_id", id),
		zap.String("store", target),
		zap.String("storage_type", storageType),
		zap.Int64("filesize", res.FileSize),
	)
	return res, nil
}

func parseYAML(content []byte) (map[string]any, error) {
	var parsed any
	if err := yaml.Unmarshal(content, &parsed); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	m, ok := document.Normalize(parsed).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parse yaml: top level must be a mapping")
	}
	return m, nil
}

// countNodes counts topology node templates when the document has them.
func countNodes(fields map[string]any) int {
	topo, ok := fields["topology_template"].(map[string]any)
	if !ok {
		return 0
	}
	nodes, ok := topo["node_templates"].(map[string]any)
	if !ok {
		return 0
	}
	return len(nodes)
}

func lineage(nodeID, filename string) string {
	if nodeID == "" {
		return "upload:" + filename
	}
	return "upload:" + nodeID + ":" + filename
}
