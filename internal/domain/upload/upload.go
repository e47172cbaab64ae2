// Package upload describes template uploads and their index entries.
package upload

import "fmt"

// Storage types of an uploaded template.
const (
	StorageFullStructure = "full_structure"
	StorageBlob          = "blob"
)

// MaxFilenameLength bounds upload file names.
const MaxFilenameLength = 255

// Request is one template upload.
type Request struct {
	Content            []byte
	Filename           string
	StoreFullStructure bool
	TargetStore        string
	Uploader           string
}

// Validate checks the request before any parsing.
func (r Request) Validate() error {
	if len(r.Content) == 0 {
		return fmt.Errorf("upload content is empty")
	}
	if r.Filename == "" {
		return fmt.Errorf("upload filename is required")
	}
	if len(r.Filename) > MaxFilenameLength {
		return fmt.Errorf("upload filename too long (max %d)", MaxFilenameLength)
	}
	return nil
}

// Result describes where an upload ended up.
type Result struct {
	TemplateID      string `json:"template_id"`
	Queryable       bool   `json:"queryable"`
	StorageLocation string `json:"storage_location"`
	StorageType     string `json:"storage_type"`
	FileSize        int64  `json:"filesize"`
}

// Template is the relational index entry of an uploaded template.
type Template struct {
	TemplateID      string
	Filename        string
	NodeCount       int
	Uploader        string
	FileSize        int64
	SHA256          string
	StorageLocation string
	StorageType     string
}
