package workspace

import "time"

// Upload holds metadata for a file stored in an owner's upload folder.
type Upload struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	FileType   string     `json:"file_type"`
	Size       int64      `json:"size"`
	UploadedAt time.Time  `json:"uploaded_at"`
	ImportedAt *time.Time `json:"imported_at,omitempty"`
	Outputs    []string   `json:"outputs,omitempty"`
}
