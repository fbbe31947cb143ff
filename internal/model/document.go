package model

import (
	"path/filepath"
	"strings"
)

// Document is an opaque handle to one submitted file.
type Document struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Path        string `json:"-"`
	ContentType string `json:"content_type,omitempty"`
}

// Ext returns the lower-cased extension of the original file name, falling
// back to the stored path.
func (d Document) Ext() string {
	name := d.Name
	if name == "" {
		name = d.Path
	}
	return strings.ToLower(filepath.Ext(name))
}

// IsPDF reports whether the document should go through PDF text extraction.
func (d Document) IsPDF() bool {
	return d.ContentType == "application/pdf" || d.Ext() == ".pdf"
}
