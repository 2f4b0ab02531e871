package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

const pdfMIME = "application/pdf"

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	IsPDF       bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual file type using magic bytes, not filename
func (d *Detector) Detect(data []byte) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
		IsPDF:     mtype.Is(pdfMIME),
	}
	if info.IsPDF {
		info.Description = "PDF document"
	} else {
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Msg("detected file type")
	return info
}

// NotPDFError is returned when an upload is rejected before classification.
type NotPDFError struct {
	Name   string
	Reason string
}

func (e *NotPDFError) Error() string {
	return fmt.Sprintf("%s is not a PDF: %s", e.Name, e.Reason)
}

// ValidateUpload requires a .pdf filename and PDF magic bytes.
func (d *Detector) ValidateUpload(name string, data []byte) error {
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return &NotPDFError{Name: name, Reason: "file name must end in .pdf"}
	}
	if len(data) == 0 {
		return &NotPDFError{Name: name, Reason: "file is empty"}
	}
	if info := d.Detect(data); !info.IsPDF {
		return &NotPDFError{Name: name, Reason: info.Description}
	}
	return nil
}
