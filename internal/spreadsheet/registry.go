package spreadsheet

import (
	"fmt"
	"strings"
	"sync"
)

// Content types of the workbook formats, mapped to parser names when the
// file name carries no usable extension.
const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeXLSM = "application/vnd.ms-excel.sheet.macroenabled.12"
	ContentTypeXLS  = "application/vnd.ms-excel"
)

// Registry holds the available parsers and picks one per file.
type Registry struct {
	mu           sync.RWMutex
	parsers      []Parser
	contentTypes map[string]string
}

// NewRegistry returns a registry with the workbook parsers.
func NewRegistry() *Registry {
	return &Registry{
		parsers: []Parser{
			NewXLSXParser(),
			NewXLSParser(),
		},
		contentTypes: map[string]string{
			ContentTypeXLSX: "xlsx",
			ContentTypeXLSM: "xlsx",
			ContentTypeXLS:  "xls",
		},
	}
}

// NewSimulatedRegistry returns a registry that answers every spreadsheet
// with generated sample data.
func NewSimulatedRegistry() *Registry {
	return &Registry{parsers: []Parser{NewSimulatedParser()}}
}

// Register adds a parser. Parsers registered later are consulted first.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers = append([]Parser{p}, r.parsers...)
}

// FindParser detects the correct parser for a file. The name is tried first;
// contentType is the fallback for names without a known extension.
func (r *Registry) FindParser(filename, contentType string) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.parsers {
		if p.CanParse(filename) {
			return p, nil
		}
	}
	if name, ok := r.contentTypes[normalizeContentType(contentType)]; ok {
		for _, p := range r.parsers {
			if p.Name() == name {
				return p, nil
			}
		}
	}
	return nil, fmt.Errorf("no suitable parser found for file: %s", filename)
}

// Supports reports whether some parser handles files with extension ext.
func (r *Registry) Supports(ext string) bool {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.parsers {
		if p.CanParse("file" + ext) {
			return true
		}
	}
	return false
}

// Unsupported returns the extensions no registered parser handles.
func (r *Registry) Unsupported(exts []string) []string {
	var out []string
	for _, ext := range exts {
		if !r.Supports(ext) {
			out = append(out, ext)
		}
	}
	return out
}

func normalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// GetParserByName returns a parser by its name.
func (r *Registry) GetParserByName(name string) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name = strings.ToLower(name)
	for _, p := range r.parsers {
		if strings.ToLower(p.Name()) == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("parser not found: %s", name)
}
