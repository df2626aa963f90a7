package services

import (
	"mime"
	"path/filepath"
	"strings"
)

// DefaultContentType is sent with a response body that declares no Content-Type.
const DefaultContentType = "application/json; charset=utf-8"

// ContentTypeForFile infers the content type of a bodyFile from its extension.
// Unknown extensions fall back to DefaultContentType.
func ContentTypeForFile(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return DefaultContentType
	case ".xml":
		return "application/xml"
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".csv":
		return "text/csv"
	case "":
		return DefaultContentType
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return DefaultContentType
}
