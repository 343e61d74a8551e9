// Package file holds the records exchanged between the host and the
// storage adapter.
package file

import (
	"path/filepath"
	"strings"
)

// Record is an uploaded file as the host hands it to the adapter.
//
// LocalPath is where the upload sits on disk before it is stored. Path and
// Filename together address the remote object; UploadFile overwrites both.
type Record struct {
	LocalPath    string `json:"-"`
	Filename     string `json:"filename,omitempty"`
	OriginalName string `json:"originalname,omitempty"`
	Mimetype     string `json:"mimetype,omitempty"`
	Size         int64  `json:"size,omitempty"`
	Extension    string `json:"extension,omitempty"`
	Path         string `json:"path,omitempty"`
	Bucket       string `json:"bucket,omitempty"`
}

// Ext returns the record's extension with a leading dot, taken from
// Extension or else from OriginalName. Empty when neither has one.
func (r *Record) Ext() string {
	if r.Extension != "" {
		return "." + strings.TrimPrefix(r.Extension, ".")
	}
	return filepath.Ext(r.OriginalName)
}

// Data is what the adapter returns after a successful upload. Fields come
// from the storage service's metadata and are zero when it did not report
// them.
type Data struct {
	Filename     string `json:"filename,omitempty"`
	Size         int64  `json:"size,omitempty"`
	Mimetype     string `json:"mimetype,omitempty"`
	Path         string `json:"path,omitempty"`
	OriginalName string `json:"originalname,omitempty"`
	URL          string `json:"url,omitempty"`
	Bucket       string `json:"bucket,omitempty"`
	ETag         string `json:"etag,omitempty"`
	MD5          string `json:"md5,omitempty"`
	StorageClass string `json:"storageClass,omitempty"`
}

// Record returns the record addressing the same remote object as d.
func (d *Data) Record() *Record {
	return &Record{
		Filename:     d.Filename,
		OriginalName: d.OriginalName,
		Mimetype:     d.Mimetype,
		Size:         d.Size,
		Path:         d.Path,
		Bucket:       d.Bucket,
	}
}

// Fields projects d onto the named schema fields. Unknown names are ignored.
func (d *Data) Fields(names []string) map[string]any {
	all := map[string]any{
		"filename":     d.Filename,
		"size":         d.Size,
		"mimetype":     d.Mimetype,
		"path":         d.Path,
		"originalname": d.OriginalName,
		"url":          d.URL,
		"bucket":       d.Bucket,
		"etag":         d.ETag,
		"md5":          d.MD5,
		"storageClass": d.StorageClass,
	}
	out := make(map[string]any, len(names))
	for _, n := range names {
		if v, ok := all[n]; ok {
			out[n] = v
		}
	}
	return out
}
