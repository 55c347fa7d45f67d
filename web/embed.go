package webui

import (
	"embed"
	"io/fs"
)

var (
	//go:embed dashboard
	files embed.FS
)

// FS returns the embedded filesystem containing the dashboard UI assets.
func FS() fs.FS {
	return files
}
