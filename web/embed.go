// Package web holds the control panel page and its static assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates css js
var assets embed.FS

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(assets, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// TemplatesFS holds the page templates at its root.
func TemplatesFS() fs.FS {
	return mustSub("templates")
}

// StaticFS serves css/ and js/, mounted under /static/.
func StaticFS() fs.FS {
	return assets
}
