// Package web bundles the console's templates and static assets.
package web

import (
	"embed"
	"io/fs"
)

// Templates holds the page and partial templates.
//
//go:embed templates/**/*.html
var Templates embed.FS

//go:embed static/**/*
var static embed.FS

// StaticFS returns the static assets rooted at their public path, so
// /static/css/console.css resolves to css/console.css.
func StaticFS() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		// static is a compile-time constant directory.
		panic(err)
	}
	return sub
}
