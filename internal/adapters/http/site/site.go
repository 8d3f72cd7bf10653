// Package site serves the embedded stylesheet and script used by the web views.
package site

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"sync"

	"github.com/tdewolff/minify/v2"
	mincss "github.com/tdewolff/minify/v2/css"
	minjs "github.com/tdewolff/minify/v2/js"
)

// ErrAsset wraps asset preparation failures.
var ErrAsset = errors.New("asset preparation failed")

// Prefix is the URL path assets are served under.
const Prefix = "/assets/"

//go:embed static/*
var staticFS embed.FS

type asset struct {
	body        []byte
	contentType string
}

// Assets holds the minified files, built once on first use.
type Assets struct {
	once  sync.Once
	files map[string]asset
	err   error
}

// NewAssets returns an empty asset set.
func NewAssets() *Assets { return &Assets{} }

func (a *Assets) build() {
	m := minify.New()
	m.AddFunc("text/css", mincss.Minify)
	m.AddFunc("application/javascript", minjs.Minify)

	a.files = map[string]asset{}
	a.err = fs.WalkDir(staticFS, "static", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		raw, err := staticFS.ReadFile(p)
		if err != nil {
			return err
		}

		body := raw
		var media string
		switch path.Ext(p) {
		case ".css":
			media = "text/css"
		case ".js":
			media = "application/javascript"
		}
		if media != "" {
			var buf bytes.Buffer
			if err := m.Minify(media, &buf, bytes.NewReader(raw)); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrAsset, p, err)
			}
			body = buf.Bytes()
		}
		a.files[path.Base(p)] = asset{body: body, contentType: mime.TypeByExtension(path.Ext(p))}
		return nil
	})
}

// ServeHTTP serves one asset by base name.
func (a *Assets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(a.build)
	if a.err != nil {
		http.Error(w, a.err.Error(), http.StatusInternalServerError)
		return
	}
	f, ok := a.files[path.Base(r.URL.Path)]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", f.contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(f.body)
}

// Register attaches the asset routes to mux.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.Handle("GET "+Prefix, NewAssets())
}
