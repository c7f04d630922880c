package httpapi

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var embeddedStatic embed.FS

func staticFS() fs.FS {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		return embeddedStatic
	}
	return sub
}

func newStaticHandler() http.Handler {
	return http.FileServer(http.FS(staticFS()))
}

func servePage(w http.ResponseWriter, r *http.Request, name string) {
	http.ServeFileFS(w, r, staticFS(), name)
}
