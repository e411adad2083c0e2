// Package shell serves the sync client's web application shell as an
// embedded asset.
//
// The shell is embedded into the Go binary using the go:embed directive,
// eliminating any runtime dependency on external files. The Handler
// implements SPA (Single Page Application) fallback routing: any GET path
// that isn't a real asset serves index.html with status 200, never 404,
// so the client's own router can take over.
package shell

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
)

//go:embed web/*
var content embed.FS

// Handler returns an http.Handler serving the application shell.
//
// When dir is non-empty and the directory exists, assets are served from
// the filesystem (dev mode). When dir is empty, assets come from the
// embedded FS (production). Panics if the embedded assets cannot be
// loaded (build error).
func Handler(dir string) http.Handler {
	var fileSystem http.FileSystem

	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			fileSystem = http.Dir(dir)
		}
	}
	if fileSystem == nil {
		webFS, err := fs.Sub(content, "web")
		if err != nil {
			panic(fmt.Sprintf("shell: failed to load embedded web assets: %v", err))
		}
		fileSystem = http.FS(webFS)
	}

	fileServer := http.FileServer(fileSystem)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		upath := path.Clean(r.URL.Path)
		if upath == "." {
			upath = "/"
		}
		if upath == "/" {
			fileServer.ServeHTTP(w, r)
			return
		}

		f, err := fileSystem.Open(upath[1:])
		if err != nil {
			// Not a real asset: serve the shell with 200 and let the
			// client-side router resolve the path.
			r.URL.Path = "/"
			fileServer.ServeHTTP(w, r)
			return
		}
		f.Close()
		fileServer.ServeHTTP(w, r)
	})
}
