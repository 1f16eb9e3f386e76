package api

import (
	"embed"
	"net/http"
)

//go:embed static
var staticBundles embed.FS

// staticHandler serves the first-party helper bundles the rewriter's
// bootstrap script tag references (spec §4.8/§C, spec.md "GET /static/*
// | in-memory helper bundles"): the bundles ship inside the binary rather
// than being read off a disk directory at request time.
func staticHandler() http.Handler {
	return http.FileServer(http.FS(staticBundles))
}
