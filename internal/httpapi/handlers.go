package httpapi

import "net/http"

// handlers holds the dependencies every route method closes over.
type handlers struct {
	deps      Deps
	routerCfg Config
}

func pathValue(r *http.Request, name string) string {
	return r.PathValue(name)
}
