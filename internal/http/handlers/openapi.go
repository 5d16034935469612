package handlers

import (
	_ "embed"
	"encoding/json"
	"maps"
	"net/http"
	"sync"
)

//go:embed openapi.json
var openAPIDocument []byte

var parseOpenAPI = sync.OnceValues(func() (map[string]any, error) {
	var doc map[string]any
	err := json.Unmarshal(openAPIDocument, &doc)
	return doc, err
})

// OpenAPIJSON serves the API description with this deployment's server URL and request
// body limit filled in.
func (a *App) OpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	base, err := parseOpenAPI()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	doc := maps.Clone(base)
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	doc["servers"] = []map[string]string{{"url": scheme + "://" + r.Host}}
	if info, ok := base["info"].(map[string]any); ok && a.MaxBodyBytes > 0 {
		info = maps.Clone(info)
		info["x-max-request-bytes"] = a.MaxBodyBytes
		doc["info"] = info
	}
	a.json(w, http.StatusOK, doc)
}
