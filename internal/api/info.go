package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	dataDir  string
	dbOK     bool
	provider bool
}

func NewInfoHandler(dataDir string, dbOK, provider bool) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, dbOK: dbOK, provider: provider}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"data_dir" doc:"Data directory path"`
	DB       bool     `json:"db" doc:"Whether preferences and the plan are persisted"`
	Provider bool     `json:"provider" doc:"Whether nearby search and reverse geocoding are configured"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"discovery", "draft", "geojson", "datastar"}
	if h.dbOK {
		features = append(features, "duckdb")
	}
	if h.provider {
		features = append(features, "google-places")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-trip",
		Version:  "0.1.0",
		DataDir:  h.dataDir,
		DB:       h.dbOK,
		Provider: h.provider,
		Features: features,
	}}, nil
}
