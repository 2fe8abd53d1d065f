package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-align/internal/config"
	"github.com/kozaktomas/face-align/internal/warp"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
	engine *warp.Engine
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config, engine *warp.Engine) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
		engine: engine,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	OutputSize    int      `json:"output_size"`
	EnablePadding bool     `json:"enable_padding"`
	Shrink        bool     `json:"shrink"`
	Reference     string   `json:"reference"`
	WarpBackend   string   `json:"warp_backend"`
	WarpBackends  []string `json:"warp_backends"`
	LedgerBackend string   `json:"ledger_backend"`
}

// Get returns the active alignment configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ConfigResponse{
		OutputSize:    h.config.Align.OutputSize,
		EnablePadding: h.config.Align.EnablePadding,
		Shrink:        h.config.Align.Shrink,
		Reference:     h.config.Align.Reference,
		WarpBackend:   h.engine.Name(),
		WarpBackends:  warp.Backends(),
		LedgerBackend: h.config.Ledger.Backend,
	})
}
