package options

import (
	"net/http"

	"github.com/gorilla/mux"

	"portrait-studio-server/modules/common/utils"
)

// RegisterRoutes - GET /api/options/catalog
func RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/options/catalog", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, GetCatalog())
	}).Methods("GET")
}
