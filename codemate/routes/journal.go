package routes

import (
	"codemate/codemate/config"
	"codemate/codemate/controllers"
	"codemate/codemate/middlewares"
	"codemate/codemate/utils/logging"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func JournalRoutes(ctrl *controllers.JournalController, cfg config.Config) chi.Router {
	r := chi.NewRouter()
	r.Group(func(gr chi.Router) {
		gr.Use(middlewares.AuthMiddleware(cfg))
		// GET /journal?limit=n : newest exchanges, no message content
		gr.Get("/", func(w http.ResponseWriter, r *http.Request) {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			out, err := ctrl.Recent(r.Context(), limit)
			if err != nil {
				logging.ErrorLogger.Error("journal read failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "journal unavailable"})
				return
			}
			writeJSON(w, http.StatusOK, out)
		})
	})
	return r
}
