package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"iq-card-service/internal/app"
)

// NewRouter mounts the REST API under /api/v1, the websocket stream and the
// health check, wrapped in CORS for the browser widget.
func NewRouter(service *app.QuizService, allowedOrigins []string) http.Handler {
	h := NewHandler(service)
	ws := NewWSHandler(service)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods("GET")
	r.HandleFunc("/ws", ws.ServeWS)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/brands", h.ListBrands).Methods("GET")
	api.HandleFunc("/brands/{brand}", h.GetBrand).Methods("GET")
	api.HandleFunc("/brands/{brand}/articles", h.ListArticles).Methods("GET")
	api.HandleFunc("/brands/{brand}/avatar", h.ResolveAvatar).Methods("GET")
	api.HandleFunc("/brands/{brand}/sessions", h.CreateSession).Methods("POST")

	api.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.DeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/start", h.StartSession).Methods("POST")
	api.HandleFunc("/sessions/{id}/reset", h.ResetSession).Methods("POST")
	api.HandleFunc("/sessions/{id}/answers", h.Answer).Methods("POST")
	api.HandleFunc("/sessions/{id}/result", h.GetResult).Methods("GET")
	api.HandleFunc("/sessions/{id}/profile", h.UpdateProfile).Methods("PUT")
	api.HandleFunc("/sessions/{id}/avatar", h.GetAvatar).Methods("GET")
	api.HandleFunc("/sessions/{id}/avatar/errors", h.AvatarError).Methods("POST")
	api.HandleFunc("/sessions/{id}/card", h.ExportCard).Methods("POST")

	origins := allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
	})
	return c.Handler(r)
}
