package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"smart-stick/tracker/internal/metrics"
)

// RouterDeps are the pieces NewRouter mounts.
type RouterDeps struct {
	Handlers       *Handlers
	Auth           *AuthMiddleware
	Realtime       http.Handler
	AllowedOrigins []string
}

func NewRouter(d RouterDeps) http.Handler {
	router := mux.NewRouter()
	router.Use(RequestLogger)

	router.HandleFunc("/", d.Handlers.Root).Methods(http.MethodGet)
	router.HandleFunc("/healthz", d.Handlers.Healthz).Methods(http.MethodGet)
	router.HandleFunc("/readyz", d.Handlers.Readyz).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	if d.Realtime != nil {
		router.Handle("/ws", d.Realtime).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api").Subrouter()

	api.Handle("/location",
		d.Auth.Device("x-api-key")(http.HandlerFunc(d.Handlers.PostLocation))).Methods(http.MethodPost)
	api.Handle("/firmware/update",
		d.Auth.Device("Authorization")(http.HandlerFunc(d.Handlers.FirmwareUpdate))).Methods(http.MethodGet)

	api.Handle("/latest", d.Auth.Bearer(http.HandlerFunc(d.Handlers.GetLatest))).Methods(http.MethodGet)
	api.Handle("/history", d.Auth.Bearer(http.HandlerFunc(d.Handlers.GetHistory))).Methods(http.MethodGet)
	api.Handle("/emergency/clear", d.Auth.Bearer(http.HandlerFunc(d.Handlers.ClearEmergency))).Methods(http.MethodPost)
	api.Handle("/user/fcm-token", d.Auth.Bearer(http.HandlerFunc(d.Handlers.UpdatePushToken))).Methods(http.MethodPut)

	c := cors.New(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(router)
}
