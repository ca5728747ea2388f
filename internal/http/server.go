package http

import (
	"net/http"

	"streamgate/internal/x402"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler, gate *x402.Gate, feed http.Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", handler.Signup)
		r.Post("/login", handler.Login)
		r.Get("/me", handler.Me)
	})

	r.Route("/streams", func(r chi.Router) {
		r.Post("/", handler.CreateStream)
		r.Post("/stop", handler.StopStream)
		r.Post("/join", handler.JoinStream)
		r.Get("/live", handler.ListLive)
		r.Get("/search", handler.Search)
		r.Get("/by-room/{roomName}", handler.GetStreamByRoom)
		r.Get("/{streamId}", handler.GetStream)
		r.Patch("/{streamId}", handler.UpdateStream)
		r.Get("/{streamId}/access", handler.AccessStatus)
	})

	r.Post("/payments/verify", handler.VerifyPayment)

	r.Route("/creator", func(r chi.Router) {
		r.Post("/profile", handler.SaveCreatorProfile)
		r.Get("/earnings", handler.CreatorEarnings)
		r.Get("/stream/tokens", handler.CreatorTokens)
	})

	// The payment gate wraps exactly this route; price and payee arrive as
	// query parameters so the gate needs no database access.
	watchGate := gate.Middleware(x402.ResourceConfig{
		Description: "Access to live stream",
		MimeType:    "application/json",
		PayTo:       x402.QueryPayTo("creatorAddress"),
		Price:       x402.QueryPrice("price"),
	})
	r.With(watchGate).Get("/watch/{roomName}", handler.Watch)

	if feed != nil {
		r.Handle("/ws/streams", feed)
	}

	return &Server{Router: r}
}
