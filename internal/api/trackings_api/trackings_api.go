package trackings_api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/BearBump/BoxTrack/internal/models"
	"github.com/BearBump/BoxTrack/internal/reqlog"
	"github.com/BearBump/BoxTrack/internal/services/trackings"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pkg/errors"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderCache     = "X-Cache"

	maxBodyBytes = 64 << 10
)

type TrackingsAPI struct {
	svc *trackings.Service
}

func New(svc *trackings.Service) *TrackingsAPI {
	return &TrackingsAPI{svc: svc}
}

// Routes builds the public router. allowedOrigins defaults to "*".
func (a *TrackingsAPI) Routes(allowedOrigins []string) chi.Router {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderRequestID},
		ExposedHeaders: []string{HeaderRequestID, HeaderCache},
		MaxAge:         300,
	}))

	r.Get("/api/carriers", a.listCarriers)
	r.Post("/api/resolve", a.resolve)
	r.Post("/api/track/init", a.initTracking)
	r.Post("/api/track/details", a.details)
	r.Options("/*", preflightOK)

	r.NotFound(noRoute)
	r.MethodNotAllowed(noRoute)
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := reqlog.WithRequestID(r.Context(), r.Header.Get(HeaderRequestID))
		w.Header().Set(HeaderRequestID, reqlog.RequestID(ctx))
		reqlog.Step(ctx, "entry", "method", r.Method, "path", r.URL.Path)
		reqlog.Debug(ctx, "headers", "headers", r.Header)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type resolveRequest struct {
	Container string `json:"container"`
}

type initRequest struct {
	Company   string             `json:"company"`
	Container string             `json:"container"`
	Consent   bool               `json:"consent"`
	User      models.UserSnippet `json:"user"`
}

type initResponse struct {
	OK      bool   `json:"ok"`
	ID      string `json:"id"`
	Company string `json:"company"`
}

type detailsRequest struct {
	Company   string `json:"company"`
	Container string `json:"container"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Reason    string `json:"reason"`
	RequestID string `json:"requestId"`
}

func (a *TrackingsAPI) listCarriers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Carriers())
}

func (a *TrackingsAPI) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decode(w, r, &req) {
		return
	}
	c, ok := a.svc.Resolve(req.Container)
	if !ok {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *TrackingsAPI) initTracking(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.svc.Init(r.Context(), trackings.InitRequest{
		Company:   req.Company,
		Container: req.Container,
		Consent:   req.Consent,
		User:      req.User,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, initResponse{OK: true, ID: res.ID, Company: res.Company})
}

func (a *TrackingsAPI) details(w http.ResponseWriter, r *http.Request) {
	var req detailsRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.svc.Details(r.Context(), trackings.DetailsRequest{
		Company:   req.Company,
		Container: req.Container,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set(HeaderCache, res.Source)
	writeJSON(w, http.StatusOK, res.Payload)
}

func noRoute(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{
		Error:     "Not found",
		Reason:    trackings.ReasonNoRoute,
		RequestID: reqlog.RequestID(r.Context()),
	})
}

// preflightOK answers OPTIONS requests that cors.Handler did not treat as a preflight.
func preflightOK(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// decode treats an empty body as {} and leaves validation to the service.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(body).Decode(dst)
	if errors.Is(err, io.EOF) {
		reqlog.Step(r.Context(), "no_body")
		return true
	}
	if err != nil {
		reqlog.Step(r.Context(), "parse_error", "err", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:     "Invalid JSON body",
			Reason:    trackings.ReasonParseError,
			RequestID: reqlog.RequestID(r.Context()),
		})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	reason := trackings.Reason(err)
	status := http.StatusInternalServerError
	msg := "Internal error"

	var ve *trackings.ValidationError
	switch {
	case errors.As(err, &ve):
		status, msg = http.StatusBadRequest, ve.Message
	case reason == trackings.ReasonProvider:
		status, msg = http.StatusBadGateway, "Carrier provider unavailable"
	}

	reqlog.Step(r.Context(), "exit_error", "status", status, "reason", reason, "err", err)
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Reason:    reason,
		RequestID: reqlog.RequestID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
