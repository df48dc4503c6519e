// Package api serves the stored snapshots over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"nsemarket-backend/internal/components/telemetry"
	"nsemarket-backend/internal/search"
	"nsemarket-backend/internal/store"
	"nsemarket-backend/lib/textutil"
	"nsemarket-backend/lib/util/serviceutil"
)

const (
	report_list_stocks = "api.list-stocks"
	report_get_stock   = "api.get-stock"
	report_search      = "api.search"
	report_encode      = "api.encode"
)

type Options struct {
	Store       store.Store
	Tel         telemetry.API
	AccessToken string
	// AllowedOrigins enables CORS for the given origins.
	AllowedOrigins []string
}

type server struct {
	store store.Store
	tel   telemetry.API
}

type errorBody struct {
	Error       string   `json:"error"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func NewHandler(opts Options) http.Handler {
	s := server{
		store: opts.Store,
		tel:   telemetry.NewScopedAPI("api", opts.Tel),
	}

	router := mux.NewRouter()
	router.Use(serviceutil.VerifyAccessToken(opts.AccessToken))
	router.HandleFunc("/stocks", s.listStocks).Methods(http.MethodGet)
	router.HandleFunc("/stocks/{ticker}", s.getStock).Methods(http.MethodGet)
	router.HandleFunc("/search", s.search).Methods(http.MethodGet)

	var handler http.Handler = router
	handler = handlers.CompressHandler(handler)
	if len(opts.AllowedOrigins) > 0 {
		handler = handlers.CORS(
			handlers.AllowedOrigins(opts.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet}),
			handlers.AllowedHeaders([]string{"Authorization"}),
		)(handler)
	}
	return handlers.RecoveryHandler()(handler)
}

func (s server) writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(value)
	if err != nil {
		s.tel.ReportBroken(report_encode, err)
	}
}

func (s server) listStocks(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.store.LatestSnapshots(r.Context())
	if err != nil {
		s.tel.ReportBroken(report_list_stocks, err)
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to read snapshots"})
		return
	}
	s.writeJSON(w, http.StatusOK, snapshots)
}

func (s server) getStock(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]

	quote, err := s.store.LatestQuote(r.Context(), ticker)
	if errors.Is(err, store.ErrNotFound) {
		body := errorBody{Error: "unknown ticker " + ticker}
		tickers, err := s.store.Tickers(r.Context())
		if err == nil {
			for _, match := range textutil.ClosestMatches(ticker, tickers, 3, 0.7) {
				body.Suggestions = append(body.Suggestions, match.Value)
			}
		}
		s.writeJSON(w, http.StatusNotFound, body)
		return
	}
	if err != nil {
		s.tel.ReportBroken(report_get_stock, ticker, err)
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to read quote"})
		return
	}
	s.writeJSON(w, http.StatusOK, quote)
}

func (s server) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing query parameter q"})
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	snapshots, err := s.store.LatestSnapshots(r.Context())
	if err != nil {
		s.tel.ReportBroken(report_search, err)
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to read snapshots"})
		return
	}
	index, err := search.New(snapshots)
	if err != nil {
		s.tel.ReportBroken(report_search, err)
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to build index"})
		return
	}
	defer index.Close()

	hits, err := index.Search(query, limit)
	if err != nil {
		s.tel.ReportBroken(report_search, query, err)
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "search failed"})
		return
	}
	s.writeJSON(w, http.StatusOK, hits)
}
