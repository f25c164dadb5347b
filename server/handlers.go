package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/reelguess/reelguess/game"
	"github.com/reelguess/reelguess/tmdb"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/round", s.handleRound)
		r.Get("/filters", s.handleGetFilters)
		r.Put("/filters", s.handlePutFilters)
		r.Post("/guess", s.handleGuess)
		r.Get("/stats", s.handleStats)
		r.Post("/stats/reset", s.handleResetStats)
	})
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

type roundResponse struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Year       int     `json:"year"`
	Language   string  `json:"language"`
	Rating     float64 `json:"rating"`
	TrailerKey string  `json:"trailer_key"`
	PosterPath string  `json:"poster_path"`
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	round, ok := s.buffer.Next(r.Context())
	if !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(s.retryAfter/time.Second)))
		s.respondError(w, http.StatusServiceUnavailable, errors.New("no round available, try again shortly"))
		return
	}

	s.respondJSON(w, http.StatusOK, roundResponse{
		ID:         round.ID,
		Title:      round.Title,
		Year:       round.Year,
		Language:   round.Language,
		Rating:     round.Rating,
		TrailerKey: round.TrailerKey,
		PosterPath: round.PosterPath,
	})
}

type filtersPayload struct {
	YearFrom int    `json:"year_from"`
	YearTo   int    `json:"year_to"`
	Language string `json:"language"`
}

func (s *Server) handleGetFilters(w http.ResponseWriter, r *http.Request) {
	filters := s.buffer.Filters()
	s.respondJSON(w, http.StatusOK, filtersPayload{
		YearFrom: filters.YearFrom,
		YearTo:   filters.YearTo,
		Language: filters.Language,
	})
}

func (s *Server) handlePutFilters(w http.ResponseWriter, r *http.Request) {
	var payload filtersPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("decode filters: %w", err))
		return
	}

	if payload.YearFrom < 0 || payload.YearTo < 0 {
		s.respondError(w, http.StatusBadRequest, errors.New("years can't be negative"))
		return
	}
	if payload.YearFrom > 0 && payload.YearTo > 0 && payload.YearFrom > payload.YearTo {
		s.respondError(w, http.StatusBadRequest, errors.New("year_from can't be after year_to"))
		return
	}
	if !validLanguage(payload.Language) {
		s.respondError(w, http.StatusBadRequest, errors.New("language must be a two-letter ISO 639-1 tag"))
		return
	}

	s.buffer.SetFilters(tmdb.Filters{
		YearFrom: payload.YearFrom,
		YearTo:   payload.YearTo,
		Language: payload.Language,
	})

	s.respondJSON(w, http.StatusOK, payload)
}

type guessRequest struct {
	Guess  float64 `json:"guess"`
	Actual float64 `json:"actual"`
	Title  string  `json:"title"`
	Year   int     `json:"year"`
}

type guessResponse struct {
	Points  int    `json:"points"`
	Perfect bool   `json:"perfect"`
	Share   string `json:"share"`
}

func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	var req guessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("decode guess: %w", err))
		return
	}

	points := game.Score(req.Guess, req.Actual)
	s.respondJSON(w, http.StatusOK, guessResponse{
		Points:  points,
		Perfect: game.Perfect(req.Guess, req.Actual),
		Share:   game.ShareText(req.Title, req.Year, req.Guess, req.Actual, points),
	})
}

type statsResponse struct {
	Queued          uint64 `json:"queued"`
	ServedImmediate uint64 `json:"served_immediate"`
	ServedAfterWait uint64 `json:"served_after_wait"`
	Timeouts        uint64 `json:"timeouts"`
	InFlightPeak    uint64 `json:"in_flight_peak"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.buffer.Stats()
	s.respondJSON(w, http.StatusOK, statsResponse{
		Queued:          stats.Queued,
		ServedImmediate: stats.ServedImmediate,
		ServedAfterWait: stats.ServedAfterWait,
		Timeouts:        stats.Timeouts,
		InFlightPeak:    stats.InFlightPeak,
	})
}

func (s *Server) handleResetStats(w http.ResponseWriter, r *http.Request) {
	s.buffer.ResetStats()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.respondJSON(w, status, map[string]string{"error": err.Error()})
}

func validLanguage(lang string) bool {
	if lang == "" {
		return true
	}
	if len(lang) != 2 {
		return false
	}
	for _, c := range lang {
		if c < 'a' || c > 'z' {
			return false
		}
	}

	return true
}
