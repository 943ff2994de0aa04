package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"rental_scrooper/analysis"
	"rental_scrooper/config"
	"rental_scrooper/models"
	"rental_scrooper/storage"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 500
)

// Store is the read side of the run ledger.
type Store interface {
	ListRuns(limit int) ([]models.CrawlRun, error)
	GetRun(id int64) (*models.CrawlRun, error)
	GetLogs(runID int64) ([]models.CrawlLog, error)
	GetSkippedPages(runID int64) ([]int, error)
	GetSiteStats() ([]models.SiteStats, error)
}

// Controller pauses and inspects the crawler.
type Controller interface {
	Pause()
	Resume()
	IsPaused() bool
	Running() []string
}

// Districts reports per-district counts from the listing warehouse.
type Districts interface {
	DistrictCounts(ctx context.Context, siteID string) ([]storage.DistrictCount, error)
}

type Server struct {
	cfg       *config.Config
	store     Store
	ctl       Controller
	districts Districts
	trigger   func(ctx context.Context) error
	baseCtx   context.Context
	router    *mux.Router
	srv       *http.Server
}

// NewServer wires the status routes. trigger starts an on-demand crawl and
// may be nil, which disables POST /control/run.
func NewServer(cfg *config.Config, store Store, ctl Controller, trigger func(ctx context.Context) error) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		ctl:     ctl,
		trigger: trigger,
		baseCtx: context.Background(),
		router:  mux.NewRouter(),
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/runs", s.handleRuns).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{id:[0-9]+}", s.handleRun).Methods(http.MethodGet)
	s.router.HandleFunc("/sites", s.handleSites).Methods(http.MethodGet)
	s.router.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	s.router.HandleFunc("/districts", s.handleDistricts).Methods(http.MethodGet)
	s.router.HandleFunc("/control/{action:pause|resume|run}", s.handleControl).Methods(http.MethodPost)
	return s
}

// SetDistricts enables GET /districts.
func (s *Server) SetDistricts(d Districts) {
	s.districts = d
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background until Shutdown. Triggered crawls inherit ctx.
func (s *Server) Start(ctx context.Context) {
	s.baseCtx = ctx
	s.srv = &http.Server{
		Addr:              s.cfg.API.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("API listening on %s", s.cfg.API.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("API server error: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"paused":  s.ctl != nil && s.ctl.IsPaused(),
		"running": s.running(),
		"sites":   s.cfg.SiteIDs(),
	})
}

func (s *Server) running() []string {
	if s.ctl == nil {
		return nil
	}
	return s.ctl.Running()
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := s.store.ListRuns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []models.CrawlRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

type runDetail struct {
	*models.CrawlRun
	SkippedPages []int             `json:"skipped_pages"`
	Logs         []models.CrawlLog `json:"logs"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := s.store.GetRun(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	detail := runDetail{CrawlRun: run, SkippedPages: []int{}, Logs: []models.CrawlLog{}}
	if pages, err := s.store.GetSkippedPages(id); err == nil && pages != nil {
		detail.SkippedPages = pages
	}
	if logs, err := s.store.GetLogs(id); err == nil && logs != nil {
		detail.Logs = logs
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetSiteStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stats == nil {
		stats = []models.SiteStats{}
	}
	writeJSON(w, http.StatusOK, stats)
}

type groupSummary struct {
	City           string  `json:"city,omitempty"`
	Key            string  `json:"key"`
	Count          int     `json:"count"`
	MeanPrice      float64 `json:"mean_price"`
	MedianPrice    float64 `json:"median_price"`
	MeanPricePerM2 float64 `json:"mean_price_per_sqm"`
}

type datasetSummary struct {
	Rows           int            `json:"rows"`
	Usable         int            `json:"usable"`
	MeanPrice      float64        `json:"mean_price"`
	MedianPrice    float64        `json:"median_price"`
	MeanPricePerM2 float64        `json:"mean_price_per_sqm"`
	MeanArea       float64        `json:"mean_area"`
	Cities         []groupSummary `json:"cities"`
	Layouts        []groupSummary `json:"layouts"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	records, err := analysis.LoadDataset(s.cfg)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	cleaned, cr := analysis.Clean(records, analysis.DefaultCleanOptions())
	report := analysis.Analyze(cleaned, analysis.Salaries(s.cfg))

	writeJSON(w, http.StatusOK, datasetSummary{
		Rows:           cr.Input,
		Usable:         cr.Output,
		MeanPrice:      report.Price.Mean,
		MedianPrice:    report.Price.Median,
		MeanPricePerM2: report.PricePerSqm.Mean,
		MeanArea:       report.Area.Mean,
		Cities:         summarizeGroups(report.ByCity),
		Layouts:        summarizeGroups(report.ByLayout),
	})
}

func (s *Server) handleDistricts(w http.ResponseWriter, r *http.Request) {
	if s.districts == nil {
		writeError(w, http.StatusServiceUnavailable, "listing warehouse not configured")
		return
	}
	site := r.URL.Query().Get("site")
	if site != "" {
		if _, ok := s.cfg.Sites[site]; !ok {
			writeError(w, http.StatusNotFound, "unknown site "+site)
			return
		}
	}
	counts, err := s.districts.DistrictCounts(r.Context(), site)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if counts == nil {
		counts = []storage.DistrictCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

func summarizeGroups(groups []analysis.GroupStats) []groupSummary {
	out := make([]groupSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupSummary{
			City:           g.City,
			Key:            g.Key,
			Count:          g.Count,
			MeanPrice:      g.Price.Mean,
			MedianPrice:    g.Price.Median,
			MeanPricePerM2: g.PricePerSqm.Mean,
		})
	}
	return out
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if s.ctl == nil {
		writeError(w, http.StatusServiceUnavailable, "crawler control unavailable")
		return
	}

	switch mux.Vars(r)["action"] {
	case "pause":
		s.ctl.Pause()
	case "resume":
		s.ctl.Resume()
	case "run":
		if s.trigger == nil {
			writeError(w, http.StatusServiceUnavailable, "on-demand runs disabled")
			return
		}
		if s.ctl.IsPaused() {
			writeError(w, http.StatusConflict, "crawler is paused")
			return
		}
		go func() {
			if err := s.trigger(s.baseCtx); err != nil {
				log.Printf("On-demand run error: %v", err)
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": s.ctl.IsPaused()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
