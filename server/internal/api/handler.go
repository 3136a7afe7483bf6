package api

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/sensorcal/sensorcal/server/internal/alerts"
	"github.com/sensorcal/sensorcal/server/internal/auth"
	"github.com/sensorcal/sensorcal/server/internal/config"
	"github.com/sensorcal/sensorcal/server/internal/metrics"
	"github.com/sensorcal/sensorcal/server/internal/runner"
	"github.com/sensorcal/sensorcal/server/internal/store"
)

// DefaultHistoryLimit is used when GET /api/v1/history carries no limit.
const DefaultHistoryLimit = 200

// Deps are the collaborators the handler serves from. Alerts, Metrics and
// Stream may be nil; their routes then return empty results or 404.
type Deps struct {
	Store   store.Store
	Runner  *runner.Runner
	Alerts  *alerts.Engine
	Metrics http.Handler
	Stream  http.Handler

	Auth           config.AuthConfig
	UploadMaxBytes int64
	ReportsDir     string
}

// Handler serves every sensorcal HTTP route.
type Handler struct {
	d Deps
}

// New builds the gin engine with all routes registered.
func New(d Deps) *gin.Engine {
	if d.UploadMaxBytes <= 0 {
		d.UploadMaxBytes = config.DefaultUploadMaxBytes
	}
	h := &Handler{d: d}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", d.Auth.EffectiveHeader()},
		ExposeHeaders:   []string{"Content-Length", "Content-Disposition"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/health", h.health)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}
	if d.Stream != nil {
		r.GET("/ws/stream", gin.WrapH(d.Stream))
	}

	v1 := r.Group("/api/v1")
	v1.Use(auth.APIKey(d.Auth.Mode, d.Auth.EffectiveHeader(), d.Auth.Key()))
	{
		v1.POST("/upload", h.upload)
		v1.POST("/readings", h.readings)
		v1.GET("/history", h.history)
		v1.GET("/status", h.status)
		v1.GET("/runs/:id", h.run)
		v1.GET("/alerts", h.alerts)
		v1.GET("/reports/:name", h.report)
	}
	return r
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// upload handles POST /api/v1/upload: a multipart CSV in the "file" field.
func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.d.UploadMaxBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonErr(c, http.StatusRequestEntityTooLarge, "upload exceeds "+strconv.FormatInt(h.d.UploadMaxBytes, 10)+" bytes")
			return
		}
		jsonErr(c, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		jsonErr(c, http.StatusBadRequest, "open upload: "+err.Error())
		return
	}
	defer f.Close()

	res, err := h.d.Runner.RunCSV(c.Request.Context(), f)
	if err != nil {
		h.runFailed(c, err)
		return
	}
	h.respond(c, res)
}

// readings handles POST /api/v1/readings: a JSON array of reading objects.
func (h *Handler) readings(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.d.UploadMaxBytes)
	res, err := h.d.Runner.RunJSON(c.Request.Context(), body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonErr(c, http.StatusRequestEntityTooLarge, "body exceeds "+strconv.FormatInt(h.d.UploadMaxBytes, 10)+" bytes")
			return
		}
		h.runFailed(c, err)
		return
	}
	h.respond(c, res)
}

func (h *Handler) respond(c *gin.Context, res *runner.Result) {
	c.JSON(http.StatusOK, RunResponse{Result: res, Downloads: downloads(res.Reports.Paths())})
}

// runFailed maps a run error to its status code: rejected input is 422,
// anything else 500.
func (h *Handler) runFailed(c *gin.Context, err error) {
	kind := runner.Kind(err)
	if kind == metrics.RejectInternal {
		slog.Error("api: run failed", "err", err)
		jsonErr(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Kind: kind})
}

// history handles GET /api/v1/history?limit=N.
func (h *Handler) history(c *gin.Context) {
	limit := DefaultHistoryLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			jsonErr(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	rows, err := h.d.Store.History(c.Request.Context(), limit)
	if err != nil {
		slog.Error("api: history", "err", err)
		jsonErr(c, http.StatusInternalServerError, "history unavailable")
		return
	}
	if rows == nil {
		rows = []store.Row{}
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handler) status(c *gin.Context) {
	var src AlertSource
	if h.d.Alerts != nil {
		src = h.d.Alerts
	}
	resp, err := BuildStatus(c.Request.Context(), h.d.Store, src)
	if err != nil {
		slog.Error("api: status", "err", err)
		jsonErr(c, http.StatusInternalServerError, "status unavailable")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// run handles GET /api/v1/runs/:id.
func (h *Handler) run(c *gin.Context) {
	id := c.Param("id")
	rows, err := h.d.Store.Run(c.Request.Context(), id)
	if err != nil {
		slog.Error("api: run", "run_id", id, "err", err)
		jsonErr(c, http.StatusInternalServerError, "run unavailable")
		return
	}
	if len(rows) == 0 {
		jsonErr(c, http.StatusNotFound, "run not found")
		return
	}
	c.JSON(http.StatusOK, RunRowsResponse{
		RunID:       id,
		Rows:        rows,
		Diagnostics: computeDiagnostics(readings(rows)),
	})
}

func (h *Handler) alerts(c *gin.Context) {
	if h.d.Alerts == nil {
		c.JSON(http.StatusOK, []alerts.Alert{})
		return
	}
	c.JSON(http.StatusOK, h.d.Alerts.Active())
}

// report handles GET /api/v1/reports/:name. Only plain file names inside
// the reports directory are served.
func (h *Handler) report(c *gin.Context) {
	name := c.Param("name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		jsonErr(c, http.StatusBadRequest, "invalid report name")
		return
	}
	path := filepath.Join(h.d.ReportsDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		jsonErr(c, http.StatusNotFound, "file not found")
		return
	}
	c.FileAttachment(path, name)
}

// --- helpers ----------------------------------------------------------------

func jsonErr(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, errorResponse{Error: msg})
}

// downloads maps report kinds to their download URLs.
func downloads(paths []string) map[string]string {
	if len(paths) == 0 {
		return nil
	}
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		out[reportKind(name)] = "/api/v1/reports/" + name
	}
	return out
}

func reportKind(name string) string {
	switch {
	case strings.HasSuffix(name, "_drift.png"):
		return "drift_chart"
	case strings.HasSuffix(name, "_rul.png"):
		return "rul_health_chart"
	default:
		return strings.TrimPrefix(filepath.Ext(name), ".")
	}
}

// requestLogger logs one line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("api: request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
