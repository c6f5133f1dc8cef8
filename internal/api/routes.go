package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"trustbridge/backend/internal/features"
	"trustbridge/backend/internal/model"
	"trustbridge/backend/internal/report"
	"trustbridge/backend/internal/scoring"
	"trustbridge/backend/internal/store"
)

// Machine-readable error codes surfaced next to the error message so
// clients can distinguish the failure classes.
const (
	codeBadRequest   = "bad_request"
	codeUnauthorized = "unauthorized"
	codeForbidden    = "forbidden"
	codeNotFound     = "not_found"
	codeConflict     = "conflict"
	codeValidation   = "validation_error"
	codeDegraded     = "degraded_service"
	codeScoringFault = "scoring_fault"
	codeAuditWrite   = "audit_write_fault"
	codeRenderFault  = "render_fault"
	codeInternal     = "internal_error"
)

// Config defines server dependencies.
type Config struct {
	DBPath         string
	HouseModelPath string
	LoanModelPath  string
	AllowedOrigins []string
	SilentDB       bool
	SessionTTL     time.Duration
}

// Server wires HTTP handlers with persistence, scoring and rendering.
type Server struct {
	db             *store.Database
	cache          *model.Cache
	engine         *scoring.Engine
	renderer       *report.Renderer
	sessions       *SessionStore
	notifier       *ActivityNotifier
	allowedOrigins []string
}

// NewServer constructs the API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path required")
	}
	db, err := store.Open(cfg.DBPath, cfg.SilentDB)
	if err != nil {
		return nil, err
	}

	cache := model.NewCache(map[features.Kind]string{
		features.KindHouse: cfg.HouseModelPath,
		features.KindLoan:  cfg.LoanModelPath,
	})

	return &Server{
		db:             db,
		cache:          cache,
		engine:         scoring.NewEngine(cache),
		renderer:       report.NewRenderer(),
		sessions:       NewSessionStore(cfg.SessionTTL),
		notifier:       NewActivityNotifier(),
		allowedOrigins: cfg.AllowedOrigins,
	}, nil
}

// Close releases the server's persistent resources.
func (s *Server) Close() error {
	return s.db.Close()
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = true
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.GET("/api/healthz", s.handleHealth)
	r.POST("/api/register", s.handleRegister)
	r.POST("/api/login", s.handleLogin)
	r.POST("/api/logout", s.handleLogout)

	authed := r.Group("/api", s.requireAuth)
	{
		authed.POST("/predict/house", s.handlePredictHouse)
		authed.POST("/predict/loan", s.handlePredictLoan)
		authed.GET("/history", s.handleHistory)
		authed.GET("/reports/:id", s.handleReport)
		authed.POST("/calculator", s.handleCalculator)
		authed.GET("/activity/stream", s.handleActivityStream)
	}

	return r, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handlePredictHouse(c *gin.Context) {
	s.predict(c, features.KindHouse)
}

func (s *Server) handlePredictLoan(c *gin.Context) {
	s.predict(c, features.KindLoan)
}

// predict runs the full pipeline: encode, score, annotate, audit. Validation
// and degraded-service failures abort before any side effect; a failed audit
// write withholds the result entirely.
func (s *Server) predict(c *gin.Context, kind features.Kind) {
	identity := currentIdentity(c)

	fields, err := requestFields(c, kind)
	if err != nil {
		s.renderError(c, http.StatusBadRequest, codeBadRequest, err)
		return
	}

	start := time.Now()
	vector, err := features.Build(kind, fields)
	if err != nil {
		var verr *features.ValidationError
		if errors.As(err, &verr) {
			s.renderError(c, http.StatusUnprocessableEntity, codeValidation, verr)
			return
		}
		s.renderError(c, http.StatusBadRequest, codeBadRequest, err)
		return
	}

	result, err := s.engine.Score(vector)
	if err != nil {
		if errors.Is(err, model.ErrNotAvailable) {
			s.renderError(c, http.StatusServiceUnavailable, codeDegraded,
				fmt.Errorf("%s analysis temporarily unavailable", kind))
			return
		}
		logrus.WithError(err).WithField("kind", kind).Error("scoring fault")
		s.renderError(c, http.StatusInternalServerError, codeScoringFault,
			errors.New("analysis engine could not process this request"))
		return
	}

	record := &store.AuditRecord{
		Kind:             string(kind),
		ResultText:       result.DisplayText,
		Confidence:       result.Confidence,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		UserID:           identity.ID,
	}
	record.SetInputs(fields)
	if err := s.db.CreateAudit(record); err != nil {
		logrus.WithError(err).WithField("kind", kind).Error("audit write failed")
		s.renderError(c, http.StatusInternalServerError, codeAuditWrite,
			errors.New("result could not be recorded and was withheld"))
		return
	}

	s.notifier.Broadcast(ActivityEvent{
		Type:       "scoring",
		AuditID:    record.ID,
		Kind:       string(kind),
		ResultText: record.ResultText,
		Confidence: record.Confidence,
		Owner:      identity.DisplayName,
	})

	c.JSON(http.StatusOK, PredictResponse{
		AuditID:           record.ID,
		ReportID:          report.ReportID(record.ID),
		Kind:              string(kind),
		ResultText:        result.DisplayText,
		Confidence:        result.Confidence,
		Factors:           result.Factors,
		FactorsDisclosure: scoring.Disclosure,
		ProcessingTimeMs:  record.ProcessingTimeMs,
	})
}

// requestFields accepts either form values or a JSON object of raw fields.
func requestFields(c *gin.Context, kind features.Kind) (map[string]string, error) {
	if strings.Contains(c.ContentType(), "json") {
		fields := map[string]string{}
		if err := c.ShouldBindJSON(&fields); err != nil {
			return nil, fmt.Errorf("decode request fields: %w", err)
		}
		return fields, nil
	}

	fields := map[string]string{}
	for _, name := range features.FieldOrder(kind) {
		if value, ok := c.GetPostForm(name); ok {
			fields[name] = value
		}
	}
	return fields, nil
}

func (s *Server) handleHistory(c *gin.Context) {
	identity := currentIdentity(c)

	limit := 5
	if value := strings.TrimSpace(c.Query("limit")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			s.renderError(c, http.StatusBadRequest, codeBadRequest, fmt.Errorf("invalid limit: %s", value))
			return
		}
		limit = parsed
	}

	records, err := s.db.ListByOwner(identity.ID, limit)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, codeInternal, err)
		return
	}

	items := make([]AuditDTO, 0, len(records))
	for _, record := range records {
		items = append(items, AuditFromModel(record, report.ReportID(record.ID)))
	}
	c.JSON(http.StatusOK, HistoryResponse{Items: items})
}

func (s *Server) handleReport(c *gin.Context) {
	identity := currentIdentity(c)

	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, codeBadRequest, err)
		return
	}

	record, err := s.db.GetAudit(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.renderError(c, http.StatusNotFound, codeNotFound, fmt.Errorf("record %d not found", id))
		} else {
			s.renderError(c, http.StatusInternalServerError, codeInternal, err)
		}
		return
	}
	if record.UserID != identity.ID {
		s.renderError(c, http.StatusForbidden, codeForbidden, errors.New("record belongs to another client"))
		return
	}

	document, err := s.renderer.Render(*record, identity.DisplayName)
	if err != nil {
		logrus.WithError(err).WithField("record", record.ID).Error("report render failed")
		s.renderError(c, http.StatusInternalServerError, codeRenderFault,
			errors.New("report could not be generated for this record"))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=TrustBridge_Report_%d.pdf", record.ID))
	c.Data(http.StatusOK, "application/pdf", document)
}

// handleCalculator implements the stateless affordability estimate: EMI
// capped at 45% of disposable income, loan principal from the annuity
// present-value formula.
func (s *Server) handleCalculator(c *gin.Context) {
	var req CalculatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, codeBadRequest, err)
		return
	}
	if req.TenureYears <= 0 {
		s.renderError(c, http.StatusBadRequest, codeBadRequest, errors.New("tenure must be at least one year"))
		return
	}

	monthlyRate := req.Rate / 100 / 12
	months := float64(req.TenureYears * 12)
	disposable := req.Income - req.Expenses
	maxEMI := disposable * 0.45

	var suggested float64
	if monthlyRate > 0 {
		suggested = maxEMI * ((1 - math.Pow(1+monthlyRate, -months)) / monthlyRate)
	} else {
		suggested = maxEMI * months
	}

	c.JSON(http.StatusOK, CalculatorResponse{
		MaxEMI:        scoring.FormatCurrency(maxEMI),
		SuggestedLoan: scoring.FormatCurrency(suggested),
	})
}

func (s *Server) handleActivityStream(c *gin.Context) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}

	client := s.notifier.Register(conn)
	logrus.WithField("remote", conn.RemoteAddr().String()).Info("activity websocket connected")
	defer s.notifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).Warn("activity websocket unexpected close")
			} else {
				logrus.WithField("remote", conn.RemoteAddr().String()).Info("activity websocket closed")
			}
			break
		}
	}
}

func (s *Server) renderError(c *gin.Context, status int, code string, err error) {
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func (s *Server) abortError(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "code": code})
}

func parseUintParam(value string) (uint, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errors.New("identifier is required")
	}
	parsed, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier: %w", err)
	}
	if parsed == 0 {
		return 0, errors.New("identifier must be greater than zero")
	}
	return uint(parsed), nil
}
