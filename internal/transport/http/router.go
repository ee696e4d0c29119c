package arbiterhttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"arbiter/internal/arbitration"
	"arbiter/internal/gateway/provider"
	"arbiter/internal/logger"
	"arbiter/internal/orchestrator"
	"arbiter/internal/store/runlog"

	"github.com/gin-gonic/gin"
)

// OrchestrateService 供 Router 调用的编排入口。
type OrchestrateService interface {
	Orchestrate(ctx context.Context, query string) (orchestrator.Result, error)
	OrchestrateWithThreshold(ctx context.Context, query string, confidenceThreshold float64) (orchestrator.Result, error)
}

// RunReader 供 Router 查询运行日志，未配置存储时可为 nil。
type RunReader interface {
	ListRuns(ctx context.Context, q runlog.RunQuery) ([]runlog.RunRecord, error)
	GetRun(ctx context.Context, traceID string) (runlog.RunRecord, error)
}

// Router 暴露编排与运行日志查询接口。
type Router struct {
	Service OrchestrateService
	Runs    RunReader
}

// NewRouter 构造 API router。
func NewRouter(service OrchestrateService, runs RunReader) *Router {
	return &Router{Service: service, Runs: runs}
}

// Register 将 /api 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/orchestrate", r.handleOrchestrate)
	group.GET("/runs", r.handleListRuns)
	group.GET("/runs/:trace_id", r.handleGetRun)
}

type orchestrateRequest struct {
	Query string `json:"query"`
	// 可选的单次请求复核阈值，缺省使用配置默认值。
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
}

func (r *Router) handleOrchestrate(c *gin.Context) {
	var req orchestrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Errorf("[api] orchestrate bind failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query 不能为空"})
		return
	}
	start := time.Now()
	var (
		res orchestrator.Result
		err error
	)
	if req.ConfidenceThreshold != nil {
		threshold := *req.ConfidenceThreshold
		if threshold < 0 || threshold > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "confidence_threshold 必须在 [0,1] 内"})
			return
		}
		res, err = r.Service.OrchestrateWithThreshold(c.Request.Context(), req.Query, threshold)
	} else {
		res, err = r.Service.Orchestrate(c.Request.Context(), req.Query)
	}
	if err != nil {
		switch {
		case errors.Is(err, arbitration.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, provider.ErrUnavailable):
			logger.Errorf("[api] orchestrate upstream failed ip=%s err=%v", c.ClientIP(), err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		default:
			logger.Errorf("[api] orchestrate failed ip=%s err=%v", c.ClientIP(), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	logger.Infof("[api] orchestrate ip=%s trace=%s decision=%s degraded=%v dur=%s",
		c.ClientIP(), res.TraceID, res.Provenance.ArbitrationDecision, res.Provenance.Degraded, time.Since(start))
	c.JSON(http.StatusOK, res)
}

func (r *Router) handleListRuns(c *gin.Context) {
	if r.Runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "运行日志未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	query := runlog.RunQuery{
		Limit:    limit,
		Offset:   offset,
		Decision: c.Query("decision"),
	}
	if raw := strings.TrimSpace(c.Query("degraded")); raw != "" {
		degraded := raw == "1" || strings.EqualFold(raw, "true")
		query.Degraded = &degraded
	}
	recs, err := r.Runs.ListRuns(c.Request.Context(), query)
	if err != nil {
		logger.Errorf("[api] runs list failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":   recs,
		"limit":  limit,
		"offset": offset,
	})
}

func (r *Router) handleGetRun(c *gin.Context) {
	if r.Runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "运行日志未启用"})
		return
	}
	traceID := strings.TrimSpace(c.Param("trace_id"))
	if traceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trace_id 必填"})
		return
	}
	rec, err := r.Runs.GetRun(c.Request.Context(), traceID)
	if err != nil {
		if errors.Is(err, runlog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		logger.Errorf("[api] run detail failed ip=%s trace=%s err=%v", c.ClientIP(), traceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": rec})
}
