package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/threatcomb/threatcomb/app/analysis"
	"github.com/threatcomb/threatcomb/app/cfg"
	"github.com/threatcomb/threatcomb/app/database"
	"github.com/threatcomb/threatcomb/app/llm"
	"github.com/threatcomb/threatcomb/app/tasks"
)

const defaultEntryLimit = 50

func NewHandler(feedRepo database.FeedRepository, entryRepo database.EntryRepository,
	analysisRepo database.AnalysisRepository, orchestrator AnalysisRunnerInterface,
	models ModelListerInterface, scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		feedRepo:     feedRepo,
		entryRepo:    entryRepo,
		analysisRepo: analysisRepo,
		orchestrator: orchestrator,
		models:       models,
		scheduler:    scheduler,
	}
}

func (h *Handler) GetDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "ThreatComb",
		"version": cfg.Get().Version,
		"endpoints": []string{
			"/health",
			"/stats",
			"/api/feeds",
			"/api/feeds/refresh",
			"/api/feeds/:id/entries",
			"/api/entries/:id/read",
			"/api/entries/:id/analyze",
			"/api/entries/:id/analysis",
			"/api/entries/:id/analysis/security",
			"/api/models",
		},
	})
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if feedCount, err := h.feedRepo.GetFeedCount(); err == nil {
		health["feeds"] = feedCount
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	feedCount, err := h.feedRepo.GetFeedCount()
	if err != nil {
		slog.Error("Database error", "operation", "count_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	entryCount, err := h.entryRepo.GetTotalEntryCount()
	if err != nil {
		slog.Error("Database error", "operation", "count_entries", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds":   feedCount,
		"entries": entryCount,
		"model":   h.models.Model(),
		"version": cfg.Get().Version,
	})
}

func (h *Handler) APIListFeeds(c *gin.Context) {
	feeds, err := h.feedRepo.GetFeeds()
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	items := make([]map[string]interface{}, 0, len(feeds))
	for _, f := range feeds {
		items = append(items, feedResponse(f))
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"feeds": items,
		"total": len(items),
	})
}

func (h *Handler) APIAddFeed(c *gin.Context) {
	var req addFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	feed, err := h.feedRepo.UpsertFeed(req.URL, req.Title, req.Category, req.IsSecurityFeed)
	if err != nil {
		slog.Error("Database error", "operation", "upsert_feed", "url", req.URL, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	slog.Info("Feed registered", "feed_id", feed.ID, "url", feed.URL, "security", feed.IsSecurityFeed)
	c.JSON(http.StatusCreated, feedResponse(*feed))
}

func (h *Handler) APIRefreshFeeds(c *gin.Context) {
	if err := h.scheduler.RefreshAllFeeds(); err != nil {
		slog.Error("Failed to schedule refresh", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to schedule refresh"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Feed refresh scheduled",
	})
}

func (h *Handler) APIListEntries(c *gin.Context) {
	feedID := c.Param("id")

	feed, err := h.feedRepo.GetFeed(feedID)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "feed_id", feedID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if feed == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}

	limit := defaultEntryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		limit = parsed
	}

	entries, err := h.entryRepo.GetEntriesByFeed(feedID, limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_entries", "feed_id", feedID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	items := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		items = append(items, entryResponse(e))
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"feed": gin.H{
			"id":    feed.ID,
			"title": feed.Title,
			"url":   feed.URL,
		},
		"entries": items,
		"total":   len(items),
	})
}

func (h *Handler) APIMarkEntryRead(c *gin.Context) {
	entryID := c.Param("id")

	// Body is optional, an empty body marks the entry as read.
	req := markReadRequest{}
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}

	isRead := true
	if req.IsRead != nil {
		isRead = *req.IsRead
	}

	entry, err := h.entryRepo.GetEntry(entryID)
	if err != nil {
		slog.Error("Database error", "operation", "get_entry", "entry_id", entryID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return
	}

	if err := h.entryRepo.MarkRead(entryID, isRead); err != nil {
		slog.Error("Database error", "operation", "mark_read", "entry_id", entryID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry_id": entryID, "is_read": isRead})
}

func (h *Handler) APITriggerAnalysis(c *gin.Context) {
	entryID := c.Param("id")

	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	analysisType := analysis.Type(req.Type)
	if !analysisType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown analysis type", "type": req.Type})
		return
	}

	result, err := h.orchestrator.Run(c.Request.Context(), entryID, analysisType)
	if err != nil {
		h.renderAnalysisError(c, entryID, analysisType, err)
		return
	}

	c.JSON(http.StatusOK, analysisResultResponse(result))
}

func (h *Handler) renderAnalysisError(c *gin.Context, entryID string, analysisType analysis.Type, err error) {
	switch {
	case errors.Is(err, analysis.ErrEntryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
	case errors.Is(err, analysis.ErrInapplicableAnalysis):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Security analysis requires a security feed"})
	case errors.Is(err, llm.ErrModelUnavailable):
		slog.Error("Model unavailable", "entry_id", entryID, "type", analysisType, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Model unavailable", "details": err.Error()})
	case errors.Is(err, analysis.ErrMalformedRuleOutput), errors.Is(err, analysis.ErrUnusableOutput):
		slog.Warn("Unusable model output", "entry_id", entryID, "type", analysisType, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Unusable model output", "details": err.Error()})
	default:
		slog.Error("Analysis error", "entry_id", entryID, "type", analysisType, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Analysis error"})
	}
}

func (h *Handler) APIGetAnalysis(c *gin.Context) {
	entryID := c.Param("id")

	entry, err := h.entryRepo.GetEntry(entryID)
	if err != nil {
		slog.Error("Database error", "operation", "get_entry", "entry_id", entryID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return
	}

	resp := map[string]interface{}{
		"entry_id": entryID,
		"title":    entry.Title,
	}

	summary, err := h.analysisRepo.GetSummary(entryID)
	if err != nil {
		slog.Error("Database error", "operation", "get_summary", "entry_id", entryID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if summary != nil {
		resp["summary"] = gin.H{
			"content":      summary.Content,
			"generated_at": summary.GeneratedAt,
		}
	}

	detailed, err := h.analysisRepo.GetDetailedAnalysis(entryID)
	if err != nil {
		slog.Error("Database error", "operation", "get_detailed_analysis", "entry_id", entryID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if detailed != nil {
		resp["detailed"] = detailedResponse(detailed)
	}

	security, err := h.analysisRepo.GetSecurityAnalysis(entryID)
	if err != nil {
		slog.Error("Database error", "operation", "get_security_analysis", "entry_id", entryID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if security != nil {
		resp["security"] = securityResponse(security)
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) APIGetSecurityAnalysis(c *gin.Context) {
	entryID := c.Param("id")

	entry, err := h.entryRepo.GetEntry(entryID)
	if err != nil {
		slog.Error("Database error", "operation", "get_entry", "entry_id", entryID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return
	}

	security, err := h.analysisRepo.GetSecurityAnalysis(entryID)
	if err != nil {
		slog.Error("Database error", "operation", "get_security_analysis", "entry_id", entryID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if security == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No security analysis for entry"})
		return
	}

	c.JSON(http.StatusOK, securityResponse(security))
}

func (h *Handler) APIListModels(c *gin.Context) {
	models, err := h.models.ListModels(c.Request.Context())
	if err != nil {
		slog.Error("Model host error", "operation", "list_models", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Model host unavailable", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"models":  models,
		"current": h.models.Model(),
	})
}

func feedResponse(f database.Feed) map[string]interface{} {
	resp := map[string]interface{}{
		"id":               f.ID,
		"url":              f.URL,
		"title":            f.Title,
		"category":         f.Category,
		"is_security_feed": f.IsSecurityFeed,
		"created_at":       f.CreatedAt,
	}
	if f.LastUpdatedAt != nil {
		resp["last_updated_at"] = f.LastUpdatedAt
	}
	return resp
}

func entryResponse(e database.Entry) map[string]interface{} {
	resp := map[string]interface{}{
		"id":      e.ID,
		"feed_id": e.FeedID,
		"guid":    e.GUID,
		"title":   e.Title,
		"link":    e.Link,
		"is_read": e.IsRead,
	}
	if e.PublishedAt != nil {
		resp["published_at"] = e.PublishedAt
	}
	return resp
}

func detailedResponse(d *database.DetailedAnalysis) gin.H {
	return gin.H{
		"key_points":        d.KeyPoints,
		"technical_details": d.TechnicalDetails,
		"impact_assessment": d.ImpactAssessment,
		"related_concepts":  d.RelatedConcepts,
		"recommendations":   d.Recommendations,
		"generated_at":      d.GeneratedAt,
	}
}

func securityResponse(s *database.SecurityAnalysis) gin.H {
	iocs := make([]gin.H, 0, len(s.IOCs))
	for _, ioc := range s.IOCs {
		iocs = append(iocs, gin.H{"type": ioc.Type, "value": ioc.Value, "context": ioc.Context})
	}

	resp := gin.H{
		"entry_id":     s.EntryID,
		"iocs":         iocs,
		"generated_at": s.GeneratedAt,
	}
	if s.SigmaRule != nil {
		resp["sigma_rule"] = gin.H{
			"title":       s.SigmaRule.Title,
			"description": s.SigmaRule.Description,
			"status":      s.SigmaRule.Status,
			"level":       s.SigmaRule.Level,
			"detection":   s.SigmaRule.Detection,
			"raw":         s.SigmaRule.Raw,
		}
	}
	return resp
}

func analysisResultResponse(r *analysis.Result) gin.H {
	resp := gin.H{"entry_id": r.EntryID, "type": r.Type}

	switch r.Type {
	case analysis.TypeSummarize:
		resp["summary"] = r.Summary
	case analysis.TypeDetailed:
		if r.Detailed != nil {
			resp["detailed"] = gin.H{
				"key_points":        r.Detailed.KeyPoints,
				"technical_details": r.Detailed.TechnicalDetails,
				"impact_assessment": r.Detailed.ImpactAssessment,
				"related_concepts":  r.Detailed.RelatedConcepts,
				"recommendations":   r.Detailed.Recommendations,
				"complete":          r.Detailed.Complete(),
			}
		}
	case analysis.TypeSecurity:
		if r.Security != nil {
			iocs := make([]gin.H, 0, len(r.Security.IOCs))
			for _, ioc := range r.Security.IOCs {
				iocs = append(iocs, gin.H{"type": ioc.Type, "value": ioc.Value})
			}
			resp["iocs"] = iocs
			resp["has_sigma_rule"] = r.Security.Rule != nil
		}
	}

	return resp
}
