package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reviewsift/sift/internal/core/grade"
	"github.com/reviewsift/sift/internal/logger"
	"github.com/reviewsift/sift/internal/review"
	"github.com/reviewsift/sift/internal/rob"
	"github.com/reviewsift/sift/internal/stats"
	"github.com/reviewsift/sift/internal/store"
)

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type CreateReviewRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

func (s *Server) CreateReview(c *gin.Context) {
	var req CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	r, err := s.Store.CreateReview(c.Request.Context(), req.Title, req.Description)
	if err != nil {
		logger.Error("create review failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create review"})
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (s *Server) GetReview(c *gin.Context) {
	r, err := s.Store.GetReview(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Review not found"})
		return
	}
	if err != nil {
		logger.Error("get review failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load review"})
		return
	}
	c.JSON(http.StatusOK, r)
}

type AddPapersRequest struct {
	ReviewID string             `json:"review_id" binding:"required"`
	Papers   []store.PaperInput `json:"papers" binding:"required"`
}

func (s *Server) AddPapers(c *gin.Context) {
	var req AddPapersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if len(req.Papers) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "No papers provided"})
		return
	}

	papers, err := s.Store.AddPapers(c.Request.Context(), req.ReviewID, req.Papers)
	if err != nil {
		logger.Error("add papers failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store papers"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"papers": papers})
}

type SaveProtocolRequest struct {
	ReviewID         string         `json:"review_id" binding:"required"`
	ResearchQuestion string         `json:"research_question"`
	PICO             map[string]any `json:"pico"`
}

func (s *Server) SaveProtocol(c *gin.Context) {
	var req SaveProtocolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	pv := &store.ProtocolVersion{
		ReviewID:         req.ReviewID,
		ResearchQuestion: req.ResearchQuestion,
		PICO:             req.PICO,
	}
	if err := s.Store.SaveProtocolVersion(c.Request.Context(), pv); err != nil {
		logger.Error("save protocol failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store protocol"})
		return
	}
	c.JSON(http.StatusCreated, pv)
}

type RecordSearchRequest struct {
	ReviewID     string `json:"review_id" binding:"required"`
	Database     string `json:"database" binding:"required"`
	SearchString string `json:"search_string" binding:"required"`
}

func (s *Server) RecordSearch(c *gin.Context) {
	var req RecordSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	sq, err := s.Engine.RecordSearch(c.Request.Context(), req.ReviewID, req.Database, req.SearchString)
	if err != nil {
		logger.Error("record search failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record search"})
		return
	}
	c.JSON(http.StatusCreated, sq)
}

type ScreenBatchRequest struct {
	ReviewID string   `json:"review_id" binding:"required"`
	PaperIDs []string `json:"paper_ids"`
	Criteria string   `json:"criteria"`
}

func (s *Server) ScreenBatch(c *gin.Context) {
	var req ScreenBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if len(req.PaperIDs) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "No paper ids provided"})
		return
	}

	summary, err := s.Engine.ScreenBatch(c.Request.Context(), req.ReviewID, req.PaperIDs, req.Criteria)
	if errors.Is(err, review.ErrNoPapers) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No matching papers found"})
		return
	}
	if err != nil {
		logger.Error("batch screening failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Screening failed"})
		return
	}
	c.JSON(http.StatusCreated, summary)
}

type ScreenFulltextRequest struct {
	ReviewID string `json:"review_id" binding:"required"`
	Criteria string `json:"criteria"`
}

func (s *Server) ScreenFulltext(c *gin.Context) {
	var req ScreenFulltextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	summary, err := s.Engine.ScreenFulltext(c.Request.Context(), req.ReviewID, req.Criteria)
	if errors.Is(err, review.ErrNoPapers) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No papers advanced to full-text review"})
		return
	}
	if err != nil {
		logger.Error("fulltext screening failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Screening failed"})
		return
	}
	c.JSON(http.StatusCreated, summary)
}

type ExtractRequest struct {
	ReviewID string   `json:"review_id"`
	PaperIDs []string `json:"paper_ids"`
	Template string   `json:"extraction_template"`
}

func (s *Server) Extract(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	summary, err := s.Engine.ExtractData(c.Request.Context(), req.ReviewID, req.PaperIDs, req.Template)
	if errors.Is(err, review.ErrNoTarget) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Provide either review_id or explicit paper_ids"})
		return
	}
	if errors.Is(err, review.ErrNoPapers) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No included papers found for data extraction"})
		return
	}
	if err != nil {
		logger.Error("data extraction failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Data extraction failed"})
		return
	}
	c.JSON(http.StatusCreated, summary)
}

type RobAssessRequest struct {
	ReviewID string   `json:"review_id"`
	PaperIDs []string `json:"paper_ids"`
	Tool     string   `json:"tool"`
}

func (s *Server) AssessRob(c *gin.Context) {
	var req RobAssessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Tool == "" {
		req.Tool = rob.ToolRoB2
	}
	if !rob.ValidTool(req.Tool) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "tool must be 'rob2' or 'robins-i'"})
		return
	}

	summary, err := s.Engine.AssessRob(c.Request.Context(), req.ReviewID, req.PaperIDs, req.Tool)
	if errors.Is(err, review.ErrNoTarget) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Provide either review_id or explicit paper_ids"})
		return
	}
	if errors.Is(err, review.ErrNoPapers) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No included papers found for risk of bias assessment"})
		return
	}
	if err != nil {
		logger.Error("risk of bias assessment failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Risk of bias assessment failed"})
		return
	}
	c.JSON(http.StatusCreated, summary)
}

type PoolRequest struct {
	ReviewID string              `json:"review_id"`
	Measure  string              `json:"measure" binding:"required"`
	Studies  []stats.StudyEffect `json:"studies" binding:"required"`
}

func (s *Server) Pool(c *gin.Context) {
	var req PoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	res, err := s.Engine.RunPooling(c.Request.Context(), req.ReviewID,
		stats.PoolRequest{Measure: req.Measure, Studies: req.Studies})
	if err != nil {
		logger.Error("pooling failed", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) PublicationBias(c *gin.Context) {
	var req PoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	res, err := s.Engine.RunPublicationBias(c.Request.Context(), req.ReviewID,
		stats.PoolRequest{Measure: req.Measure, Studies: req.Studies})
	if err != nil {
		logger.Error("publication bias assessment failed", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, res)
}

type GradeRequest struct {
	ReviewID string                           `json:"review_id"`
	Outcomes map[string]grade.OutcomeEvidence `json:"outcomes" binding:"required"`
}

func (s *Server) Grade(c *gin.Context) {
	var req GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if len(req.Outcomes) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "No outcomes provided"})
		return
	}
	// Unknown designs would silently start at the highest tier; reject
	// them here so callers get a loud contract error instead.
	for name, ev := range req.Outcomes {
		if ev.StudyDesign != grade.DesignRCT && ev.StudyDesign != grade.DesignObservational {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": "Outcome '" + name + "' has invalid study_design: must be 'rct' or 'observational'",
			})
			return
		}
	}

	results, err := s.Engine.Grade(c.Request.Context(), req.ReviewID, req.Outcomes)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"outcomes": results})
}

func (s *Server) Prisma(c *gin.Context) {
	report, err := s.Engine.PrismaCheck(c.Request.Context(), c.Param("review_id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Review not found"})
		return
	}
	if err != nil {
		logger.Error("compliance check failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Compliance check failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}
