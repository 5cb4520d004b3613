// Package server exposes the review pipeline over HTTP.
package server

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/reviewsift/sift/internal/config"
	"github.com/reviewsift/sift/internal/extract"
	"github.com/reviewsift/sift/internal/llm"
	"github.com/reviewsift/sift/internal/rater"
	"github.com/reviewsift/sift/internal/review"
	"github.com/reviewsift/sift/internal/rob"
	"github.com/reviewsift/sift/internal/search"
	"github.com/reviewsift/sift/internal/stats"
	"github.com/reviewsift/sift/internal/store"
)

type Server struct {
	Store  store.Store
	Engine *review.Engine
}

// NewServer wires the full stack from config: SQLite store, LLM-backed
// dual raters, PubMed yield estimator, and the stats worker client.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	st, err := store.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	llmClient, err := llm.NewClient(ctx, llm.Options{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("initialize llm client: %w", err)
	}

	screener := rater.New(llmClient, rater.Prompts{
		TitleAbstractRater1: cfg.Screening.Prompts.Rater1TitleAbstract,
		TitleAbstractRater2: cfg.Screening.Prompts.Rater2TitleAbstract,
		FulltextRater1:      cfg.Screening.Prompts.Rater1Fulltext,
		FulltextRater2:      cfg.Screening.Prompts.Rater2Fulltext,
	}, cfg.Screening.Concurrency)

	var estimator review.YieldEstimator = search.NewPubMedClient(cfg.NCBI.APIKey)

	var statsRunner review.StatsRunner
	if cfg.Stats.BaseURL != "" {
		statsRunner = stats.NewClient(cfg.Stats.BaseURL)
	}

	eng := review.NewEngine(review.Deps{
		Store:     st,
		Screener:  screener,
		Search:    estimator,
		Stats:     statsRunner,
		Extractor: extract.New(llmClient, cfg.Screening.Concurrency),
		Rob:       rob.New(llmClient, cfg.Screening.Concurrency),
		Model:     cfg.LLM.Model,
	})
	return &Server{Store: st, Engine: eng}, nil
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/health", s.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/reviews", s.CreateReview)
		v1.GET("/reviews/:id", s.GetReview)
		v1.POST("/papers", s.AddPapers)
		v1.POST("/protocol", s.SaveProtocol)
		v1.POST("/search", s.RecordSearch)
		v1.POST("/screen/batch", s.ScreenBatch)
		v1.POST("/fulltext/screen", s.ScreenFulltext)
		v1.POST("/extract", s.Extract)
		v1.POST("/rob/assess", s.AssessRob)
		v1.POST("/pool", s.Pool)
		v1.POST("/pubias", s.PublicationBias)
		v1.POST("/grade", s.Grade)
		v1.GET("/prisma/:review_id", s.Prisma)
	}

	return r
}

func (s *Server) Close() error {
	return s.Store.Close()
}
