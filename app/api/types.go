package api

import (
	"context"

	"github.com/threatcomb/threatcomb/app/analysis"
	"github.com/threatcomb/threatcomb/app/database"
	"github.com/threatcomb/threatcomb/app/tasks"
)

type AnalysisRunnerInterface interface {
	Run(ctx context.Context, entryID string, analysisType analysis.Type) (*analysis.Result, error)
}

var _ AnalysisRunnerInterface = (*analysis.Orchestrator)(nil)

type ModelListerInterface interface {
	ListModels(ctx context.Context) ([]string, error)
	Model() string
}

type Handler struct {
	feedRepo     database.FeedRepository
	entryRepo    database.EntryRepository
	analysisRepo database.AnalysisRepository
	orchestrator AnalysisRunnerInterface
	models       ModelListerInterface
	scheduler    tasks.TaskSchedulerInterface
}

type addFeedRequest struct {
	URL            string `json:"url" binding:"required"`
	Title          string `json:"title"`
	Category       string `json:"category"`
	IsSecurityFeed bool   `json:"is_security_feed"`
}

type analyzeRequest struct {
	Type string `json:"type" binding:"required"`
}

type markReadRequest struct {
	IsRead *bool `json:"is_read"`
}
