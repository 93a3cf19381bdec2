package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/threatcomb/threatcomb/app/cfg"
	"github.com/threatcomb/threatcomb/app/database"
	"github.com/threatcomb/threatcomb/app/feed"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	feedRepo     database.FeedRepository
	entryRepo    database.EntryRepository
	fetcher      *feed.Fetcher
	deduplicator *feed.Deduplicator
	extractor    *feed.ContentExtractor
	runner       AnalysisRunner
	httpClient   *http.Client
	interval     time.Duration
	workerCount  int
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	taskQueue    chan TaskInterface
}

func NewScheduler(feedRepo database.FeedRepository, entryRepo database.EntryRepository,
	fetcher *feed.Fetcher, deduplicator *feed.Deduplicator, extractor *feed.ContentExtractor,
	runner AnalysisRunner, httpClient *http.Client) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		feedRepo:     feedRepo,
		entryRepo:    entryRepo,
		fetcher:      fetcher,
		deduplicator: deduplicator,
		extractor:    extractor,
		runner:       runner,
		httpClient:   httpClient,
		interval:     time.Duration(cfg.SchedulerInterval) * time.Second,
		workerCount:  cfg.WorkerCount,
		ctx:          ctx,
		cancel:       cancel,
		taskQueue:    make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueFetchTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueFetchTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	// The queue is closed once the scheduler stops; never send after that.
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}

	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// RefreshAllFeeds runs an out-of-band fetch cycle. The periodic ticker
// is left alone; its next tick happens when it would have anyway.
func (s *Scheduler) RefreshAllFeeds() error {
	return s.enqueueFetchTasks()
}

func (s *Scheduler) enqueueFetchTasks() error {
	feeds, err := s.feedRepo.GetFeeds()
	if err != nil {
		slog.Error("Failed to list feeds for scheduling", "error", err)
		return fmt.Errorf("failed to list feeds: %w", err)
	}

	if len(feeds) == 0 {
		slog.Debug("No feeds registered")
		return nil
	}

	slog.Debug("Enqueueing fetch tasks", "count", len(feeds))

	for _, f := range feeds {
		task := NewProcessFeedTask(f, s.fetcher, s.deduplicator, s.extractor,
			s.feedRepo, s.entryRepo, s, s.runner, s.httpClient)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue ProcessFeedTask", "feed", f.URL, "error", err)
		}
	}

	return nil
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "subject", task.GetSubject(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}
