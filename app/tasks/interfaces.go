package tasks

// TaskSchedulerInterface is the surface the API layer uses to drive
// background work: the periodic fetch loop plus out-of-band refreshes.
// Example usage:
//
//	scheduler := NewScheduler(feedRepo, entryRepo, fetcher, deduplicator, extractor, orchestrator, httpClient)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.RefreshAllFeeds()
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error

	// RefreshAllFeeds runs a fetch cycle for every stored feed without
	// disturbing the timer's next scheduled tick.
	RefreshAllFeeds() error
}
