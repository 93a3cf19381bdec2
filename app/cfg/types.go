package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	Port              string
	APIAccessKey      string
	WorkerCount       int
	SchedulerInterval int
	FetchTimeout      int
	AutoAnalyze       bool
	ExtractContent    bool

	// Model configuration
	OllamaURL   string
	OllamaModel string
	LLMTimeout  int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
