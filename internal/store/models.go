package store

// Group is a monitored chat room.
type Group struct {
	ID          int64
	Title       string
	Username    string
	MemberCount int
	AddedAt     string
	UpdatedAt   string
}

// Message is one observed chat event. Pointer fields are nullable columns.
type Message struct {
	ID          int64
	GroupID     int64
	SenderID    *int64
	SenderName  string
	Text        *string
	Date        string
	MediaType   *string
	ForwardFrom *string
	ReplyToID   *int64
	GroupTitle  string // joined in by read queries, empty otherwise
}

// TextOrEmpty returns the message body or "".
func (m *Message) TextOrEmpty() string {
	if m.Text == nil {
		return ""
	}
	return *m.Text
}

// Link is one extracted URL occurrence.
type Link struct {
	ID         int64
	URL        string
	Domain     string
	GroupID    int64
	MessageID  int64
	SenderName string
	Context    string
	Date       string
}

// Summary is a generated report. GroupID nil means cross-group.
type Summary struct {
	ID           int64
	GroupID      *int64
	PeriodStart  string
	PeriodEnd    string
	MessageCount int
	Content      string
	Model        string
	CreatedAt    string
}

// Tenant is a platform user identity driving one ingestion worker.
type Tenant struct {
	ID          int64
	Phone       string
	APIID       int    // per-account app credentials; zero falls back to config
	APIHash     string
	SessionName string
	Active      bool
	AddedAt     string
}

// SummaryJob tracks one asynchronous summarization run.
type SummaryJob struct {
	ID           string
	GroupID      *int64
	Hours        int
	Mode         string
	Status       string
	Progress     int
	ProgressText string
	Result       string
	ErrorMsg     string
	CreatedAt    string
	UpdatedAt    string
}

// Job statuses.
const (
	JobRunning = "running"
	JobDone    = "done"
	JobError   = "error"
)
