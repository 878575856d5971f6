package model

// ChangeOp is the kind of committed store mutation.
type ChangeOp string

const (
	// ChangeInsert is a newly inserted message.
	ChangeInsert ChangeOp = "insert"

	// ChangeUpdate is a status update of an existing message.
	ChangeUpdate ChangeOp = "update"

	// ChangeDelete is a removed message.
	ChangeDelete ChangeOp = "delete"
)

// Change is a single committed mutation reported by a change feed.
//
// Document holds the post-change message when the feed can provide it. Feeds
// that only carry ids (for example Postgres NOTIFY for oversized rows) leave
// it nil and the watcher looks the message up. Delete changes never need a
// document.
type Change struct {
	Op        ChangeOp `json:"op"`
	MessageID string   `json:"id"`
	Document  *Message `json:"document,omitempty"`
}

// IngestionReport summarizes one ingestion run.
type IngestionReport struct {
	Inserted         int `json:"inserted"`
	SkippedDuplicate int `json:"skippedDuplicate"`
	StatusUpdated    int `json:"statusUpdated"`
	StatusNotFound   int `json:"statusNotFound"`
	Malformed        int `json:"malformed"`
	Failed           int `json:"failed"`
}

// Add accumulates other into r.
func (r *IngestionReport) Add(other IngestionReport) {
	r.Inserted += other.Inserted
	r.SkippedDuplicate += other.SkippedDuplicate
	r.StatusUpdated += other.StatusUpdated
	r.StatusNotFound += other.StatusNotFound
	r.Malformed += other.Malformed
	r.Failed += other.Failed
}
