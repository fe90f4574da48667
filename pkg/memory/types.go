package memory

import "time"

// Kind classifies a memory record. Notable kinds mark moments worth keeping
// regardless of emotional intensity.
type Kind string

const (
	KindAchievement  Kind = "achievement"
	KindMilestone    Kind = "milestone"
	KindFirstTime    Kind = "first_time"
	KindDramatic     Kind = "dramatic"
	KindConversation Kind = "conversation"
	KindEvent        Kind = "event"
	KindObservation  Kind = "observation"
)

// IsValid reports whether k is a member of the closed memory-kind set.
func (k Kind) IsValid() bool {
	switch k {
	case KindAchievement, KindMilestone, KindFirstTime, KindDramatic,
		KindConversation, KindEvent, KindObservation:
		return true
	}
	return false
}

// Notable reports whether k alone justifies creating a memory, independent
// of emotion intensity.
func (k Kind) Notable() bool {
	switch k {
	case KindAchievement, KindMilestone, KindFirstTime, KindDramatic:
		return true
	}
	return false
}

// MaxContentBytes caps the Content field of a [Record].
const MaxContentBytes = 512

// Record is one player memory.
//
// Lifecycle: created on append, mutated only by importance decay or an
// explicit importance override, deleted only by cleanup.
type Record struct {
	// ID is a UUID assigned at append time.
	ID string

	// Tenant is the owning tenant id.
	Tenant string

	// Player is the player id the memory belongs to.
	Player string

	// Kind classifies the memory.
	Kind Kind

	// Content is a short textual description (≤ [MaxContentBytes] bytes).
	Content string

	// Emotion is the emotion detected for the originating event, or "".
	Emotion string

	// Importance is the retention score in [0, 1]. Decay lowers it over
	// time but never below InitialImportance × the configured floor.
	Importance float64

	// InitialImportance is the score computed at append time. It anchors
	// the decay floor.
	InitialImportance float64

	// Context carries a snapshot of the well-known event keys at append time.
	Context map[string]any

	// Embedding is the vector representation of Content. Nil while the
	// embedding is pending.
	Embedding []float32

	// EmbeddingPending marks records whose embedding call failed at append
	// and is awaiting the background retrier.
	EmbeddingPending bool

	// CreatedAt is when the record was appended.
	CreatedAt time.Time
}

// Scored pairs a retrieved record with its retrieval score. For semantic
// search the score is cosine similarity (higher is more similar); for the
// hybrid context ranking it is the combined importance/recency score.
type Scored struct {
	Record Record
	Score  float64
}
