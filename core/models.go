// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// ID identifies a knowledge item within its source partition.
// Knowledge item IDs come from per-kind database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// SourceKind identifies one of the knowledge sources a query is answered from.
type SourceKind int

const (
	// SourceDocument is long-form support documentation.
	SourceDocument SourceKind = iota + 1
	// SourceFAQ is a question/answer pair.
	SourceFAQ
	// SourceTicket is a historical support ticket.
	SourceTicket
)

// AllSourceKinds returns every source kind in canonical order.
func AllSourceKinds() []SourceKind {
	return []SourceKind{SourceDocument, SourceFAQ, SourceTicket}
}

func (k SourceKind) String() string {
	switch k {
	case SourceDocument:
		return "document"
	case SourceFAQ:
		return "faq"
	case SourceTicket:
		return "ticket"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// Short returns the compact tag used in source references, e.g. "doc".
func (k SourceKind) Short() string {
	switch k {
	case SourceDocument:
		return "doc"
	case SourceFAQ:
		return "faq"
	case SourceTicket:
		return "ticket"
	default:
		return "unknown"
	}
}

// ParseSourceKind parses either the long or the short name of a source kind.
func ParseSourceKind(s string) (SourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "document", "documents", "doc":
		return SourceDocument, nil
	case "faq", "faqs":
		return SourceFAQ, nil
	case "ticket", "tickets":
		return SourceTicket, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSourceKind, s)
}

// Ticket status and priority values.
const (
	TicketStatusOpen       = "open"
	TicketStatusInProgress = "in_progress"
	TicketStatusResolved   = "resolved"
	TicketStatusClosed     = "closed"

	TicketPriorityLow    = "low"
	TicketPriorityMedium = "medium"
	TicketPriorityHigh   = "high"
	TicketPriorityUrgent = "urgent"
)

// KnowledgeItem is a searchable unit of support knowledge: a document, an FAQ
// or a ticket. Title and Body hold title/content, question/answer or
// subject/description depending on Kind.
type KnowledgeItem struct {
	Id           ID
	Kind         SourceKind `validate:"required,min=1,max=3"`
	ContentId    ID         // Hash of kind and embedding text, used to skip duplicate ingests
	Title        string     `validate:"required"`
	Body         string     `validate:"required"`
	Category     string
	Tags         []string
	Status       string `validate:"omitempty,oneof=open in_progress resolved closed"`
	Priority     string `validate:"omitempty,oneof=low medium high urgent"`
	Vector       []float32 // Embedding vector (populated by ingestion)
	Active       bool
	ViewCount    int
	HelpfulCount int
	InsertedAt   time.Time
	UpdatedAt    time.Time
}

// EmbeddingText returns the text the item is embedded from.
func (it *KnowledgeItem) EmbeddingText() string {
	return it.Title + " " + it.Body
}

// ContentHash returns the content ID for the item's kind and embedding text.
// Identical content of the same kind always hashes to the same ID.
func (it *KnowledgeItem) ContentHash() ID {
	return IDFromContent(it.Kind.Short() + "\x00" + it.EmbeddingText())
}

// Excerpt renders the item as it is shown to the language model.
func (it *KnowledgeItem) Excerpt() string {
	switch it.Kind {
	case SourceFAQ:
		return "FAQ: " + it.Title + "\nAnswer: " + it.Body
	case SourceTicket:
		return "Ticket: " + it.Title + "\n" + it.Body
	default:
		return "Document: " + it.Title + "\n" + it.Body
	}
}

// HasTags reports whether the item carries every tag in tags.
func (it *KnowledgeItem) HasTags(tags []string) bool {
	for _, want := range tags {
		found := false
		for _, have := range it.Tags {
			if strings.EqualFold(have, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SourceRef points at one knowledge item.
type SourceRef struct {
	Kind SourceKind
	Id   ID
}

// String renders the reference as "kind:id", e.g. "doc:12".
func (r SourceRef) String() string {
	return r.Kind.Short() + ":" + strconv.FormatUint(uint64(r.Id), 10)
}

// Candidate is one retrieved excerpt with its similarity score.
type Candidate struct {
	Kind       SourceKind
	SourceId   ID
	Excerpt    string
	Similarity float32 // Cosine similarity clamped to [0,1]
	Weight     float32 // Priority weight of the source kind
}

// NormalizedScore is the similarity scaled by the source priority weight.
func (c Candidate) NormalizedScore() float32 {
	return c.Similarity * c.Weight
}

// Ref returns a reference to the candidate's knowledge item.
func (c Candidate) Ref() SourceRef {
	return SourceRef{Kind: c.Kind, Id: c.SourceId}
}

// Query is a single support question. It is never mutated once created.
type Query struct {
	Id          string    `validate:"required"`
	Text        string    `validate:"required,max=4000"`
	SubmitterId string    `validate:"max=256"`
	SubmittedAt time.Time `validate:"required"`
}

// NewQuery creates a Query with a fresh id and the current UTC time.
func NewQuery(text, submitterId string) Query {
	return Query{
		Id:          uuid.NewString(),
		Text:        text,
		SubmitterId: submitterId,
		SubmittedAt: time.Now().UTC(),
	}
}

// Status is the terminal outcome of answering a query.
type Status int

const (
	// StatusOK means an answer was generated from retrieved evidence.
	StatusOK Status = iota + 1
	// StatusDegraded means an answer was generated without retrieval evidence.
	StatusDegraded
	// StatusFailed means no answer could be generated.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDegraded:
		return "degraded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailureReason explains a failed answer.
type FailureReason int

const (
	FailureNone FailureReason = iota
	FailureEmbeddingUnavailable
	FailureGenerationUnavailable
	FailureGenerationTimeout
	FailureDeadlineExceeded
)

func (r FailureReason) String() string {
	switch r {
	case FailureNone:
		return ""
	case FailureEmbeddingUnavailable:
		return "embedding_unavailable"
	case FailureGenerationUnavailable:
		return "generation_unavailable"
	case FailureGenerationTimeout:
		return "generation_timeout"
	case FailureDeadlineExceeded:
		return "deadline_exceeded"
	default:
		return "unknown"
	}
}

// Answer is the single terminal record produced for a Query.
type Answer struct {
	Id                 string
	QueryId            string
	Text               string
	Confidence         float64
	Sources            []SourceRef // Candidates actually included in the context, in rank order
	Status             Status
	FailureReason      FailureReason
	Truncated          bool   // The context held a single candidate larger than the budget
	Retried            bool   // Generation needed more than one attempt
	ContextFingerprint string // Digest of the ranked source references
	CreatedAt          time.Time
	Latency            time.Duration
}

// AnswerRecord pairs a Query with its Answer for the analytics store.
type AnswerRecord struct {
	Query  Query
	Answer Answer
}

// Feedback is a helpfulness signal attached to an answer after the fact.
type Feedback struct {
	AnswerId  string `validate:"required"`
	Rating    int    `validate:"min=1,max=5"`
	Helpful   bool
	Comment   string `validate:"max=2000"`
	CreatedAt time.Time
}

// Filter narrows retrieval to a subset of a knowledge partition.
// Zero values match everything.
type Filter struct {
	Category string   // Exact category match
	Tags     []string // Every tag must be present
	Statuses []string // Ticket statuses; ignored for other kinds
}

// IsZero reports whether the filter matches every item.
func (f Filter) IsZero() bool {
	return f.Category == "" && len(f.Tags) == 0 && len(f.Statuses) == 0
}

// Matches reports whether an active item passes the filter.
func (f Filter) Matches(it *KnowledgeItem) bool {
	if !it.Active {
		return false
	}
	if f.Category != "" && !strings.EqualFold(f.Category, it.Category) {
		return false
	}
	if !it.HasTags(f.Tags) {
		return false
	}
	if it.Kind == SourceTicket && len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if s == it.Status {
				return true
			}
		}
		return false
	}
	return true
}

// ScoredItem is a knowledge item with its similarity to a query vector.
type ScoredItem struct {
	Item       *KnowledgeItem
	Similarity float32
}

// Analytics summarizes answered queries and their feedback over a period.
type Analytics struct {
	Since             time.Time
	TotalQueries      int
	WithFeedback      int // Answers that received at least one feedback entry
	AverageRating     float64
	FeedbackRate      float64 // WithFeedback / TotalQueries
	AverageConfidence float64
	StatusCounts      map[Status]int
	FailureCounts     map[FailureReason]int
}

// Checkpoint records how far a batch job got through a knowledge partition.
type Checkpoint struct {
	Name      string // Job name, e.g. "reindex:faq"
	LastId    ID     // Highest item ID fully processed
	Processed int
	UpdatedAt time.Time
}
