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

package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/supportrag/core"
)

// Record format versions. Bump when a layout changes.
const (
	knowledgeItemVersion = 1
	answerRecordVersion  = 1
	feedbackVersion      = 1
	checkpointVersion    = 1
)

type serializer[T any] interface {
	Marshal(v T, bs []byte) int
	Unmarshal(bs []byte) (T, int, error)
	Size(v T) int
}

// writer runs an encode function twice: first with a nil buffer to size the
// output, then for real.
type writer struct {
	bs []byte
	n  int
}

func put[T any](w *writer, s serializer[T], v T) {
	if w.bs == nil {
		w.n += s.Size(v)
		return
	}
	w.n += s.Marshal(v, w.bs[w.n:])
}

func marshal(encode func(w *writer)) []byte {
	sizer := &writer{}
	encode(sizer)
	w := &writer{bs: make([]byte, sizer.n)}
	encode(w)
	return w.bs
}

type reader struct {
	bs  []byte
	n   int
	err error
}

func get[T any](r *reader, s serializer[T]) T {
	var zero T
	if r.err != nil {
		return zero
	}
	v, n, err := s.Unmarshal(r.bs[r.n:])
	r.n += n
	if err != nil {
		r.err = err
		return zero
	}
	return v
}

// length reads a slice length and checks it against the remaining input.
func (r *reader) length(minElemSize int) int {
	n := get(r, varint.Int)
	if r.err != nil {
		return 0
	}
	if n < 0 || n*minElemSize > len(r.bs)-r.n {
		r.err = ErrTruncatedData
		return 0
	}
	return n
}

func (r *reader) version(want int) {
	if v := get(r, varint.Int); r.err == nil && v != want {
		r.err = fmt.Errorf("unsupported record version %d", v)
	}
}

func (r *reader) done() error {
	if r.err != nil {
		return fmt.Errorf("%w: %w", ErrSerializationFailed, r.err)
	}
	return nil
}

func putTime(w *writer, t time.Time) {
	if t.IsZero() {
		put(w, varint.Int64, 0)
		return
	}
	put(w, varint.Int64, t.UnixMicro())
}

func getTime(r *reader) time.Time {
	us := get(r, varint.Int64)
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}

func putStrings(w *writer, ss []string) {
	put(w, varint.Int, len(ss))
	for _, s := range ss {
		put(w, ord.String, s)
	}
}

func getStrings(r *reader) []string {
	n := r.length(1)
	if n == 0 {
		return nil
	}
	out := make([]string, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, get(r, ord.String))
	}
	return out
}

func putVector(w *writer, v []float32) {
	put(w, varint.Int, len(v))
	for _, f := range v {
		put(w, raw.Float32, f)
	}
}

func getVector(r *reader) []float32 {
	n := r.length(4)
	if n == 0 {
		return nil
	}
	out := make([]float32, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, get(r, raw.Float32))
	}
	return out
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	return marshal(func(w *writer) { put(w, varint.Uint64, uint64(id)) })
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	r := &reader{bs: data}
	id := get(r, varint.Uint64)
	return core.ID(id), r.done()
}

// MarshalKnowledgeItem serializes a KnowledgeItem to bytes.
func MarshalKnowledgeItem(item *core.KnowledgeItem) []byte {
	return marshal(func(w *writer) {
		put(w, varint.Int, knowledgeItemVersion)
		put(w, varint.Uint64, uint64(item.Id))
		put(w, varint.Int, int(item.Kind))
		put(w, varint.Uint64, uint64(item.ContentId))
		put(w, ord.String, item.Title)
		put(w, ord.String, item.Body)
		put(w, ord.String, item.Category)
		putStrings(w, item.Tags)
		put(w, ord.String, item.Status)
		put(w, ord.String, item.Priority)
		putVector(w, item.Vector)
		put(w, ord.Bool, item.Active)
		put(w, varint.Int, item.ViewCount)
		put(w, varint.Int, item.HelpfulCount)
		putTime(w, item.InsertedAt)
		putTime(w, item.UpdatedAt)
	})
}

// UnmarshalKnowledgeItem deserializes a KnowledgeItem from bytes.
func UnmarshalKnowledgeItem(data []byte) (*core.KnowledgeItem, error) {
	r := &reader{bs: data}
	r.version(knowledgeItemVersion)
	item := &core.KnowledgeItem{
		Id:           core.ID(get(r, varint.Uint64)),
		Kind:         core.SourceKind(get(r, varint.Int)),
		ContentId:    core.ID(get(r, varint.Uint64)),
		Title:        get(r, ord.String),
		Body:         get(r, ord.String),
		Category:     get(r, ord.String),
		Tags:         getStrings(r),
		Status:       get(r, ord.String),
		Priority:     get(r, ord.String),
		Vector:       getVector(r),
		Active:       get(r, ord.Bool),
		ViewCount:    get(r, varint.Int),
		HelpfulCount: get(r, varint.Int),
		InsertedAt:   getTime(r),
		UpdatedAt:    getTime(r),
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return item, nil
}

// MarshalAnswerRecord serializes a query and its answer to bytes.
func MarshalAnswerRecord(record *core.AnswerRecord) []byte {
	q, a := &record.Query, &record.Answer
	return marshal(func(w *writer) {
		put(w, varint.Int, answerRecordVersion)
		put(w, ord.String, q.Id)
		put(w, ord.String, q.Text)
		put(w, ord.String, q.SubmitterId)
		putTime(w, q.SubmittedAt)
		put(w, ord.String, a.Id)
		put(w, ord.String, a.QueryId)
		put(w, ord.String, a.Text)
		put(w, raw.Float64, a.Confidence)
		put(w, varint.Int, len(a.Sources))
		for _, ref := range a.Sources {
			put(w, varint.Int, int(ref.Kind))
			put(w, varint.Uint64, uint64(ref.Id))
		}
		put(w, varint.Int, int(a.Status))
		put(w, varint.Int, int(a.FailureReason))
		put(w, ord.Bool, a.Truncated)
		put(w, ord.Bool, a.Retried)
		put(w, ord.String, a.ContextFingerprint)
		putTime(w, a.CreatedAt)
		put(w, varint.Int64, int64(a.Latency))
	})
}

// UnmarshalAnswerRecord deserializes a query and its answer from bytes.
func UnmarshalAnswerRecord(data []byte) (*core.AnswerRecord, error) {
	r := &reader{bs: data}
	r.version(answerRecordVersion)
	record := &core.AnswerRecord{}
	record.Query = core.Query{
		Id:          get(r, ord.String),
		Text:        get(r, ord.String),
		SubmitterId: get(r, ord.String),
		SubmittedAt: getTime(r),
	}
	a := &record.Answer
	a.Id = get(r, ord.String)
	a.QueryId = get(r, ord.String)
	a.Text = get(r, ord.String)
	a.Confidence = get(r, raw.Float64)
	if n := r.length(2); n > 0 {
		a.Sources = make([]core.SourceRef, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			kind := core.SourceKind(get(r, varint.Int))
			id := core.ID(get(r, varint.Uint64))
			a.Sources = append(a.Sources, core.SourceRef{Kind: kind, Id: id})
		}
	}
	a.Status = core.Status(get(r, varint.Int))
	a.FailureReason = core.FailureReason(get(r, varint.Int))
	a.Truncated = get(r, ord.Bool)
	a.Retried = get(r, ord.Bool)
	a.ContextFingerprint = get(r, ord.String)
	a.CreatedAt = getTime(r)
	a.Latency = time.Duration(get(r, varint.Int64))
	if err := r.done(); err != nil {
		return nil, err
	}
	return record, nil
}

// MarshalFeedback serializes Feedback to bytes.
func MarshalFeedback(feedback *core.Feedback) []byte {
	return marshal(func(w *writer) {
		put(w, varint.Int, feedbackVersion)
		put(w, ord.String, feedback.AnswerId)
		put(w, varint.Int, feedback.Rating)
		put(w, ord.Bool, feedback.Helpful)
		put(w, ord.String, feedback.Comment)
		putTime(w, feedback.CreatedAt)
	})
}

// UnmarshalFeedback deserializes Feedback from bytes.
func UnmarshalFeedback(data []byte) (*core.Feedback, error) {
	r := &reader{bs: data}
	r.version(feedbackVersion)
	feedback := &core.Feedback{
		AnswerId:  get(r, ord.String),
		Rating:    get(r, varint.Int),
		Helpful:   get(r, ord.Bool),
		Comment:   get(r, ord.String),
		CreatedAt: getTime(r),
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return feedback, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) []byte {
	return marshal(func(w *writer) {
		put(w, varint.Int, checkpointVersion)
		put(w, ord.String, checkpoint.Name)
		put(w, varint.Uint64, uint64(checkpoint.LastId))
		put(w, varint.Int, checkpoint.Processed)
		putTime(w, checkpoint.UpdatedAt)
	})
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	r := &reader{bs: data}
	r.version(checkpointVersion)
	checkpoint := &core.Checkpoint{
		Name:      get(r, ord.String),
		LastId:    core.ID(get(r, varint.Uint64)),
		Processed: get(r, varint.Int),
		UpdatedAt: getTime(r),
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return checkpoint, nil
}
