package badger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/poiesic/supportrag/core"
	"github.com/poiesic/supportrag/storage"
)

// Key prefixes for different data types
const (
	documentPrefix    = "docrec"
	faqPrefix         = "faqrec"
	ticketPrefix      = "tktrec"
	contentIndexInfix = "cid"
	sequenceSuffix    = "seq"

	answerRecordPrefix = "ansrec"
	answerDatePrefix   = "ansdat"
	answerSubPrefix    = "anssub"
	feedbackPrefix     = "fdbrec"
	feedbackIDSeq      = "fdbseq"
	checkpointPrefix   = "chkpt"
)

// partition names the key space of one source kind.
type partition struct {
	kind core.SourceKind
	name string
}

func partitionFor(kind core.SourceKind) (partition, error) {
	switch kind {
	case core.SourceDocument:
		return partition{kind: kind, name: documentPrefix}, nil
	case core.SourceFAQ:
		return partition{kind: kind, name: faqPrefix}, nil
	case core.SourceTicket:
		return partition{kind: kind, name: ticketPrefix}, nil
	}
	return partition{}, fmt.Errorf("%w: %s", storage.ErrUnknownKind, kind)
}

// itemPrefix is the prefix shared by every primary record of the partition.
func (p partition) itemPrefix() []byte {
	return []byte(p.name + ":")
}

// itemKey generates a key for a knowledge item by ID.
// Format: prefix:id, with the ID big endian so keys sort by ID.
func (p partition) itemKey(id core.ID) []byte {
	prefix := p.itemPrefix()
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// itemID extracts the item ID from a primary key.
func (p partition) itemID(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

// contentKey generates a key for the content hash index.
// Format: prefixcid:contentId
func (p partition) contentKey(contentId core.ID) []byte {
	prefix := p.name + contentIndexInfix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(contentId))
	return buf
}

func (p partition) sequenceName() string {
	return p.name + sequenceSuffix
}

// makeAnswerKey generates a key for an answer record by answer ID.
func makeAnswerKey(answerId string) []byte {
	return []byte(answerRecordPrefix + ":" + answerId)
}

// makeAnswerDateKey generates a composite key for the answer date index.
// Format: prefix:timestamp:answerId
func makeAnswerDateKey(createdAt time.Time, answerId string) []byte {
	buf := makePartialAnswerDateKey(createdAt)
	return append(buf, answerId...)
}

// makePartialAnswerDateKey generates a partial key for date range scans.
func makePartialAnswerDateKey(createdAt time.Time) []byte {
	prefix := []byte(answerDatePrefix + ":")
	buf := make([]byte, len(prefix)+8, len(prefix)+8+36)
	offset := copy(buf, prefix)
	// BigEndian so lexicographic order matches time order
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixMicro()))
	return buf
}

// makeSubmitterPrefix is the prefix shared by all answers of one submitter.
func makeSubmitterPrefix(submitterId string) []byte {
	return []byte(answerSubPrefix + ":" + submitterId + ":")
}

// makeAnswerSubmitterKey generates a key for the per-submitter date index.
// Format: prefix:submitterId:timestamp:answerId
func makeAnswerSubmitterKey(submitterId string, createdAt time.Time, answerId string) []byte {
	prefix := makeSubmitterPrefix(submitterId)
	buf := make([]byte, len(prefix)+8, len(prefix)+8+len(answerId))
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixMicro()))
	return append(buf, answerId...)
}

// makeFeedbackPrefix is the prefix shared by all feedback of one answer.
func makeFeedbackPrefix(answerId string) []byte {
	return []byte(feedbackPrefix + ":" + answerId + ":")
}

// makeFeedbackKey generates a key for one feedback entry.
// Format: prefix:answerId:seq
func makeFeedbackKey(answerId string, seq uint64) []byte {
	prefix := makeFeedbackPrefix(answerId)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// makeCheckpointKey generates a key for batch job checkpoints.
func makeCheckpointKey(name string) []byte {
	return []byte(checkpointPrefix + ":" + name)
}
