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

import "errors"

// Domain validation errors
var (
	// ErrInvalidKnowledgeItem indicates a KnowledgeItem failed validation.
	ErrInvalidKnowledgeItem = errors.New("invalid knowledge item")

	// ErrInvalidQuery indicates a Query failed validation.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidFeedback indicates a Feedback record failed validation.
	ErrInvalidFeedback = errors.New("invalid feedback")

	// ErrInvalidSourceKind indicates an unknown SourceKind value.
	ErrInvalidSourceKind = errors.New("invalid source kind")

	// ErrInvalidTimestamp indicates a timestamp is in the future.
	ErrInvalidTimestamp = errors.New("timestamp cannot be in the future")
)

// Query processing failures. These never escape the orchestrator as errors;
// they surface as an Answer's Status and FailureReason.
var (
	// ErrEmbeddingUnavailable indicates the query could not be embedded.
	// Fatal for the query: there is no vector to search with.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrRetrievalUnavailable indicates a single knowledge source could not be searched.
	// Source-local and recoverable.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrGenerationUnavailable indicates the language model backend failed or refused the request.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrGenerationTimeout indicates a generation attempt exceeded its timeout.
	ErrGenerationTimeout = errors.New("generation timed out")

	// ErrQueryDeadline indicates the end-to-end query deadline expired.
	ErrQueryDeadline = errors.New("query deadline exceeded")
)
