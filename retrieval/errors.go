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

package retrieval

import (
	"errors"
	"fmt"

	"github.com/poiesic/supportrag/core"
)

var (
	// ErrRepositoryRequired is returned when a knowledge repository is not provided.
	ErrRepositoryRequired = errors.New("knowledge repository required")

	// ErrRetrieverRequired is returned when no retrievers are given to a FanOut.
	ErrRetrieverRequired = errors.New("at least one retriever required")

	// ErrDuplicateRetriever is returned when two retrievers serve the same source kind.
	ErrDuplicateRetriever = errors.New("duplicate retriever for source kind")
)

// UnavailableError reports that one source's backend could not be searched.
// It matches core.ErrRetrievalUnavailable with errors.Is.
type UnavailableError struct {
	Kind core.SourceKind
	Err  error
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", core.ErrRetrievalUnavailable, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", core.ErrRetrievalUnavailable, e.Kind, e.Err)
}

func (e *UnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{core.ErrRetrievalUnavailable}
	}
	return []error{core.ErrRetrievalUnavailable, e.Err}
}
