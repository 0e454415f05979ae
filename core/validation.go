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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// MaxClockSkew is how far in the future a submission time may lie. Clients
// stamp queries with their own clocks.
const MaxClockSkew = 5 * time.Minute

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateKnowledgeItem validates a KnowledgeItem according to domain rules.
//
// Validation rules:
//   - Kind must be a known source kind
//   - Title and Body must not be empty
//   - Status and Priority, when set, must be known ticket values
//
// NOT validated (populated by ingestion):
//   - Vector (can be empty until embedded)
//   - ID (0 is valid before the item is stored)
func ValidateKnowledgeItem(item *KnowledgeItem) error {
	if item == nil {
		return fmt.Errorf("%w: item is nil", ErrInvalidKnowledgeItem)
	}
	if err := validate.Struct(item); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidKnowledgeItem, describe(err))
	}
	return nil
}

// ValidateQuery validates a Query before it is answered.
func ValidateQuery(query *Query) error {
	if query == nil {
		return fmt.Errorf("%w: query is nil", ErrInvalidQuery)
	}
	if strings.TrimSpace(query.Text) == "" {
		return fmt.Errorf("%w: text cannot be empty", ErrInvalidQuery)
	}
	if err := validate.Struct(query); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidQuery, describe(err))
	}
	if !IsValidTimestamp(query.SubmittedAt) {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, ErrInvalidTimestamp)
	}
	return nil
}

// ValidateFeedback validates a Feedback record.
// Rating must be between 1 and 5.
func ValidateFeedback(feedback *Feedback) error {
	if feedback == nil {
		return fmt.Errorf("%w: feedback is nil", ErrInvalidFeedback)
	}
	if err := validate.Struct(feedback); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidFeedback, describe(err))
	}
	return nil
}

// ValidateSourceKind validates that a SourceKind has a known value.
func ValidateSourceKind(kind SourceKind) error {
	if kind < SourceDocument || kind > SourceTicket {
		return fmt.Errorf("%w: value %d", ErrInvalidSourceKind, kind)
	}
	return nil
}

// IsValidTimestamp checks if a timestamp is valid (not further in the future
// than MaxClockSkew).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now().Add(MaxClockSkew))
}

// describe flattens validator errors into "Field: tag" pairs.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fe.Field()+": "+fe.Tag()+"="+fe.Param())
		} else {
			parts = append(parts, fe.Field()+": "+fe.Tag())
		}
	}
	return strings.Join(parts, ", ")
}
