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

// Package storage provides the storage abstraction layer for supportrag.
//
// This package defines repository interfaces that decouple storage implementation
// from business logic, plus the binary codec used to persist records.
//
// # Constructor Return Type Pattern
//
// Public constructors in backend packages return repository interfaces:
//
//	repo, err := badger.NewKnowledgeRepository(backend)  // storage.KnowledgeRepository
//
// # Architecture
//
//   - KnowledgeRepository: documents, FAQs and tickets, one partition per
//     source kind, with cosine similarity search
//   - AnswerRepository: answered queries, feedback and analytics
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	knowledge, err := badger.NewKnowledgeRepository(backend)
//
// Tests use an in-memory backend:
//
//	backend, err := badger.NewMemoryBackend()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
