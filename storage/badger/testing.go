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

package badger

import "github.com/poiesic/supportrag/storage"

// NewMemoryRepositories creates in-memory knowledge and answer repositories for testing.
// Returns knowledgeRepo, answerRepo, backend, and error.
// Caller must close both repos and backend when done.
func NewMemoryRepositories() (storage.KnowledgeRepository, storage.AnswerRepository, *Backend, error) {
	backend, err := NewMemoryBackend()
	if err != nil {
		return nil, nil, nil, err
	}

	knowledgeRepo, err := NewKnowledgeRepository(backend)
	if err != nil {
		backend.Close()
		return nil, nil, nil, err
	}

	answerRepo, err := NewAnswerRepository(backend)
	if err != nil {
		knowledgeRepo.Close()
		backend.Close()
		return nil, nil, nil, err
	}

	return knowledgeRepo, answerRepo, backend, nil
}
