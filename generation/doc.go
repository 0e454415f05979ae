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

// Package generation calls the language model to answer a query from an
// assembled context.
//
// The Client bounds every attempt with its own timeout and retries only
// attempts that timed out, up to a configured count with exponential
// backoff. Explicit provider errors are never retried. Failures are
// classified as core.ErrGenerationTimeout or core.ErrGenerationUnavailable.
package generation
