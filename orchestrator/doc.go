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

// Package orchestrator answers support queries end to end.
//
// An Orchestrator drives each query through a fixed sequence of states:
//
//	Embedding → Retrieving → Aggregating → Assembling → Generating → Scoring → Done
//
// with Failed reachable from Embedding, Generating and any state once the
// end-to-end deadline expires. Every query ends in exactly one terminal
// core.Answer whose Status is ok, degraded or failed. Processing failures are
// reported through the Answer, never as returned errors; Answer only returns
// an error when the request itself is invalid.
//
// A source that cannot be searched does not stop the query. When no source
// yields a candidate the model is still asked, and the answer is marked
// degraded with the floor confidence.
//
// Finished answers are handed to an optional Recorder, such as the analytics
// store. Progress can be observed through a Monitor.
package orchestrator
