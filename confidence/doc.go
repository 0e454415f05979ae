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

// Package confidence derives a confidence score for a generated answer from
// the evidence it was generated with.
//
// The score rises with the top candidate's normalized score and with the
// number of corroborating candidates (saturating), and is deflated when the
// context was truncated or generation needed a retry. Answers generated with
// no evidence get a fixed floor; failed generations get zero.
package confidence
