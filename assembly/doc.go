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

// Package assembly turns a ranked candidate list into the context block
// handed to the language model.
//
// The Assembler walks candidates in rank order and keeps whole candidates
// while the rendered text fits the budget. A candidate is never cut. When the
// top candidate alone is over budget it is kept anyway and the result is
// marked truncated, so a non-empty candidate list never yields an empty
// context.
//
// Length is measured by a pluggable function. The default counts runes; the
// ai/openai package offers a token counter for model-accurate budgets.
package assembly
