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

// Error classes. Every error returned by the engine wraps exactly one of these.
var (
	// ErrInput indicates missing or invalid request fields.
	// Operations failing with ErrInput have no side effects.
	ErrInput = errors.New("invalid input")

	// ErrState indicates a request issued against an empty or uninitialized corpus.
	ErrState = errors.New("invalid state")

	// ErrCollaborator indicates that an embedding, generation or reranking call
	// failed or timed out.
	ErrCollaborator = errors.New("collaborator failure")

	// ErrConsistency indicates a corpus/index or dimensionality mismatch.
	// It is fatal to the operation and must never be downgraded.
	ErrConsistency = errors.New("consistency violation")
)

// Specific causes, wrapped together with their class.
var (
	// ErrNoText indicates the ingestion text is missing.
	ErrNoText = errors.New("no text provided")

	// ErrInvalidMode indicates an unknown chunking mode.
	ErrInvalidMode = errors.New("invalid mode, supported modes: fixed, paragraph")

	// ErrInvalidChunkParams indicates chunk size or overlap are out of range.
	ErrInvalidChunkParams = errors.New("chunk size must be positive and overlap must be in [0, size)")

	// ErrTextTooShort indicates that chunking produced no chunks.
	ErrTextTooShort = errors.New("text is too short or empty")

	// ErrNoQuery indicates the query string is missing.
	ErrNoQuery = errors.New("no query provided")

	// ErrNoDocuments indicates a query against an empty corpus.
	ErrNoDocuments = errors.New("no documents indexed yet")

	// ErrLengthMismatch indicates texts and embeddings of different lengths.
	ErrLengthMismatch = errors.New("texts and embeddings length mismatch")

	// ErrDimensionMismatch indicates an embedding with the wrong dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyEmbedding indicates a zero-length embedding vector.
	ErrEmptyEmbedding = errors.New("embedding cannot be empty")

	// ErrNonContiguousIDs indicates stored chunk IDs with gaps.
	ErrNonContiguousIDs = errors.New("chunk ids are not contiguous")
)

// Classify returns the name of the error class err belongs to, or "internal"
// when it wraps none of them.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInput):
		return "input"
	case errors.Is(err, ErrState):
		return "state"
	case errors.Is(err, ErrConsistency):
		return "consistency"
	case errors.Is(err, ErrCollaborator):
		return "collaborator"
	default:
		return "internal"
	}
}
