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
	"fmt"
	"strings"
)

// ValidateChunkParams checks chunk size and overlap.
//
// Validation rules:
//   - size must be positive
//   - overlap must not be negative
//   - overlap must be smaller than size
func ValidateChunkParams(size, overlap int) error {
	if size <= 0 || overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: %w: size=%d overlap=%d", ErrInput, ErrInvalidChunkParams, size, overlap)
	}
	return nil
}

// ValidateText checks that ingestion text is present.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: %w", ErrInput, ErrNoText)
	}
	return nil
}

// ValidateQuery checks that a query string is present.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: %w", ErrInput, ErrNoQuery)
	}
	return nil
}

// ValidateEmbeddings checks that texts and embeddings line up and that every
// embedding has dimension dim. A dim of 0 adopts the first embedding's
// dimension. Returns the dimension in effect.
func ValidateEmbeddings(texts []string, embeddings [][]float32, dim int) (int, error) {
	if len(texts) != len(embeddings) {
		return dim, fmt.Errorf("%w: %w: %d texts, %d embeddings",
			ErrConsistency, ErrLengthMismatch, len(texts), len(embeddings))
	}
	for i, e := range embeddings {
		if len(e) == 0 {
			return dim, fmt.Errorf("%w: %w: index %d", ErrConsistency, ErrEmptyEmbedding, i)
		}
		if dim == 0 {
			dim = len(e)
		}
		if len(e) != dim {
			return dim, fmt.Errorf("%w: %w: index %d has %d, want %d",
				ErrConsistency, ErrDimensionMismatch, i, len(e), dim)
		}
	}
	return dim, nil
}
