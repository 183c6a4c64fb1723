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


// Package ingestion turns raw text into indexed corpus chunks.
//
// The Pipeline type manages the ingestion workflow:
//   - Validating the request and chunking the text
//   - Looking up cached embeddings
//   - Embedding the remaining chunks in batches on a worker pool, with retries
//   - Appending chunks and embeddings to the corpus store, which rebuilds its indexes
//
// Once a request is validated, ingestion runs to completion even if the
// caller's context is cancelled. Embedding happens outside the corpus lock,
// so queries continue to be served while a large document is embedded.
package ingestion
