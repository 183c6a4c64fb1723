// Package ragfuse is a hybrid retrieval and answer engine.
//
// Text is chunked, embedded and appended to a corpus. Queries are ranked by
// BM25, vector similarity and keyword overlap, merged with reciprocal rank
// fusion, optionally reranked, and answered by a generation model.
//
// Basic usage:
//
//	engine, err := ragfuse.Open(ctx, ragfuse.WithConfig(cfg))
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	if _, err := engine.Ingest(ctx, engine.NewRequest(text)); err != nil {
//	    return err
//	}
//	result, err := engine.Query(ctx, "what is hybrid retrieval?")
package ragfuse
