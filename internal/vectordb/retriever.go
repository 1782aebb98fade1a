package vectordb

import (
	"context"
	"fmt"

	"github.com/aris-project/aris/internal/embedding"
)

// Retriever answers similarity queries against one vector database.
type Retriever struct {
	docs       DocStore
	embedder   embedding.Client
	vectorDBID uint64
}

func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]string, error) {
	vecs, err := r.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed query: empty response")
	}
	return r.docs.Search(ctx, r.vectorDBID, vecs[0], topK)
}

// Resolve builds a retriever over one of the user's vector databases.
// Databases with nothing ingested yet are rejected.
func (s *Service) Resolve(ctx context.Context, uid, vectorDBID uint64) (*Retriever, error) {
	vdb, embedCfg, err := s.loadTarget(ctx, uid, vectorDBID)
	if err != nil {
		return nil, err
	}
	if vdb.DBSize == 0 {
		return nil, ErrEmpty
	}
	client, err := s.embedders(embedCfg)
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}
	return &Retriever{docs: s.docs, embedder: client, vectorDBID: vectorDBID}, nil
}
