package vectordb

import "errors"

var (
	ErrNotFound          = errors.New("vector database not found")
	ErrDuplicateName     = errors.New("vector database with this name already exists")
	ErrEmbeddingNotFound = errors.New("embedding model not found")
	ErrOverlapTooLarge   = errors.New("chunk_overlap must not exceed half of chunk_size")
	ErrNoDocuments       = errors.New("no documents to ingest")
	ErrEmpty             = errors.New("vector database is empty")
	ErrUnsupportedFile   = errors.New("unsupported file type")
)
