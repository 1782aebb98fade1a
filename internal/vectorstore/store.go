package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aris-project/aris/internal/vectordb"
)

// Chunk is one document fragment. Embedding stays NULL until the ingest
// worker fills it; search only sees embedded rows.
type Chunk struct {
	ID         uint64           `gorm:"primaryKey;autoIncrement"`
	VectorDBID uint64           `gorm:"column:vector_db_id;index;not null"`
	Source     string           `gorm:"type:varchar(1024);not null"`
	ChunkIndex int              `gorm:"column:chunk_index;not null"`
	Content    string           `gorm:"type:text;not null"`
	Embedding  *pgvector.Vector `gorm:"type:vector"`
	Model      string           `gorm:"type:varchar(255)"`
	CreatedAt  time.Time
}

func (Chunk) TableName() string { return "vector_chunks" }

// Store keeps chunks and their embeddings in Postgres with pgvector.
type Store struct {
	gdb *gorm.DB
}

// Open connects to Postgres, ensures the vector extension exists and
// migrates the chunk table.
func Open(dsn string) (*Store, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := gdb.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("ensure vector extension: %w", err)
	}
	if err := gdb.AutoMigrate(&Chunk{}); err != nil {
		return nil, fmt.Errorf("migrate vector store: %w", err)
	}
	return &Store{gdb: gdb}, nil
}

func (s *Store) InsertPending(ctx context.Context, chunks []vectordb.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		rows = append(rows, Chunk{
			VectorDBID: c.VectorDBID,
			Source:     c.Source,
			ChunkIndex: c.ChunkIndex,
			Content:    c.Content,
		})
	}
	if err := s.gdb.WithContext(ctx).CreateInBatches(&rows, 100).Error; err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	return nil
}

// embedBatchSize bounds how many chunk bodies go to the embedding API
// per request.
const embedBatchSize = 32

// EmbedPending embeds every chunk of the database that has no vector yet
// and writes the vectors back. Returns how many chunks were embedded.
func (s *Store) EmbedPending(ctx context.Context, vectorDBID uint64, model string, embed func(ctx context.Context, inputs []string) ([][]float32, error)) (int, error) {
	var pending []Chunk
	err := s.gdb.WithContext(ctx).
		Where("vector_db_id = ? AND embedding IS NULL", vectorDBID).
		Order("id ASC").Find(&pending).Error
	if err != nil {
		return 0, fmt.Errorf("load pending chunks: %w", err)
	}

	done := 0
	for start := 0; start < len(pending); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		inputs := make([]string, len(batch))
		for i, c := range batch {
			inputs[i] = c.Content
		}
		vecs, err := embed(ctx, inputs)
		if err != nil {
			return done, fmt.Errorf("embed batch: %w", err)
		}
		if len(vecs) != len(batch) {
			return done, fmt.Errorf("embed batch: got %d vectors for %d inputs", len(vecs), len(batch))
		}

		err = s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for i := range batch {
				v := pgvector.NewVector(vecs[i])
				if err := tx.Model(&Chunk{}).Where("id = ?", batch[i].ID).
					Updates(map[string]any{"embedding": &v, "model": model}).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return done, fmt.Errorf("save embeddings: %w", err)
		}
		done += len(batch)
	}
	return done, nil
}

// Search returns the contents of the topK embedded chunks closest to the
// query vector by cosine distance.
func (s *Store) Search(ctx context.Context, vectorDBID uint64, vector []float32, topK int) ([]string, error) {
	if topK <= 0 {
		topK = 4
	}
	var contents []string
	err := s.gdb.WithContext(ctx).Raw(
		`SELECT content FROM vector_chunks
		 WHERE vector_db_id = ? AND embedding IS NOT NULL
		 ORDER BY embedding <=> ? LIMIT ?`,
		vectorDBID, pgvector.NewVector(vector), topK,
	).Scan(&contents).Error
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	return contents, nil
}

func (s *Store) DeleteAll(ctx context.Context, vectorDBID uint64) error {
	if err := s.gdb.WithContext(ctx).
		Where("vector_db_id = ?", vectorDBID).Delete(&Chunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}
