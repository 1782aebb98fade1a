package vectordb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aris-project/aris/internal/common"
	"github.com/aris-project/aris/internal/embedding"
	"github.com/aris-project/aris/internal/models"
)

// ChunkRecord is one pending document chunk headed for the vector store.
type ChunkRecord struct {
	VectorDBID uint64
	Source     string
	ChunkIndex int
	Content    string
}

// DocStore is the vector store behind a database: chunks go in pending,
// a worker fills their embeddings, and similarity search reads them back.
type DocStore interface {
	InsertPending(ctx context.Context, chunks []ChunkRecord) error
	EmbedPending(ctx context.Context, vectorDBID uint64, model string, embed func(ctx context.Context, inputs []string) ([][]float32, error)) (int, error)
	Search(ctx context.Context, vectorDBID uint64, vector []float32, topK int) ([]string, error)
	DeleteAll(ctx context.Context, vectorDBID uint64) error
}

// JobPublisher hands an ingest job id to the background worker.
type JobPublisher interface {
	PublishIngestJob(ctx context.Context, jobID string) error
}

// EmbedderFactory builds an embedding client from a stored config.
type EmbedderFactory func(cfg models.EmbeddingConfig) (embedding.Client, error)

type Service struct {
	gdb        *gorm.DB
	docs       DocStore
	jobs       JobPublisher
	embedders  EmbedderFactory
	httpClient *http.Client
	log        *zap.Logger
}

func NewService(gdb *gorm.DB, docs DocStore, jobs JobPublisher, embedders EmbedderFactory, log *zap.Logger) *Service {
	if embedders == nil {
		embedders = embedding.New
	}
	return &Service{
		gdb:        gdb,
		docs:       docs,
		jobs:       jobs,
		embedders:  embedders,
		httpClient: &http.Client{},
		log:        log,
	}
}

func (s *Service) Create(ctx context.Context, uid uint64, name, embeddingName, description string) (*VectorDatabase, error) {
	var embedCfg models.EmbeddingConfig
	err := s.gdb.WithContext(ctx).Scopes(models.Live).
		Where("embedding_name = ?", embeddingName).First(&embedCfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEmbeddingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load embedding config: %w", err)
	}

	var count int64
	if err := s.gdb.WithContext(ctx).Model(&VectorDatabase{}).Scopes(models.Live).
		Where("uid = ? AND vector_db_name = ?", uid, name).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check name: %w", err)
	}
	if count > 0 {
		return nil, ErrDuplicateName
	}

	vdb := &VectorDatabase{
		UID:         uid,
		Name:        name,
		EmbeddingID: embedCfg.EmbeddingID,
		Description: description,
	}
	if err := s.gdb.WithContext(ctx).Create(vdb).Error; err != nil {
		return nil, fmt.Errorf("create vector db: %w", err)
	}
	return vdb, nil
}

func (s *Service) List(ctx context.Context, uid uint64) ([]VectorDatabase, error) {
	var dbs []VectorDatabase
	err := s.gdb.WithContext(ctx).Scopes(models.Live).
		Where("uid = ?", uid).Order("vector_db_id ASC").Find(&dbs).Error
	if err != nil {
		return nil, fmt.Errorf("list vector dbs: %w", err)
	}
	return dbs, nil
}

// Get returns a live vector database owned by uid.
func (s *Service) Get(ctx context.Context, uid, vectorDBID uint64) (*VectorDatabase, error) {
	var vdb VectorDatabase
	err := s.gdb.WithContext(ctx).Scopes(models.Live).
		Where("vector_db_id = ? AND uid = ?", vectorDBID, uid).First(&vdb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load vector db: %w", err)
	}
	return &vdb, nil
}

// Delete soft-deletes the database row and purges its chunks from the
// vector store.
func (s *Service) Delete(ctx context.Context, uid, vectorDBID uint64) error {
	vdb, err := s.Get(ctx, uid, vectorDBID)
	if err != nil {
		return err
	}
	now := time.Now()
	if err := s.gdb.WithContext(ctx).Model(vdb).Update("delete_at", now).Error; err != nil {
		return fmt.Errorf("delete vector db: %w", err)
	}
	if err := s.docs.DeleteAll(ctx, vectorDBID); err != nil {
		s.log.Error("purge vector store", zap.Uint64("vector_db_id", vectorDBID), zap.Error(err))
	}
	return nil
}

// UploadedFile is one multipart upload.
type UploadedFile struct {
	Name string
	Data []byte
}

// IngestResult reports what an upload produced. Skipped lists documents
// already present (same content hash or URL) and therefore not re-ingested.
type IngestResult struct {
	JobID      string   `json:"job_id"`
	ChunkCount int      `json:"chunk_count"`
	Skipped    []string `json:"skipped,omitempty"`
}

// UploadFiles chunks the given files, stores the chunks pending embedding,
// and queues a background job to embed them. Files whose name and content
// hash were seen before are skipped.
func (s *Service) UploadFiles(ctx context.Context, uid, vectorDBID uint64, files []UploadedFile, chunkSize, chunkOverlap int) (*IngestResult, error) {
	vdb, embedCfg, err := s.loadTarget(ctx, uid, vectorDBID)
	if err != nil {
		return nil, err
	}
	chunkSize, chunkOverlap, err = normalizeChunking(embedCfg, chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}

	var (
		chunks   []ChunkRecord
		accepted []File
		skipped  []string
	)
	for _, f := range files {
		sum := sha256.Sum256(f.Data)
		digest := hex.EncodeToString(sum[:])

		var count int64
		if err := s.gdb.WithContext(ctx).Model(&File{}).
			Where("vector_db_id = ? AND file_name = ? AND sha256 = ?", vectorDBID, f.Name, digest).
			Count(&count).Error; err != nil {
			return nil, fmt.Errorf("check file: %w", err)
		}
		if count > 0 {
			skipped = append(skipped, f.Name)
			continue
		}

		text, err := ExtractText(f.Name, f.Data)
		if err != nil {
			return nil, err
		}
		for i, c := range SplitText(f.Name, text, chunkSize, chunkOverlap) {
			chunks = append(chunks, ChunkRecord{
				VectorDBID: vectorDBID,
				Source:     f.Name,
				ChunkIndex: i,
				Content:    c,
			})
		}
		accepted = append(accepted, File{VectorDBID: vectorDBID, FileName: f.Name, SHA256: digest})
	}

	return s.enqueue(ctx, vdb, chunks, len(accepted), skipped, func(tx *gorm.DB) error {
		return tx.Create(&accepted).Error
	})
}

// UploadURLs fetches the given URLs, chunks their text and queues a
// background embedding job. URLs already present are skipped.
func (s *Service) UploadURLs(ctx context.Context, uid, vectorDBID uint64, urls []string, chunkSize, chunkOverlap int) (*IngestResult, error) {
	vdb, embedCfg, err := s.loadTarget(ctx, uid, vectorDBID)
	if err != nil {
		return nil, err
	}
	chunkSize, chunkOverlap, err = normalizeChunking(embedCfg, chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}

	var (
		chunks   []ChunkRecord
		accepted []URL
		skipped  []string
		seen     = map[string]bool{}
	)
	for _, u := range urls {
		if seen[u] {
			skipped = append(skipped, u)
			continue
		}
		seen[u] = true

		var count int64
		if err := s.gdb.WithContext(ctx).Model(&URL{}).
			Where("vector_db_id = ? AND url = ?", vectorDBID, u).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("check url: %w", err)
		}
		if count > 0 {
			skipped = append(skipped, u)
			continue
		}

		text, err := fetchURL(ctx, s.httpClient, u)
		if err != nil {
			return nil, err
		}
		for i, c := range SplitText(u, text, chunkSize, chunkOverlap) {
			chunks = append(chunks, ChunkRecord{
				VectorDBID: vectorDBID,
				Source:     u,
				ChunkIndex: i,
				Content:    c,
			})
		}
		accepted = append(accepted, URL{VectorDBID: vectorDBID, URL: u})
	}

	return s.enqueue(ctx, vdb, chunks, len(accepted), skipped, func(tx *gorm.DB) error {
		return tx.Create(&accepted).Error
	})
}

func (s *Service) loadTarget(ctx context.Context, uid, vectorDBID uint64) (*VectorDatabase, models.EmbeddingConfig, error) {
	vdb, err := s.Get(ctx, uid, vectorDBID)
	if err != nil {
		return nil, models.EmbeddingConfig{}, err
	}
	var embedCfg models.EmbeddingConfig
	err = s.gdb.WithContext(ctx).Scopes(models.Live).
		Where("embedding_id = ?", vdb.EmbeddingID).First(&embedCfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.EmbeddingConfig{}, ErrEmbeddingNotFound
	}
	if err != nil {
		return nil, models.EmbeddingConfig{}, fmt.Errorf("load embedding config: %w", err)
	}
	return vdb, embedCfg, nil
}

// normalizeChunking clamps chunk_size to the embedding model's configured
// maximum and enforces that overlap never exceeds half the chunk size.
func normalizeChunking(embedCfg models.EmbeddingConfig, chunkSize, chunkOverlap int) (int, int, error) {
	if chunkSize <= 0 || chunkSize > embedCfg.ChunkSize {
		chunkSize = embedCfg.ChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap > chunkSize/2 {
		return 0, 0, ErrOverlapTooLarge
	}
	return chunkSize, chunkOverlap, nil
}

// enqueue stores pending chunks, records accepted sources, bumps db_size
// and publishes a background embedding job, all as one unit except the
// publish itself.
func (s *Service) enqueue(ctx context.Context, vdb *VectorDatabase, chunks []ChunkRecord, acceptedCount int, skipped []string, recordSources func(tx *gorm.DB) error) (*IngestResult, error) {
	if acceptedCount == 0 {
		if len(skipped) > 0 {
			return &IngestResult{Skipped: skipped}, nil
		}
		return nil, ErrNoDocuments
	}

	if err := s.docs.InsertPending(ctx, chunks); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	jobID, err := common.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}
	job := &IngestJob{
		ID:         jobID,
		VectorDBID: vdb.VectorDBID,
		ChunkCount: len(chunks),
		Status:     JobQueued,
	}
	err = s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := recordSources(tx); err != nil {
			return err
		}
		if err := tx.Model(&VectorDatabase{}).
			Where("vector_db_id = ?", vdb.VectorDBID).
			Update("db_size", gorm.Expr("db_size + ?", acceptedCount)).Error; err != nil {
			return err
		}
		return tx.Create(job).Error
	})
	if err != nil {
		return nil, fmt.Errorf("record ingest: %w", err)
	}

	if err := s.jobs.PublishIngestJob(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("publish ingest job: %w", err)
	}

	s.log.Info("ingest queued",
		zap.String("job_id", job.ID),
		zap.Uint64("vector_db_id", vdb.VectorDBID),
		zap.Int("chunks", len(chunks)))
	return &IngestResult{JobID: job.ID, ChunkCount: len(chunks), Skipped: skipped}, nil
}

// ProcessJob embeds the pending chunks for a queued job. Run by the
// background worker; failures are recorded on the job and not retried.
func (s *Service) ProcessJob(ctx context.Context, jobID string) error {
	var job IngestJob
	if err := s.gdb.WithContext(ctx).First(&job, "id = ?", jobID).Error; err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status == JobSucceeded {
		return nil
	}
	if err := s.gdb.WithContext(ctx).Model(&job).Update("status", JobRunning).Error; err != nil {
		return fmt.Errorf("mark running: %w", err)
	}

	embedded, err := s.embedJob(ctx, &job)
	if err != nil {
		msg := err.Error()
		if uerr := s.gdb.WithContext(ctx).Model(&job).
			Updates(map[string]any{"status": JobFailed, "error": msg}).Error; uerr != nil {
			s.log.Error("mark job failed", zap.String("job_id", jobID), zap.Error(uerr))
		}
		return fmt.Errorf("job %s: %w", jobID, err)
	}

	if err := s.gdb.WithContext(ctx).Model(&job).Update("status", JobSucceeded).Error; err != nil {
		return fmt.Errorf("mark succeeded: %w", err)
	}
	s.log.Info("ingest done", zap.String("job_id", jobID), zap.Int("embedded", embedded))
	return nil
}

func (s *Service) embedJob(ctx context.Context, job *IngestJob) (int, error) {
	var vdb VectorDatabase
	if err := s.gdb.WithContext(ctx).
		First(&vdb, "vector_db_id = ?", job.VectorDBID).Error; err != nil {
		return 0, fmt.Errorf("load vector db: %w", err)
	}
	var embedCfg models.EmbeddingConfig
	if err := s.gdb.WithContext(ctx).
		First(&embedCfg, "embedding_id = ?", vdb.EmbeddingID).Error; err != nil {
		return 0, fmt.Errorf("load embedding config: %w", err)
	}
	client, err := s.embedders(embedCfg)
	if err != nil {
		return 0, fmt.Errorf("build embedder: %w", err)
	}
	return s.docs.EmbedPending(ctx, job.VectorDBID, embedCfg.EmbeddingName, client.EmbedTexts)
}
