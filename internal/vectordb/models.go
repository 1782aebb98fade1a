package vectordb

import "time"

type VectorDatabase struct {
	VectorDBID  uint64 `gorm:"column:vector_db_id;primaryKey;autoIncrement" json:"vector_db_id"`
	UID         uint64 `gorm:"column:uid;index:idx_vdb_uid_name,priority:1;not null" json:"-"`
	Name        string `gorm:"column:vector_db_name;type:varchar(255);index:idx_vdb_uid_name,priority:2;not null" json:"vector_db_name"`
	EmbeddingID uint64 `gorm:"column:embedding_id;not null" json:"-"`
	Description string `gorm:"column:vector_db_description;type:text;not null;default:''" json:"vector_db_description"`
	// DBSize counts documents accepted for ingestion, bumped as soon as
	// chunking succeeds. It is not rolled back when background embedding
	// fails; see DESIGN.md.
	DBSize   int64      `gorm:"column:db_size;not null;default:0" json:"db_size"`
	CreateAt time.Time  `gorm:"column:create_at;autoCreateTime" json:"create_at"`
	UpdateAt time.Time  `gorm:"column:update_at;autoUpdateTime" json:"update_at"`
	DeleteAt *time.Time `gorm:"column:delete_at" json:"-"`
}

func (VectorDatabase) TableName() string { return "vector_dbs" }

// File records an ingested upload so byte-identical re-uploads under the
// same name are skipped.
type File struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	VectorDBID uint64    `gorm:"column:vector_db_id;index;not null"`
	FileName   string    `gorm:"column:file_name;type:varchar(512);not null"`
	SHA256     string    `gorm:"column:sha256;type:char(64);not null"`
	CreateAt   time.Time `gorm:"column:create_at;autoCreateTime"`
}

func (File) TableName() string { return "vector_db_files" }

// URL records an ingested URL so re-submissions are skipped.
type URL struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	VectorDBID uint64    `gorm:"column:vector_db_id;index;not null"`
	URL        string    `gorm:"column:url;type:varchar(1024);not null"`
	CreateAt   time.Time `gorm:"column:create_at;autoCreateTime"`
}

func (URL) TableName() string { return "vector_db_urls" }

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// IngestJob tracks one background embedding+upsert task. Failures are
// terminal: logged, never retried.
type IngestJob struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	VectorDBID uint64    `gorm:"column:vector_db_id;index;not null"`
	ChunkCount int       `gorm:"column:chunk_count;not null"`
	Status     JobStatus `gorm:"type:varchar(16);index;not null"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (IngestJob) TableName() string { return "ingest_jobs" }
