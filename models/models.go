package models

import (
	"encoding/json"
	"time"
)

// SourceRecord is a post as stored in the primary datastore.
type SourceRecord struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Content      json.RawMessage `json:"content"`
	Topic        string          `json:"topic"`
	Description  string          `json:"description"`
	MainCategory string          `json:"main_category"`
	SubCategory  string          `json:"sub_category"`
	Tags         []string        `json:"tags"`
	AuthorEmail  string          `json:"author_email"`
	ViewCount    int64           `json:"view_count"`
	LikeCount    int64           `json:"like_count"`
	ThumbnailURL string          `json:"thumbnail_url"`
	IsPublished  bool            `json:"is_published"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// SearchDocument is the indexed projection of a SourceRecord. JSON names are the index field names.
type SearchDocument struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ContentText  string    `json:"content_text"`
	Topic        string    `json:"topic"`
	Description  string    `json:"description"`
	MainCategory string    `json:"main_category"`
	SubCategory  string    `json:"sub_category"`
	Tags         []string  `json:"tags"`
	Language     string    `json:"language"`
	AuthorEmail  string    `json:"author_email"`
	ViewCount    int64     `json:"view_count"`
	LikeCount    int64     `json:"like_count"`
	ReadingTime  int       `json:"reading_time"`
	ThumbnailURL string    `json:"thumbnail_url"`
	CreatedDate  time.Time `json:"created_date"`
	UpdatedDate  time.Time `json:"updated_date"`
}

const (
	LanguageKorean  = "ko"
	LanguageEnglish = "en"
	LanguageAll     = "all"
)

const (
	SortRelevance = "relevance"
	SortDateDesc  = "date_desc"
	SortDateAsc   = "date_asc"
	SortViewsDesc = "views_desc"
	SortLikesDesc = "likes_desc"
)

// SearchRequest is a structured search as accepted by the query builder.
type SearchRequest struct {
	Query       string
	Category    string
	SubCategory string
	Tags        []string
	Language    string
	DateFrom    *time.Time
	DateTo      *time.Time
	Page        int
	PageSize    int
	Sort        string
}

type SearchHit struct {
	ID           string              `json:"id"`
	Score        float64             `json:"score"`
	Title        string              `json:"title"`
	Topic        string              `json:"topic,omitempty"`
	Description  string              `json:"description,omitempty"`
	MainCategory string              `json:"main_category,omitempty"`
	SubCategory  string              `json:"sub_category,omitempty"`
	Tags         []string            `json:"tags,omitempty"`
	Language     string              `json:"language,omitempty"`
	AuthorEmail  string              `json:"author_email,omitempty"`
	ViewCount    int64               `json:"view_count"`
	LikeCount    int64               `json:"like_count"`
	ReadingTime  int                 `json:"reading_time"`
	ThumbnailURL string              `json:"thumbnail_url,omitempty"`
	UpdatedDate  string              `json:"updated_date,omitempty"`
	Highlights   map[string][]string `json:"highlights,omitempty"`
}

type FacetCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

type SearchResponse struct {
	Total        uint64                  `json:"total"`
	Page         int                     `json:"page"`
	PageSize     int                     `json:"page_size"`
	TotalPages   int                     `json:"total_pages"`
	Partial      bool                    `json:"partial"`
	Results      []SearchHit             `json:"results"`
	Aggregations map[string][]FacetCount `json:"aggregations,omitempty"`
}

type SyncMode string

const (
	SyncModeFull        SyncMode = "full"
	SyncModeIncremental SyncMode = "incremental"
)

type SyncState string

const (
	SyncStateIdle      SyncState = "idle"
	SyncStateRunning   SyncState = "running"
	SyncStateCompleted SyncState = "completed"
	SyncStatePartial   SyncState = "partial"
	SyncStateFailed    SyncState = "failed"
)

// SyncRun is the record of one synchronization execution.
type SyncRun struct {
	RunID         string    `json:"run_id"`
	Mode          SyncMode  `json:"type"`
	BatchSize     int       `json:"batch_size"`
	DryRun        bool      `json:"dry_run"`
	Processed     int       `json:"processed"`
	Synced        int       `json:"synced"`
	Skipped       int       `json:"skipped"`
	Errors        int       `json:"errors"`
	SuccessRate   float64   `json:"success_rate"`
	ExecutionTime float64   `json:"execution_time"`
	Status        SyncState `json:"status"`
	Message       string    `json:"message"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at,omitzero"`
}

type SyncStatus struct {
	SourceConnected       bool       `json:"source_connected"`
	IndexConnected        bool       `json:"index_connected"`
	TotalSourceRecords    int        `json:"total_source_records"`
	TotalIndexedDocuments uint64     `json:"total_indexed_documents"`
	LastSyncTime          *time.Time `json:"last_sync_time"`
	SyncNeeded            bool       `json:"sync_needed"`
}

type PopularQuery struct {
	Query    string    `json:"query"`
	Count    int64     `json:"count"`
	LastUsed time.Time `json:"last_used"`
}
