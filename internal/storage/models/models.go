package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Candidate 候选人主表
type Candidate struct {
	CandidateID     string    `gorm:"type:char(36);primaryKey"`
	PrimaryName     string    `gorm:"type:varchar(255)"`
	PrimaryPhone    string    `gorm:"type:varchar(50);uniqueIndex:idx_candidates_primary_phone_unique"`
	PrimaryEmail    string    `gorm:"type:varchar(255);uniqueIndex:idx_candidates_primary_email_unique"`
	CurrentLocation string    `gorm:"type:varchar(255)"`
	ProfileSummary  string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt       time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// CandidateProfileRecord 候选人结构化档案表。
// ProfileJSON 是上游抽取流水线产出的结构化档案（types.CandidateProfile的JSON），
// ParsedTextPathOSS 指向对象存储里的简历解析文本，深度评估在摘要缺失时回退读取。
type CandidateProfileRecord struct {
	CandidateID       string         `gorm:"type:char(36);primaryKey"`
	ProfileJSON       datatypes.JSON `gorm:"type:json;not null"`
	ParsedTextPathOSS string         `gorm:"type:varchar(1024)"`
	ExtractorVersion  string         `gorm:"type:varchar(50)"`
	CreatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (CandidateProfileRecord) TableName() string {
	return "candidate_profiles"
}

// Job 岗位信息表
type Job struct {
	JobID                      string         `gorm:"type:char(36);primaryKey"`
	JobTitle                   string         `gorm:"type:varchar(255);not null"`
	Department                 string         `gorm:"type:varchar(255)"`
	Location                   string         `gorm:"type:varchar(255)"`
	JobDescriptionText         string         `gorm:"type:text;not null"`
	StructuredRequirementsJSON datatypes.JSON `gorm:"type:json"`
	Status                     string         `gorm:"type:varchar(50);default:'ACTIVE';index:idx_jobs_status"`
	CreatedByUserID            string         `gorm:"type:char(36)"`
	CreatedAt                  time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt                  time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Job) TableName() string {
	return "jobs"
}

// JobVector 存储岗位的整体向量表示
type JobVector struct {
	JobID                 string    `gorm:"type:char(36);primaryKey"`
	VectorRepresentation  []byte    `gorm:"type:mediumblob;not null"` // 存储序列化后的向量
	EmbeddingModelVersion string    `gorm:"type:varchar(100);not null"`
	CreatedAt             time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt             time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
	Job                   Job       `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (JobVector) TableName() string {
	return "job_vectors"
}

// JobChunkVector 岗位描述分块后的子向量表。
// 整体向量缺失时，匹配流程取各子向量的均值作为查询向量。
type JobChunkVector struct {
	ChunkDBID             uint64    `gorm:"primaryKey;autoIncrement"`
	JobID                 string    `gorm:"type:char(36);not null;index:idx_jcv_job_id;uniqueIndex:idx_jcv_job_chunk,priority:1"`
	ChunkIDInJob          int       `gorm:"not null;uniqueIndex:idx_jcv_job_chunk,priority:2"`
	ChunkType             string    `gorm:"type:varchar(50)"` // responsibilities / requirements / general
	VectorRepresentation  []byte    `gorm:"type:mediumblob;not null"`
	EmbeddingModelVersion string    `gorm:"type:varchar(100);not null"`
	CreatedAt             time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	Job *Job `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (JobChunkVector) TableName() string {
	return "job_chunk_vectors"
}

// MatchRun 匹配运行记录表，记录每次匹配的参数、状态和最终结果
type MatchRun struct {
	RunID           string         `gorm:"type:char(36);primaryKey"`
	JobID           string         `gorm:"type:char(36);not null;index:idx_mr_job_id"`
	Status          string         `gorm:"type:varchar(50);not null;index:idx_mr_status"`
	TopN            int            `gorm:"not null"`
	TotalCandidates int            `gorm:"default:0"`
	DeepStageRan    bool           `gorm:"default:false"`
	EmptyReason     string         `gorm:"type:varchar(100)"`
	FailureReason   string         `gorm:"type:text"`
	ResultJSON      datatypes.JSON `gorm:"type:json"`
	ScoringVersion  string         `gorm:"type:varchar(50)"`
	StartedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	CompletedAt     *time.Time     `gorm:"type:datetime(6)"`

	Job *Job `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (MatchRun) TableName() string {
	return "match_runs"
}

// StringToJSON Helper function to convert string to datatypes.JSON
func StringToJSON(s string) datatypes.JSON {
	return datatypes.JSON(s)
}

// MapToJSON Helper function to convert map[string]interface{} to datatypes.JSON
func MapToJSON(m map[string]interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}
