package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/agentcouncil/roundtable/agent"
	"github.com/agentcouncil/roundtable/deliberation"
)

// ErrResultNotFound 轮次结果不存在
var ErrResultNotFound = errors.New("round result not found")

// RoundRecord is the archived form of a terminal RoundResult. Phase
// collections are stored as JSON blobs; the scalar verdict columns stay
// queryable for downstream indexing.
type RoundRecord struct {
	TaskID           string    `gorm:"primaryKey;size:64"`
	TaskContent      string    `gorm:"type:text"`
	Analyses         []byte    `gorm:"type:blob"`
	Challenges       []byte    `gorm:"type:blob"`
	Votes            []byte    `gorm:"type:blob"`
	Synthesis        []byte    `gorm:"type:blob"`
	ConsensusReached bool      `gorm:"index"`
	ApprovalRate     float64
	DurationMillis   int64
	StartedAt        time.Time
	CreatedAt        time.Time
}

// TableName keeps the table name stable across gorm naming changes.
func (RoundRecord) TableName() string { return "round_results" }

// ResultStore archives terminal RoundResults in sqlite.
type ResultStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewResultStore opens (and migrates) the archive at path.
func NewResultStore(path string, logger *zap.Logger) (*ResultStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open result store %s: %w", path, err)
	}
	if err := db.AutoMigrate(&RoundRecord{}); err != nil {
		return nil, fmt.Errorf("migrate result store: %w", err)
	}
	return &ResultStore{
		db:     db,
		logger: logger.With(zap.String("component", "result_store")),
	}, nil
}

// Save archives one terminal result. Saving the same task_id twice is an
// error; results are immutable.
func (s *ResultStore) Save(ctx context.Context, result *deliberation.RoundResult) error {
	record, err := toRecord(result)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("archive round %s: %w", result.TaskID, err)
	}
	s.logger.Debug("round archived", zap.String("task_id", result.TaskID))
	return nil
}

// Get retrieves an archived result by task ID.
func (s *ResultStore) Get(ctx context.Context, taskID string) (*deliberation.RoundResult, error) {
	var record RoundRecord
	err := s.db.WithContext(ctx).First(&record, "task_id = ?", taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch round %s: %w", taskID, err)
	}
	return fromRecord(&record)
}

// List returns the most recent archived results, newest first.
func (s *ResultStore) List(ctx context.Context, limit int) ([]*deliberation.RoundResult, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []RoundRecord
	err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	results := make([]*deliberation.RoundResult, 0, len(records))
	for i := range records {
		r, err := fromRecord(&records[i])
		if err != nil {
			s.logger.Warn("skipping corrupt record", zap.String("task_id", records[i].TaskID), zap.Error(err))
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

func toRecord(result *deliberation.RoundResult) (*RoundRecord, error) {
	analyses, err := json.Marshal(result.Analyses)
	if err != nil {
		return nil, fmt.Errorf("encode analyses: %w", err)
	}
	challenges, err := json.Marshal(result.Challenges)
	if err != nil {
		return nil, fmt.Errorf("encode challenges: %w", err)
	}
	votes, err := json.Marshal(result.Votes)
	if err != nil {
		return nil, fmt.Errorf("encode votes: %w", err)
	}
	synthesis, err := json.Marshal(result.Synthesis)
	if err != nil {
		return nil, fmt.Errorf("encode synthesis: %w", err)
	}
	content := ""
	if result.Task != nil {
		content = result.Task.Content
	}
	return &RoundRecord{
		TaskID:           result.TaskID,
		TaskContent:      content,
		Analyses:         analyses,
		Challenges:       challenges,
		Votes:            votes,
		Synthesis:        synthesis,
		ConsensusReached: result.ConsensusReached,
		ApprovalRate:     result.ApprovalRate,
		DurationMillis:   result.Duration.Milliseconds(),
		StartedAt:        result.StartedAt,
	}, nil
}

func fromRecord(record *RoundRecord) (*deliberation.RoundResult, error) {
	result := &deliberation.RoundResult{
		TaskID:           record.TaskID,
		Task:             &agent.Task{ID: record.TaskID, Content: record.TaskContent},
		ConsensusReached: record.ConsensusReached,
		ApprovalRate:     record.ApprovalRate,
		Duration:         time.Duration(record.DurationMillis) * time.Millisecond,
		StartedAt:        record.StartedAt,
	}
	if err := json.Unmarshal(record.Analyses, &result.Analyses); err != nil {
		return nil, fmt.Errorf("decode analyses: %w", err)
	}
	if err := json.Unmarshal(record.Challenges, &result.Challenges); err != nil {
		return nil, fmt.Errorf("decode challenges: %w", err)
	}
	if err := json.Unmarshal(record.Votes, &result.Votes); err != nil {
		return nil, fmt.Errorf("decode votes: %w", err)
	}
	if err := json.Unmarshal(record.Synthesis, &result.Synthesis); err != nil {
		return nil, fmt.Errorf("decode synthesis: %w", err)
	}
	return result, nil
}
