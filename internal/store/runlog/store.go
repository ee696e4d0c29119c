package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"arbiter/internal/arbitration"
	"arbiter/internal/orchestrator"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNotFound 表示 trace_id 对应的运行记录不存在。
var ErrNotFound = errors.New("run record not found")

// Store 管理编排运行日志，方便后续排查/可视化。
// 使用 Gorm + SQLite，WAL 模式下允许少量并发读。
type Store struct {
	db *gorm.DB
}

// RunRecord 是对外暴露的运行日志条目。
type RunRecord struct {
	ID                  int64                                 `json:"id"`
	TraceID             string                                `json:"trace_id"`
	Timestamp           int64                                 `json:"ts"`
	Query               string                                `json:"query"`
	FinalOutput         string                                `json:"final_output"`
	ArbitrationDecision string                                `json:"arbitration_decision"`
	Divergence          float64                               `json:"divergence"`
	Scores              map[string]arbitration.ScoreBreakdown `json:"scores,omitempty"`
	WinningComposite    float64                               `json:"winning_composite"`
	SelectedCandidate   string                                `json:"selected_candidate"`
	Degraded            bool                                  `json:"degraded"`
	Verified            bool                                  `json:"verified"`
	Stages              []orchestrator.StageTrace             `json:"stages"`
}

// RunQuery 用于筛选运行日志。
type RunQuery struct {
	Decision string
	Degraded *bool
	Limit    int
	Offset   int
}

// NewStore 初始化 SQLite 存储并自动建表。
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("run log: 存储路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&RunModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// Close 关闭底层 DB。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun 落库一次完整的编排结果。trace_id 冲突时覆盖旧记录（重放幂等）。
func (s *Store) SaveRun(ctx context.Context, res orchestrator.Result) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run log store 未初始化")
	}
	m, err := newRunModel(res)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "trace_id"}},
			UpdateAll: true,
		}).
		Create(&m).Error
}

// ListRuns 按时间倒序返回运行记录。
func (s *Store) ListRuns(ctx context.Context, q RunQuery) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run log store 未初始化")
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	tx := s.db.WithContext(ctx).Model(&RunModel{}).Order("ts DESC, id DESC").Limit(limit)
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	if dec := strings.TrimSpace(q.Decision); dec != "" {
		tx = tx.Where("arbitration_decision = ?", dec)
	}
	if q.Degraded != nil {
		tx = tx.Where("degraded = ?", *q.Degraded)
	}
	var models []RunModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	records := make([]RunRecord, 0, len(models))
	for _, m := range models {
		rec, err := toRunRecord(m)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// GetRun 按 trace_id 查询单条记录。
func (s *Store) GetRun(ctx context.Context, traceID string) (RunRecord, error) {
	if s == nil || s.db == nil {
		return RunRecord{}, fmt.Errorf("run log store 未初始化")
	}
	traceID = strings.TrimSpace(traceID)
	if traceID == "" {
		return RunRecord{}, fmt.Errorf("trace_id 必填")
	}
	var m RunModel
	err := s.db.WithContext(ctx).Where("trace_id = ?", traceID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrNotFound, traceID)
	}
	if err != nil {
		return RunRecord{}, err
	}
	return toRunRecord(m)
}

func newRunModel(res orchestrator.Result) (RunModel, error) {
	stagesJSON, err := json.Marshal(res.Provenance.Stages)
	if err != nil {
		return RunModel{}, fmt.Errorf("序列化 stages 失败: %w", err)
	}
	scoresJSON, err := json.Marshal(res.Provenance.Scores)
	if err != nil {
		return RunModel{}, fmt.Errorf("序列化 scores 失败: %w", err)
	}
	now := time.Now().Unix()
	return RunModel{
		TraceID:             res.TraceID,
		Timestamp:           now,
		Query:               res.Query,
		FinalOutput:         res.FinalOutput,
		ArbitrationDecision: string(res.Provenance.ArbitrationDecision),
		Divergence:          res.Provenance.Divergence,
		WinningComposite:    res.Provenance.WinningComposite,
		SelectedCandidate:   res.Provenance.SelectedCandidate,
		Degraded:            res.Provenance.Degraded,
		Verified:            res.Provenance.Verified,
		StagesJSON:          datatypes.JSON(stagesJSON),
		ScoresJSON:          datatypes.JSON(scoresJSON),
		CreatedAtUnix:       now,
	}, nil
}

func toRunRecord(m RunModel) (RunRecord, error) {
	rec := RunRecord{
		ID:                  m.ID,
		TraceID:             m.TraceID,
		Timestamp:           m.Timestamp,
		Query:               m.Query,
		FinalOutput:         m.FinalOutput,
		ArbitrationDecision: m.ArbitrationDecision,
		Divergence:          m.Divergence,
		WinningComposite:    m.WinningComposite,
		SelectedCandidate:   m.SelectedCandidate,
		Degraded:            m.Degraded,
		Verified:            m.Verified,
	}
	if len(m.StagesJSON) > 0 {
		if err := json.Unmarshal(m.StagesJSON, &rec.Stages); err != nil {
			return RunRecord{}, fmt.Errorf("解析 stages 失败: %w", err)
		}
	}
	if len(m.ScoresJSON) > 0 {
		if err := json.Unmarshal(m.ScoresJSON, &rec.Scores); err != nil {
			return RunRecord{}, fmt.Errorf("解析 scores 失败: %w", err)
		}
	}
	return rec, nil
}
