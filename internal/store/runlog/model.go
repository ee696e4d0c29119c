package runlog

import (
	"gorm.io/datatypes"
)

// RunModel 是编排运行记录的持久化模型。
// stages/scores 以 JSON 文本列存储，保留完整 provenance。
type RunModel struct {
	ID                  int64          `gorm:"column:id;primaryKey"`
	TraceID             string         `gorm:"column:trace_id;uniqueIndex"`
	Timestamp           int64          `gorm:"column:ts;index"`
	Query               string         `gorm:"column:query"`
	FinalOutput         string         `gorm:"column:final_output"`
	ArbitrationDecision string         `gorm:"column:arbitration_decision"`
	Divergence          float64        `gorm:"column:divergence"`
	WinningComposite    float64        `gorm:"column:winning_composite"`
	SelectedCandidate   string         `gorm:"column:selected_candidate"`
	Degraded            bool           `gorm:"column:degraded"`
	Verified            bool           `gorm:"column:verified"`
	StagesJSON          datatypes.JSON `gorm:"column:stages_json;type:TEXT"`
	ScoresJSON          datatypes.JSON `gorm:"column:scores_json;type:TEXT"`
	CreatedAtUnix       int64          `gorm:"column:created_at"`
}

func (RunModel) TableName() string { return "orchestration_runs" }
