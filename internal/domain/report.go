package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Outcome 是每条记录的最终分类。
const (
	OutcomeKeptOriginal      = "kept_original"
	OutcomeChecksummed       = "checksummed"
	OutcomeCorrectedChecksum = "corrected_checksum"
	OutcomeRegenerated       = "regenerated"
	OutcomeFailed            = "failed"
)

// 重新生成的原因。
const (
	RegenInvalid   = "invalid"
	RegenDuplicate = "duplicate"
)

const (
	ErrCodeRenderFailed       = "render_failed"
	ErrCodeWriteFailed        = "write_failed"
	ErrCodeInputUnreadable    = "input_unreadable"
	ErrCodeInputUnsupported   = "input_unsupported"
	ErrCodeInputMissingColumn = "input_missing_column"
	ErrCodeInputEmpty         = "input_empty"
	ErrCodeConfigNotFound     = "config_not_found"
	ErrCodeConfigInvalid      = "config_invalid"
	ErrCodeConfigMissingInput = "config_missing_input"
	ErrCodeOutputWriteFailed  = "output_write_failed"
)

// FailureMarker 写在输出表图片列，表示该行未能生成条码。
const FailureMarker = "GAGAL GENERATE BARCODE"

// RunReport 是对外稳定输出（report JSON / stdout JSON）的结构。
type RunReport struct {
	RunID  string `json:"run_id"`
	Input  string `json:"input"`
	Output string `json:"output"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Cancelled 表示调用方在记录之间放弃了本次运行（已处理的部分仍然输出）。
	Cancelled bool      `json:"cancelled"`
	// Error 非空表示整次运行级别的失败（配置/输入格式/输出落盘）。
	Error     *RunError `json:"error"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type RunError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// ReportSummary 中 Kept/Regenerated/Failed 三者恰好划分整个批次。
// 其余字段只是细分，不参与划分。
type ReportSummary struct {
	Total       int `json:"total"`
	Kept        int `json:"kept"`
	Regenerated int `json:"regenerated"`
	Failed      int `json:"failed"`

	KeptOriginal         int `json:"kept_original"`
	Checksummed          int `json:"checksummed"`
	CorrectedChecksum    int `json:"corrected_checksum"`
	RegeneratedInvalid   int `json:"regenerated_invalid"`
	RegeneratedDuplicate int `json:"regenerated_duplicate"`

	// Collisions 是生成器随机碰撞次数，无法从 items 推出，由执行层写入。
	Collisions int `json:"collisions"`
}

type ItemResult struct {
	Row   int    `json:"row"`
	Name  string `json:"name"`
	Input string `json:"input"`

	Barcode     string `json:"barcode"`
	Outcome     string `json:"outcome"`
	RegenReason string `json:"regen_reason,omitempty"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Add 把一条结果计入 summary。
func (s *ReportSummary) Add(it ItemResult) {
	s.Total++
	if it.Status == StatusFailed || it.Outcome == OutcomeFailed {
		s.Failed++
		return
	}
	switch it.Outcome {
	case OutcomeRegenerated:
		s.Regenerated++
		switch it.RegenReason {
		case RegenInvalid:
			s.RegeneratedInvalid++
		case RegenDuplicate:
			s.RegeneratedDuplicate++
		}
	case OutcomeKeptOriginal:
		s.Kept++
		s.KeptOriginal++
	case OutcomeChecksummed:
		s.Kept++
		s.Checksummed++
	case OutcomeCorrectedChecksum:
		s.Kept++
		s.CorrectedChecksum++
	}
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 按输入行号稳定排序（即输入顺序）
// 3) summary 由 items 计算得出（Collisions 保留执行层写入的值）
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool { return r.Items[i].Row < r.Items[j].Row })

	s := ReportSummary{Collisions: r.Summary.Collisions}
	for _, it := range r.Items {
		s.Add(it)
	}
	r.Summary = s
}

// MarshalJSON 保证 items 即使为空也输出 []（而不是 null）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	a := Alias(r)
	if a.Items == nil {
		a.Items = []ItemResult{}
	}
	return json.Marshal(a)
}
