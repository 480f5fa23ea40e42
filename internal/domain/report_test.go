package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestRunReport_Finalize_OrderSummaryAndUTC(t *testing.T) {
	r := RunReport{
		Input:      "/abs/produk.xlsx",
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Summary:    ReportSummary{Collisions: 2},
		Items: []ItemResult{
			{Row: 4, Status: StatusOK, Outcome: OutcomeRegenerated, RegenReason: RegenDuplicate},
			{Row: 2, Status: StatusOK, Outcome: OutcomeKeptOriginal},
			{Row: 5, Status: StatusFailed, Outcome: OutcomeFailed, ErrorCode: ErrCodeRenderFailed},
			{Row: 3, Status: StatusOK, Outcome: OutcomeChecksummed},
			{Row: 6, Status: StatusOK, Outcome: OutcomeRegenerated, RegenReason: RegenInvalid},
			{Row: 7, Status: StatusOK, Outcome: OutcomeCorrectedChecksum},
		},
	}

	r.Finalize()

	for i := 1; i < len(r.Items); i++ {
		if r.Items[i-1].Row >= r.Items[i].Row {
			t.Fatalf("items 必须按输入行号排序：%d >= %d", r.Items[i-1].Row, r.Items[i].Row)
		}
	}

	s := r.Summary
	if s.Total != 6 || s.Kept != 3 || s.Regenerated != 2 || s.Failed != 1 {
		t.Fatalf("summary 划分不正确：%+v", s)
	}
	if s.Kept+s.Regenerated+s.Failed != s.Total {
		t.Fatalf("kept/regenerated/failed 必须恰好划分批次：%+v", s)
	}
	if s.KeptOriginal != 1 || s.Checksummed != 1 || s.CorrectedChecksum != 1 ||
		s.RegeneratedInvalid != 1 || s.RegeneratedDuplicate != 1 {
		t.Fatalf("细分统计不正确：%+v", s)
	}
	if s.Collisions != 2 {
		t.Fatalf("Collisions 应保留执行层写入的值：%d", s.Collisions)
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\"started_at\":\"2026-02-09T02:00:00Z\"")) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
}

func TestRunReport_MarshalJSON_EmptyItems(t *testing.T) {
	b, err := json.Marshal(RunReport{Error: &RunError{Code: ErrCodeInputEmpty, Msg: "x"}})
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte(`"items":[]`)) {
		t.Fatalf("空 items 应输出 []：%s", string(b))
	}
	if !bytes.Contains(b, []byte(`"code":"input_empty"`)) {
		t.Fatalf("error 字段缺失：%s", string(b))
	}
}
