// Package run 把读表、规划、逐条分配条码、写表与报告串成一次完整运行。
package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/John-Robertt/chocobarcode/internal/app"
	"github.com/John-Robertt/chocobarcode/internal/batch"
	"github.com/John-Robertt/chocobarcode/internal/config"
	"github.com/John-Robertt/chocobarcode/internal/domain"
	"github.com/John-Robertt/chocobarcode/internal/ean13"
	"github.com/John-Robertt/chocobarcode/internal/infra/fsx"
	"github.com/John-Robertt/chocobarcode/internal/infra/imgx"
	"github.com/John-Robertt/chocobarcode/internal/table"
)

// ReportFileName 是写在输出目录下的运行报告文件名。
const ReportFileName = "chocobarcode_report.json"

// Execute 执行一次 run，并返回对外稳定的 RunReport。
// 单条记录的失败会被降级为 item 级失败；只有读表/输出落盘失败才写入 RunReport.Error。
func Execute(ctx context.Context, eff config.EffectiveConfig, log *zap.Logger) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, log, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, log *zap.Logger, obs Observer) domain.RunReport {
	return execute(ctx, eff, log, obs, imgx.RenderEAN13)
}

func execute(ctx context.Context, eff config.EffectiveConfig, log *zap.Logger, obs Observer, render table.RenderFunc) domain.RunReport {
	if log == nil {
		log = zap.NewNop()
	}
	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Input:     eff.Input,
		DryRun:    eff.DryRun,
		StartedAt: time.Now().UTC(),
	}
	log = log.With(zap.String("run_id", rr.RunID))

	fail := func(code string, err error) domain.RunReport {
		rr.Error = &domain.RunError{Code: code, Msg: err.Error()}
		log.Error("运行失败", zap.String("error_code", code), zap.Error(err))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	// read：输入表级别的错误直接中止，不产生任何输出文件。
	readStarted := time.Now()
	records, err := table.Read(eff.Input, table.ReadOptions{
		Columns: table.Columns(eff.Columns),
		Sheet:   eff.Sheet,
	})
	if err != nil {
		code := table.Code(err)
		if code == "" {
			code = domain.ErrCodeInputUnreadable
		}
		return fail(code, err)
	}
	if obs != nil {
		obs.OnPhaseDone("read", map[string]any{"records": len(records)}, time.Since(readStarted))
	}

	planStarted := time.Now()
	plan := app.PlanDuplicates(records)
	for _, g := range plan.Groups {
		log.Info("输入中存在重复条码", zap.String("barcode", string(g.Code)), zap.Ints("rows", g.Rows))
	}
	if obs != nil {
		obs.OnPhaseDone("plan", map[string]any{
			"valid":      plan.Valid,
			"invalid":    plan.Invalid,
			"duplicates": plan.Duplicates,
			"groups":     len(plan.Groups),
			"regenerate": plan.Regenerate(),
		}, time.Since(planStarted))
	}

	w, err := table.NewWriter(table.Layout{
		Columns:     table.Columns(eff.Columns),
		ImageWidth:  eff.Image.Width,
		ImageHeight: eff.Image.Height,
	}, render)
	if err != nil {
		return fail(domain.ErrCodeOutputWriteFailed, fmt.Errorf("创建输出工作簿失败：%w", err))
	}
	defer w.Close()

	proc := batch.New(ean13.NewGenerator(eff.Seed), log)
	if obs != nil {
		proc.OnItem = obs.OnItemDone
		obs.OnPhaseDone("exec", map[string]any{
			"total":   len(records),
			"dry_run": eff.DryRun,
		}, 0)
	}

	res, err := proc.Run(ctx, records, w)
	rr.Items = res.Items
	rr.Summary.Collisions = res.Summary.Collisions
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return fail(domain.ErrCodeOutputWriteFailed, err)
		}
		// 取消：已处理的部分照常输出。
		rr.Cancelled = true
		log.Warn("运行被取消", zap.Int("done", len(res.Items)), zap.Int("total", len(records)))
	}

	// dry-run：决策与渲染照常进行，但不落盘。
	if !eff.DryRun {
		saveStarted := time.Now()
		if err := save(eff, w); err != nil {
			return fail(domain.ErrCodeOutputWriteFailed, err)
		}
		rr.Output = eff.OutputPath()
		if obs != nil {
			obs.OnPhaseDone("save", map[string]any{
				"rows":   w.Rows(),
				"output": rr.Output,
			}, time.Since(saveStarted))
		}
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()

	if eff.Report && !eff.DryRun {
		if err := writeReport(eff.OutputDir, rr); err != nil {
			return fail(domain.ErrCodeOutputWriteFailed, fmt.Errorf("写入报告失败：%w", err))
		}
	}
	return rr
}

func save(eff config.EffectiveConfig, w *table.Writer) error {
	b, err := w.Bytes()
	if err != nil {
		return fmt.Errorf("序列化输出工作簿失败：%w", err)
	}
	if err := fsx.EnsureDir(eff.OutputDir); err != nil {
		return fmt.Errorf("创建输出目录失败：%w", err)
	}
	if err := fsx.WriteFileAtomicReplace(eff.OutputDir, eff.OutputName, b); err != nil {
		return fmt.Errorf("写入输出工作簿失败：%w", err)
	}
	return nil
}

func writeReport(dir string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(dir, ReportFileName, b)
}
