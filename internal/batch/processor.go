// Package batch 实现逐条记录的条码决策（校验/修复 → 查重 → 重新生成 → 提交）。
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/chocobarcode/internal/domain"
	"github.com/John-Robertt/chocobarcode/internal/ean13"
)

// Sink 是渲染/写行的外部协作者。
//
// 约束：
// - Accept 返回错误 => 该记录判为失败，条码不提交（被放弃）
// - Reject 用于写出失败标记行；它的错误只记日志，不再影响结果
type Sink interface {
	Accept(ctx context.Context, rec domain.Record, code ean13.Code) error
	Reject(ctx context.Context, rec domain.Record, cause error) error
}

// StageError 标记外部协作者在哪个阶段失败（render / write）。
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

func RenderError(err error) error { return &StageError{Stage: "render", Err: err} }

func WriteError(err error) error { return &StageError{Stage: "write", Err: err} }

// Result 是一次 Run 的产物。
type Result struct {
	Items     []domain.ItemResult
	Summary   domain.ReportSummary
	Committed []ean13.Code
}

// Processor 驱动一批记录的决策。
//
// 每次 Run 都新建已用条码集合，运行结束即丢弃；Processor 本身可重复使用，
// 但不能并发调用 Run。
type Processor struct {
	gen *ean13.Generator
	log *zap.Logger

	// OnItem 在每条记录处理完成后调用（进度展示用）。
	OnItem func(idx, total int, res domain.ItemResult, dur time.Duration)

	collisions int
}

// New 创建 Processor。gen 的回调只在 Run 期间被临时包装，Run 返回前恢复原值，
// 所以同一个生成器可以交给多个 Processor 先后使用。
func New(gen *ean13.Generator, log *zap.Logger) *Processor {
	if gen == nil {
		gen = ean13.NewGenerator(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{gen: gen, log: log}
}

// hookGenerator 把生成器的碰撞/生成事件接到日志与计数上（保留调用方的回调），
// 返回恢复函数。
func (p *Processor) hookGenerator() (restore func()) {
	gen := p.gen
	prevCollision, prevGenerated := gen.OnCollision, gen.OnGenerated

	gen.OnCollision = func(c ean13.Code, attempt int) {
		p.collisions++
		p.log.Debug("随机条码已存在，重试", zap.String("barcode", string(c)), zap.Int("attempt", attempt))
		if prevCollision != nil {
			prevCollision(c, attempt)
		}
	}
	gen.OnGenerated = func(c ean13.Code, attempts int) {
		p.log.Debug("生成新的唯一条码", zap.String("barcode", string(c)), zap.Int("attempts", attempts))
		if prevGenerated != nil {
			prevGenerated(c, attempts)
		}
	}
	return func() {
		gen.OnCollision, gen.OnGenerated = prevCollision, prevGenerated
	}
}

// Run 按输入顺序逐条处理 records。
//
// 顺序是正确性约束：第 N 条只可能与 1..N-1 条已提交的条码冲突。
// ctx 只在记录之间检查；取消时返回已完成部分与 ctx.Err()。
func (p *Processor) Run(ctx context.Context, records []domain.Record, sink Sink) (Result, error) {
	if sink == nil {
		sink = nopSink{}
	}
	p.collisions = 0
	defer p.hookGenerator()()

	used := ean13.NewSet()
	res := Result{Items: make([]domain.ItemResult, 0, len(records))}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			res.Summary.Collisions = p.collisions
			res.Committed = used.Values()
			return res, err
		}

		started := time.Now()
		it := p.processOne(ctx, rec, used, sink)
		res.Items = append(res.Items, it)
		res.Summary.Add(it)

		if p.OnItem != nil {
			p.OnItem(i+1, len(records), it, time.Since(started))
		}
	}

	res.Summary.Collisions = p.collisions
	res.Committed = used.Values()
	return res, nil
}

func (p *Processor) processOne(ctx context.Context, rec domain.Record, used *ean13.Set, sink Sink) domain.ItemResult {
	it := domain.ItemResult{
		Row:    rec.Row,
		Name:   rec.Name,
		Input:  rec.Raw,
		Status: domain.StatusOK,
	}

	code, outcome, reason := p.decide(rec, used)

	if err := sink.Accept(ctx, rec, code); err != nil {
		// 渲染/写行失败：不提交，条码作废（不重试其他条码）。
		it.Status = domain.StatusFailed
		it.Outcome = domain.OutcomeFailed
		it.ErrorCode = errorCode(err)
		it.ErrorMsg = fmt.Sprintf("条码 %s 已放弃：%v", code, err)
		p.log.Error("记录处理失败",
			zap.Int("row", rec.Row),
			zap.String("name", rec.Name),
			zap.String("barcode", string(code)),
			zap.Error(err),
		)
		if rerr := sink.Reject(ctx, rec, err); rerr != nil {
			p.log.Error("写入失败标记行失败", zap.Int("row", rec.Row), zap.Error(rerr))
		}
		return it
	}

	used.Add(code)
	it.Barcode = string(code)
	it.Outcome = outcome
	it.RegenReason = reason

	p.log.Info("条码已提交",
		zap.Int("row", rec.Row),
		zap.String("name", rec.Name),
		zap.String("barcode", string(code)),
		zap.String("outcome", outcome),
	)
	return it
}

// decide 实现决策表：invalid => 重新生成；valid 但已提交 => 重新生成；否则使用校验结果。
func (p *Processor) decide(rec domain.Record, used *ean13.Set) (ean13.Code, string, string) {
	c, kind, err := ean13.Validate(rec.Raw)
	if err != nil {
		if ean13.IsInvalid(err) {
			p.log.Warn("原始条码无效，重新生成",
				zap.Int("row", rec.Row), zap.String("input", rec.Raw), zap.Error(err))
		} else {
			p.log.Error("原始条码校验异常，按无效处理",
				zap.Int("row", rec.Row), zap.String("input", rec.Raw), zap.Error(err))
		}
		return p.gen.Next(used), domain.OutcomeRegenerated, domain.RegenInvalid
	}

	if used.Has(c) {
		p.log.Warn("校验后的条码与本批次已提交条码重复，重新生成",
			zap.Int("row", rec.Row), zap.String("input", rec.Raw), zap.String("validated", string(c)))
		return p.gen.Next(used), domain.OutcomeRegenerated, domain.RegenDuplicate
	}

	switch kind {
	case ean13.KindKeptOriginal:
		return c, domain.OutcomeKeptOriginal, ""
	case ean13.KindChecksummed:
		return c, domain.OutcomeChecksummed, ""
	default:
		p.log.Info("校验位错误，已覆盖",
			zap.Int("row", rec.Row),
			zap.String("payload", c.Payload()),
			zap.Int("check_digit", c.CheckDigit()),
			zap.String("input", rec.Raw),
		)
		return c, domain.OutcomeCorrectedChecksum, ""
	}
}

func errorCode(err error) string {
	var se *StageError
	if errors.As(err, &se) && se.Stage == "write" {
		return domain.ErrCodeWriteFailed
	}
	return domain.ErrCodeRenderFailed
}

type nopSink struct{}

func (nopSink) Accept(context.Context, domain.Record, ean13.Code) error { return nil }

func (nopSink) Reject(context.Context, domain.Record, error) error { return nil }
