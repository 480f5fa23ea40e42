package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/chocobarcode/internal/app/run"
	"github.com/John-Robertt/chocobarcode/internal/config"
	"github.com/John-Robertt/chocobarcode/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：长时间无条目完成时也会定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total int
	done  int
	ok    int
	fail  int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "write"
	modeHint := ""
	if eff.DryRun {
		mode = "dry-run"
		modeHint = " (不写入任何文件)"
	}

	fmt.Fprintf(p.w, "[%s] chocobarcode run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  input: %s\n", eff.Input)
	if eff.Sheet != "" {
		fmt.Fprintf(p.w, "  sheet: %s\n", eff.Sheet)
	}
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  columns: %q / %q / %q\n", eff.Columns.ProductName, eff.Columns.Barcode, eff.Columns.Image)
	fmt.Fprintf(p.w, "  image: %dx%d\n", eff.Image.Width, eff.Image.Height)
	fmt.Fprintf(p.w, "  seed: %s\n", formatSeed(eff.Seed))
	if eff.ConfigFile != "" {
		fmt.Fprintf(p.w, "  config: %s\n", truncate(eff.ConfigFile, 120))
	}

	if !eff.DryRun {
		fmt.Fprintln(p.w, "输出:")
		fmt.Fprintf(p.w, "  out: %s\n", eff.OutputPath())
		if eff.Report {
			fmt.Fprintf(p.w, "  report: %s\n", filepath.Join(eff.OutputDir, run.ReportFileName))
		}
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "read":
		fmt.Fprintf(p.w, "读取: records=%d (%s)\n", intField(fields, "records"), formatShortDuration(dur))
	case "plan":
		fmt.Fprintf(p.w, "规划: valid=%d invalid=%d duplicates=%d groups=%d regenerate>=%d (%s)\n",
			intField(fields, "valid"),
			intField(fields, "invalid"),
			intField(fields, "duplicates"),
			intField(fields, "groups"),
			intField(fields, "regenerate"),
			formatShortDuration(dur),
		)
	case "exec":
		p.total = intField(fields, "total")
		fmt.Fprintf(p.w, "执行: total=%d\n\n", p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	case "save":
		p.stopTickerLocked()
		fmt.Fprintf(p.w, "\n保存: rows=%d (%s)\n", intField(fields, "rows"), formatShortDuration(dur))
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// idx/total 由 run 层给出；这里同时维护自己的计数，供 keepalive 使用。
	p.done = idx
	p.total = total

	name := truncate(res.Name, 40)
	if res.Status == domain.StatusFailed {
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] 第%d行 %s FAIL %s: %s (%s)\n",
			idx, total, res.Row, name, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	} else {
		p.ok++
		fmt.Fprintf(p.w, "[%d/%d] 第%d行 %s %s %s%s (%s)\n",
			idx, total, res.Row, name, res.Barcode, formatOutcome(res), formatInputNote(res), formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.done >= p.total {
		p.stopTickerLocked()
	}
}

func (p *progressUI) OnProgress(done, total, ok, fail int, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d elapsed=%s\n",
		done, total, ok, fail, formatElapsed(elapsed),
	)
	p.lastPrinted = time.Now()
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}
	stopCh := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d elapsed=%s\n",
						p.done, p.total, p.ok, p.fail, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()
}

func (p *progressUI) stopTickerLocked() {
	if !p.tickerStarted {
		return
	}
	close(p.stopCh)
	p.tickerStarted = false
}

func formatOutcome(res domain.ItemResult) string {
	switch res.Outcome {
	case domain.OutcomeKeptOriginal:
		return "KEEP"
	case domain.OutcomeChecksummed:
		return "CHECKSUM"
	case domain.OutcomeCorrectedChecksum:
		return "FIXED"
	case domain.OutcomeRegenerated:
		if res.RegenReason != "" {
			return "NEW(" + res.RegenReason + ")"
		}
		return "NEW"
	default:
		return strings.ToUpper(res.Outcome)
	}
}

// formatInputNote 在条码与输入不同时附上原始输入，方便对照。
func formatInputNote(res domain.ItemResult) string {
	in := strings.TrimSpace(res.Input)
	if in == res.Barcode {
		return ""
	}
	if in == "" {
		return " input=<empty>"
	}
	return " input=" + truncate(in, 40)
}

func formatSeed(seed int64) string {
	if seed == 0 {
		return "time"
	}
	return fmt.Sprintf("%d", seed)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	default:
		return 0
	}
}
