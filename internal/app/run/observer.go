package run

import (
	"time"

	"github.com/John-Robertt/chocobarcode/internal/config"
	"github.com/John-Robertt/chocobarcode/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - OnItemDone 只来自执行 goroutine；OnProgress 由 CLI 的 ticker 触发，实现方需自行加锁。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束/就绪时调用（read/plan/exec/save）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在每条记录处理完成时调用（按输入顺序）。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
	// OnProgress 用于 keepalive（通常由 CLI 自己 ticker 触发；run 层不强制调用）。
	OnProgress(done, total, ok, fail int, elapsed time.Duration)
}
