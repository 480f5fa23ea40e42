package ean13

import (
	"fmt"
	"math/rand"
	"time"
)

const (
	payloadMin = 100_000_000_000 // 10^11
	payloadMax = 999_999_999_999 // 10^12 - 1
)

// Generator 生成“校验位正确 + 不在集合内”的新条码（UniqueBarcodeGenerator）。
//
// 约束：
// - 重试循环无上限：10^12 的空间里连续碰撞的概率可以忽略，但实现不假设有界
// - 不修改集合：调用方负责把返回值 Add 进去
// - 非并发安全：只在单线程的 batch 循环里使用
type Generator struct {
	rnd *rand.Rand

	// OnCollision 在随机候选已被占用时调用（只用于诊断日志，不影响正确性）。
	OnCollision func(c Code, attempt int)
	// OnGenerated 在找到可用候选时调用。
	OnGenerated func(c Code, attempts int)
}

// NewGenerator 创建生成器；seed==0 时用当前时间做种子。
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewGeneratorWithRand(rand.New(rand.NewSource(seed)))
}

// NewGeneratorWithRand 使用调用方提供的随机源。
func NewGeneratorWithRand(rnd *rand.Rand) *Generator {
	return &Generator{rnd: rnd}
}

// Next 返回一个不在 used 中的新条码。
func (g *Generator) Next(used Membership) Code {
	for attempt := 1; ; attempt++ {
		c := g.candidate()
		if used != nil && used.Has(c) {
			if g.OnCollision != nil {
				g.OnCollision(c, attempt)
			}
			continue
		}
		if g.OnGenerated != nil {
			g.OnGenerated(c, attempt)
		}
		return c
	}
}

func (g *Generator) candidate() Code {
	n := payloadMin + g.rnd.Int63n(payloadMax-payloadMin+1)
	payload := fmt.Sprintf("%012d", n)
	return Code(payload + string(rune('0'+Checksum(payload))))
}
