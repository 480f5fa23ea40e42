// Package app 放运行前的规划逻辑（不做 I/O）。
package app

import (
	"sort"

	"github.com/John-Robertt/chocobarcode/internal/domain"
	"github.com/John-Robertt/chocobarcode/internal/ean13"
)

// DuplicateGroup 是校验后落到同一条码的一组记录。
type DuplicateGroup struct {
	Code ean13.Code
	// Rows 是输入行号（输入顺序）；第一条会保留，其余会被重新生成。
	Rows []int
}

// Plan 是处理前对整批输入的预估。
type Plan struct {
	Total int

	// Valid 是能校验/修复为合法条码的记录数（含重复）。
	Valid   int
	Invalid int

	// Duplicates 是预计因重复而重新生成的记录数（= 各组 len(Rows)-1 之和）。
	Duplicates int
	Groups     []DuplicateGroup
}

// Regenerate 返回预计需要重新生成的记录数。
// 这只是下限：渲染失败的记录不提交，可能让后面的同码记录反而被保留。
func (p Plan) Regenerate() int { return p.Invalid + p.Duplicates }

// PlanDuplicates 按校验后的条码对记录分组，找出会发生重复的组。
//
// - Groups 只包含 len(Rows)>=2 的组，按第一条记录的行号排序
// - 只读：不生成随机条码，不影响之后的处理结果
func PlanDuplicates(records []domain.Record) Plan {
	p := Plan{Total: len(records)}

	index := make(map[ean13.Code]int, len(records))
	groups := make([]DuplicateGroup, 0, 16)

	for _, rec := range records {
		c, _, err := ean13.Validate(rec.Raw)
		if err != nil {
			p.Invalid++
			continue
		}
		p.Valid++

		if idx, ok := index[c]; ok {
			groups[idx].Rows = append(groups[idx].Rows, rec.Row)
			continue
		}
		index[c] = len(groups)
		groups = append(groups, DuplicateGroup{Code: c, Rows: []int{rec.Row}})
	}

	for _, g := range groups {
		if len(g.Rows) < 2 {
			continue
		}
		p.Duplicates += len(g.Rows) - 1
		p.Groups = append(p.Groups, g)
	}
	sort.SliceStable(p.Groups, func(i, j int) bool { return p.Groups[i].Rows[0] < p.Groups[j].Rows[0] })
	return p
}
