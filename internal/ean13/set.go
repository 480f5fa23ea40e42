package ean13

// Membership 是生成器需要的只读视图。
type Membership interface {
	Has(c Code) bool
}

// Set 是一次运行内已提交的条码集合。
//
// 约束：只增不减；不做并发保护（由单个 batch run 独占）。
type Set struct {
	m     map[Code]struct{}
	order []Code
}

func NewSet() *Set {
	return &Set{m: make(map[Code]struct{}, 128)}
}

func (s *Set) Has(c Code) bool {
	if s == nil {
		return false
	}
	_, ok := s.m[c]
	return ok
}

// Add 插入 c；返回 false 表示 c 已存在（集合不变）。
func (s *Set) Add(c Code) bool {
	if s.m == nil {
		s.m = make(map[Code]struct{}, 128)
	}
	if _, ok := s.m[c]; ok {
		return false
	}
	s.m[c] = struct{}{}
	s.order = append(s.order, c)
	return true
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.m)
}

// Values 按提交顺序返回副本。
func (s *Set) Values() []Code {
	if s == nil {
		return nil
	}
	return append([]Code(nil), s.order...)
}
