package domain

// Record 是从输入表读取的一行。
//
// 约束：
// - Row 为输入表中的 1-based 行号（含表头行），用于报告定位
// - Name/Raw 已 trim；Raw 按字符串处理，不做数值转换（保留前导 0）
type Record struct {
	Row  int
	Name string
	Raw  string
}
