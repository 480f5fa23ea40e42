// Package table 是输入/输出表格的适配层：读取 (商品名, 条码) 行，写出带条码图片的 xlsx。
package table

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/chocobarcode/internal/domain"
)

// Columns 是输入/输出表的列名。
type Columns struct {
	ProductName string
	Barcode     string
	Image       string
}

// DefaultColumns 是模板表头。
var DefaultColumns = Columns{
	ProductName: "Nama Produk",
	Barcode:     "Barcode (EAN-13)",
	Image:       "Gambar Barcode",
}

// FormatError 是输入表级别的错误：整次运行直接中止，不产生输出文件。
type FormatError struct {
	Code   string
	Path   string
	Column string
	Err    error
}

func (e *FormatError) Error() string {
	switch e.Code {
	case domain.ErrCodeInputMissingColumn:
		return fmt.Sprintf("%s：输入表 %q 缺少列 %q", e.Code, e.Path, e.Column)
	case domain.ErrCodeInputEmpty:
		return fmt.Sprintf("%s：输入表 %q 没有数据行", e.Code, e.Path)
	case domain.ErrCodeInputUnsupported:
		return fmt.Sprintf("%s：不支持的输入格式 %q（支持 .xlsx/.xlsm/.csv/.html）", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：读取输入表 %q 失败：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：%q", e.Code, e.Path)
	}
}

func (e *FormatError) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *FormatError 则返回空串。
func Code(err error) string {
	var e *FormatError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ReadOptions 控制输入表读取。
type ReadOptions struct {
	Columns Columns
	// Sheet 只对 xlsx 生效；为空时读取第一个工作表。
	Sheet   string
}

// Read 按扩展名选择读取器，返回按输入顺序排列的记录。
//
// 规则：
// - 第一行是表头；两列（商品名/条码）都必须存在
// - 单元格值 trim 后按字符串处理（条码不转数字）
// - 商品名与条码都为空的行视为空行，跳过
// - 没有任何数据行 => input_empty
func Read(path string, opt ReadOptions) ([]domain.Record, error) {
	if opt.Columns.ProductName == "" || opt.Columns.Barcode == "" {
		opt.Columns = DefaultColumns
	}

	var (
		rows    [][]string
		err     error
		numeric map[cellPos]bool
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, numeric, err = readXLSX(path, opt.Sheet)
	case ".csv":
		rows, err = readCSV(path)
	case ".html", ".htm":
		rows, err = readHTML(path)
	default:
		return nil, &FormatError{Code: domain.ErrCodeInputUnsupported, Path: path}
	}
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, &FormatError{Code: domain.ErrCodeInputUnreadable, Path: path, Err: err}
	}

	return toRecords(path, rows, opt.Columns, numeric)
}

// numeric 标出 xlsx 中存成浮点写法的数值单元格；只有条码列上的这些位置会被还原为整数串。
func toRecords(path string, rows [][]string, cols Columns, numeric map[cellPos]bool) ([]domain.Record, error) {
	if len(rows) == 0 {
		return nil, &FormatError{Code: domain.ErrCodeInputEmpty, Path: path}
	}

	header := rows[0]
	nameIdx := columnIndex(header, cols.ProductName)
	if nameIdx < 0 {
		return nil, &FormatError{Code: domain.ErrCodeInputMissingColumn, Path: path, Column: cols.ProductName}
	}
	codeIdx := columnIndex(header, cols.Barcode)
	if codeIdx < 0 {
		return nil, &FormatError{Code: domain.ErrCodeInputMissingColumn, Path: path, Column: cols.Barcode}
	}

	out := make([]domain.Record, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		name := cell(rows[i], nameIdx)
		raw := cell(rows[i], codeIdx)
		if numeric[cellPos{row: i, col: codeIdx}] {
			raw = normalizeNumeric(raw)
		}
		if name == "" && raw == "" {
			continue
		}
		out = append(out, domain.Record{
			Row:  i + 1,
			Name: name,
			Raw:  raw,
		})
	}
	if len(out) == 0 {
		return nil, &FormatError{Code: domain.ErrCodeInputEmpty, Path: path}
	}
	return out, nil
}

// columnIndex 先精确匹配（trim 后），再退化为大小写不敏感匹配。
func columnIndex(header []string, name string) int {
	name = strings.TrimSpace(name)
	for i, h := range header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
