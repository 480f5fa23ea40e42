package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"
)

// cellPos 是 rows 中的 0-based 下标（行、列）。
type cellPos struct{ row, col int }

// readXLSX 返回工作表的所有行，以及其中“数值单元格且存成浮点写法”的位置。
// 只有这些位置可以做 normalizeNumeric；文本单元格必须原样交给校验。
func readXLSX(path, sheet string) ([][]string, map[cellPos]bool, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("工作簿没有工作表")
	}
	if sheet == "" {
		sheet = sheets[0]
	} else if !contains(sheets, sheet) {
		return nil, nil, fmt.Errorf("工作表 %q 不存在（现有：%s）", sheet, strings.Join(sheets, ", "))
	}

	// RawCellValue：条码列按存储值读取，避免被数字格式化成科学计数法。
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, err
	}

	numeric := make(map[cellPos]bool)
	for i, row := range rows {
		for j, v := range row {
			if !strings.ContainsAny(v, ".eE") {
				continue
			}
			name, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return nil, nil, err
			}
			typ, err := f.GetCellType(sheet, name)
			if err != nil {
				return nil, nil, err
			}
			// 数值单元格通常不写 t 属性（Unset），少数写成 t="n"。
			if typ == excelize.CellTypeNumber || typ == excelize.CellTypeUnset {
				numeric[cellPos{row: i, col: j}] = true
			}
		}
	}
	return rows, numeric, nil
}

// normalizeNumeric 把 Excel 存成浮点形式的纯数字（如 "4.006381333931E+12"、"710501234567.0"）
// 还原为整数串；其他值原样返回。前导 0 在数值单元格里本来就已丢失，这里无法恢复。
func normalizeNumeric(s string) string {
	t := strings.TrimSpace(s)
	if t == "" || !strings.ContainsAny(t, ".eE") {
		return s
	}
	if strings.ContainsFunc(t, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != '.' && r != 'e' && r != 'E' && r != '+' && r != '-'
	}) {
		return s
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil || v < 0 || v != float64(int64(v)) {
		return s
	}
	return strconv.FormatInt(int64(v), 10)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	// Excel 导出的 CSV 常带 UTF-8 BOM。
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

// readHTML 读取页面中第一个 <table>（例如从表格软件“另存为网页”导出的文件）。
func readHTML(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, err
	}

	tbl := doc.Find("table").First()
	if tbl.Length() == 0 {
		return nil, nil
	}

	var rows [][]string
	tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		// 嵌套表格的行不属于这张表。
		if tr.Closest("table").Get(0) != tbl.Get(0) {
			return
		}
		cells := tr.ChildrenFiltered("th, td").Map(func(_ int, c *goquery.Selection) string {
			return strings.TrimSpace(c.Text())
		})
		rows = append(rows, cells)
	})
	return rows, nil
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
