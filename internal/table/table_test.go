package table

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/John-Robertt/chocobarcode/internal/batch"
	"github.com/John-Robertt/chocobarcode/internal/domain"
	"github.com/John-Robertt/chocobarcode/internal/ean13"
	"github.com/John-Robertt/chocobarcode/internal/infra/imgx"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("写入测试文件失败：%v", err)
	}
	return p
}

func TestRead_CSV_KeepsLeadingZerosAndSkipsBlankRows(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "produk.csv",
		"\ufeffNama Produk,Barcode (EAN-13)\n"+
			"Coklat Susu,0012345678905\n"+
			",\n"+
			"Coklat Hitam, 710501234567 \n")

	recs, err := Read(p, ReadOptions{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("记录数=%d, want 2：%+v", len(recs), recs)
	}
	if recs[0].Raw != "0012345678905" || recs[0].Row != 2 {
		t.Fatalf("第一条记录不正确：%+v", recs[0])
	}
	if recs[1].Raw != "710501234567" || recs[1].Row != 4 || recs[1].Name != "Coklat Hitam" {
		t.Fatalf("第二条记录不正确：%+v", recs[1])
	}
}

func TestRead_CSV_CustomColumnsCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "a.csv", "SKU,product,EAN\nx,Permen,4006381333931\n")

	recs, err := Read(p, ReadOptions{Columns: Columns{ProductName: "Product", Barcode: "ean", Image: "img"}})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(recs) != 1 || recs[0].Name != "Permen" || recs[0].Raw != "4006381333931" {
		t.Fatalf("记录不正确：%+v", recs)
	}
}

func TestRead_MissingColumn(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "a.csv", "Nama Produk,Harga\nx,1000\n")

	_, err := Read(p, ReadOptions{})
	if Code(err) != domain.ErrCodeInputMissingColumn {
		t.Fatalf("err=%v, want input_missing_column", err)
	}
	var fe *FormatError
	if !errors.As(err, &fe) || fe.Column != DefaultColumns.Barcode {
		t.Fatalf("缺失列名不正确：%+v", fe)
	}
}

func TestRead_EmptyAndUnsupported(t *testing.T) {
	dir := t.TempDir()

	onlyHeader := writeFile(t, dir, "h.csv", "Nama Produk,Barcode (EAN-13)\n")
	if _, err := Read(onlyHeader, ReadOptions{}); Code(err) != domain.ErrCodeInputEmpty {
		t.Fatalf("只有表头应为 input_empty：%v", err)
	}

	empty := writeFile(t, dir, "e.csv", "")
	if _, err := Read(empty, ReadOptions{}); Code(err) != domain.ErrCodeInputEmpty {
		t.Fatalf("空文件应为 input_empty：%v", err)
	}

	txt := writeFile(t, dir, "a.txt", "x")
	if _, err := Read(txt, ReadOptions{}); Code(err) != domain.ErrCodeInputUnsupported {
		t.Fatalf("txt 应为 input_unsupported：%v", err)
	}

	if _, err := Read(filepath.Join(dir, "missing.csv"), ReadOptions{}); Code(err) != domain.ErrCodeInputUnreadable {
		t.Fatalf("不存在的文件应为 input_unreadable：%v", err)
	}
}

func TestRead_HTML_FirstTableOnly(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "a.html", `<html><body>
<table>
  <tr><th>Nama Produk</th><th>Barcode (EAN-13)</th></tr>
  <tr><td>Coklat</td><td>4006381333931</td></tr>
  <tr><td>Permen <table><tr><td>nested</td></tr></table></td><td>12</td></tr>
</table>
<table><tr><th>Nama Produk</th><th>Barcode (EAN-13)</th></tr><tr><td>lain</td><td>1</td></tr></table>
</body></html>`)

	recs, err := Read(p, ReadOptions{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("记录数=%d, want 2：%+v", len(recs), recs)
	}
	if recs[0].Name != "Coklat" || recs[0].Raw != "4006381333931" {
		t.Fatalf("第一条记录不正确：%+v", recs[0])
	}
	if recs[1].Raw != "12" {
		t.Fatalf("第二条记录不正确：%+v", recs[1])
	}
}

func TestRead_XLSX_NumericCellRestored(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "produk.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetCellValue(sheet, "A1", "Nama Produk")
	_ = f.SetCellValue(sheet, "B1", "Barcode (EAN-13)")
	_ = f.SetCellValue(sheet, "A2", "Coklat")
	_ = f.SetCellValue(sheet, "B2", 4006381333931)
	_ = f.SetCellValue(sheet, "A3", "1e3")
	_ = f.SetCellStr(sheet, "B3", "0012345678905")
	_ = f.SetCellValue(sheet, "A4", "Wafer")
	_ = f.SetCellFloat(sheet, "B4", 710501234567, 1, 64) // 存成 "710501234567.0"
	_ = f.SetCellValue(sheet, "A5", "Permen")
	_ = f.SetCellStr(sheet, "B5", "12345678901E1")
	if err := f.SaveAs(p); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	_ = f.Close()

	recs, err := Read(p, ReadOptions{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("记录数=%d：%+v", len(recs), recs)
	}
	if recs[0].Raw != "4006381333931" {
		t.Fatalf("数值单元格应还原为整数字符串：%q", recs[0].Raw)
	}
	if recs[1].Name != "1e3" || recs[1].Raw != "0012345678905" {
		t.Fatalf("商品名不应被数值化、文本条码保留前导 0：%+v", recs[1])
	}
	if recs[2].Raw != "710501234567" {
		t.Fatalf("浮点写法的数值单元格应还原为整数字符串：%q", recs[2].Raw)
	}
	// 文本单元格即使长得像科学计数法也必须原样保留，交给校验判为无效。
	if recs[3].Raw != "12345678901E1" {
		t.Fatalf("文本条码不应被数值化：%q", recs[3].Raw)
	}
	if _, _, err := ean13.Validate(recs[3].Raw); !ean13.IsInvalid(err) {
		t.Fatalf("含非数字字符的文本条码应判为无效：%v", err)
	}
}

func TestNormalizeNumeric(t *testing.T) {
	cases := map[string]string{
		"4006381333931":      "4006381333931",
		"4.006381333931E+12": "4006381333931",
		"710501234567.0":     "710501234567",
		"12AB":               "12AB",
		"0012":               "0012",
		"":                   "",
	}
	for in, want := range cases {
		if got := normalizeNumeric(in); got != want {
			t.Fatalf("normalizeNumeric(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestWriter_AcceptRejectAndReopen(t *testing.T) {
	w, err := NewWriter(Layout{}, imgx.RenderEAN13)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	ctx := context.Background()
	if err := w.Accept(ctx, domain.Record{Row: 2, Name: "Coklat", Raw: "400638133393"}, ean13.Code("4006381333931")); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := w.Reject(ctx, domain.Record{Row: 3, Name: "Permen", Raw: "ABC"}, errors.New("x")); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if w.Rows() != 2 {
		t.Fatalf("Rows=%d, want 2", w.Rows())
	}

	b, err := w.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(OutputSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("行数=%d, want 3：%v", len(rows), rows)
	}
	if rows[0][0] != DefaultColumns.ProductName || rows[0][1] != DefaultColumns.Barcode || rows[0][2] != DefaultColumns.Image {
		t.Fatalf("表头不正确：%v", rows[0])
	}
	if rows[1][0] != "Coklat" || rows[1][1] != "4006381333931" {
		t.Fatalf("成功行不正确：%v", rows[1])
	}
	if len(rows[2]) < 3 || rows[2][1] != "ABC" || rows[2][2] != domain.FailureMarker {
		t.Fatalf("失败行不正确：%v", rows[2])
	}

	pics, err := f.GetPictures(OutputSheet, "C2")
	if err != nil {
		t.Fatalf("GetPictures: %v", err)
	}
	if len(pics) != 1 || pics[0].Extension != ".png" || len(pics[0].File) == 0 {
		t.Fatalf("C2 应嵌入一张 PNG：%d", len(pics))
	}
	if pics, _ := f.GetPictures(OutputSheet, "C3"); len(pics) != 0 {
		t.Fatalf("失败行不应有图片")
	}
}

func TestWriter_RenderFailureDoesNotAdvanceRow(t *testing.T) {
	boom := errors.New("boom")
	w, err := NewWriter(Layout{}, func(string) ([]byte, error) { return nil, boom })
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	err = w.Accept(context.Background(), domain.Record{Row: 2, Name: "x", Raw: "1"}, ean13.Code("4006381333931"))
	var se *batch.StageError
	if !errors.As(err, &se) || se.Stage != "render" || !errors.Is(err, boom) {
		t.Fatalf("应返回 render 阶段错误：%v", err)
	}
	if w.Rows() != 0 {
		t.Fatalf("失败时不应推进行号：%d", w.Rows())
	}
}

func TestWriter_PictureFailureKeepsDefaultRowHeight(t *testing.T) {
	w, err := NewWriter(Layout{}, imgx.RenderEAN13)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	w.addPicture = func(sheet, cell string, pic *excelize.Picture) error {
		return errors.New("insert failed")
	}

	ctx := context.Background()
	rec := domain.Record{Row: 2, Name: "Coklat", Raw: "4006381333931"}
	err = w.Accept(ctx, rec, ean13.Code("4006381333931"))
	var se *batch.StageError
	if !errors.As(err, &se) || se.Stage != "write" {
		t.Fatalf("插图失败应返回 write 阶段错误：%v", err)
	}
	if err := w.Reject(ctx, rec, err); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	h, err := w.f.GetRowHeight(OutputSheet, 2)
	if err != nil {
		t.Fatalf("GetRowHeight: %v", err)
	}
	header, _ := w.f.GetRowHeight(OutputSheet, 1)
	if h != header {
		t.Fatalf("失败行应保持默认行高 %v，实际 %v", header, h)
	}
	v, _ := w.f.GetCellValue(OutputSheet, "C2")
	if v != domain.FailureMarker {
		t.Fatalf("C2 应为失败标记：%q", v)
	}
}

func TestWriter_RowHeightClampedToExcelLimit(t *testing.T) {
	w, err := NewWriter(Layout{ImageHeight: 1000}, imgx.RenderEAN13)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	if err := w.Accept(context.Background(), domain.Record{Row: 2, Name: "x"}, ean13.Code("4006381333931")); err != nil {
		t.Fatalf("超高图片不应导致写行失败：%v", err)
	}
	h, err := w.f.GetRowHeight(OutputSheet, 2)
	if err != nil {
		t.Fatalf("GetRowHeight: %v", err)
	}
	if h != excelize.MaxRowHeight {
		t.Fatalf("行高=%v, want %v", h, float64(excelize.MaxRowHeight))
	}
}

func TestWriter_UndecodableImageIsRenderFailure(t *testing.T) {
	w, err := NewWriter(Layout{}, func(string) ([]byte, error) { return []byte("not a png"), nil })
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	err = w.Accept(context.Background(), domain.Record{Row: 2}, ean13.Code("4006381333931"))
	var se *batch.StageError
	if !errors.As(err, &se) || se.Stage != "render" {
		t.Fatalf("无法解码的图片应视为渲染失败：%v", err)
	}
}

func TestTemplateBytes(t *testing.T) {
	b, err := TemplateBytes(Columns{})
	if err != nil {
		t.Fatalf("TemplateBytes: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(TemplateSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 1 || len(rows[0]) != 2 || rows[0][0] != DefaultColumns.ProductName || rows[0][1] != DefaultColumns.Barcode {
		t.Fatalf("模板应只有两列表头：%v", rows)
	}
}

func TestTemplate_RoundTripsAsInput(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sub", "format.xlsx")
	if err := WriteTemplate(p, DefaultColumns); err != nil {
		t.Fatalf("WriteTemplate: %v", err)
	}
	// 空模板可以被读取，但没有数据行。
	if _, err := Read(p, ReadOptions{}); Code(err) != domain.ErrCodeInputEmpty {
		t.Fatalf("空模板应为 input_empty：%v", err)
	}
}
