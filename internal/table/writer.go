package table

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png" // 注册 PNG 解码器（用于读取渲染结果的像素尺寸）
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/John-Robertt/chocobarcode/internal/batch"
	"github.com/John-Robertt/chocobarcode/internal/domain"
	"github.com/John-Robertt/chocobarcode/internal/ean13"
	"github.com/John-Robertt/chocobarcode/internal/infra/fsx"
)

const (
	// OutputSheet 是输出工作表名。
	OutputSheet   = "Produk Barcode"
	// TemplateSheet 是空白模板的工作表名。
	TemplateSheet = "Format Barcode Produk"

	DefaultImageWidth  = 250
	DefaultImageHeight = 180
)

// RenderFunc 把 13 位条码渲染为 PNG 字节。
type RenderFunc func(code string) ([]byte, error)

// Layout 描述输出表样式。
type Layout struct {
	Columns     Columns
	ImageWidth  int // 图片在表格中的显示宽度（像素）
	ImageHeight int // 图片在表格中的显示高度（像素）
}

var _ batch.Sink = (*Writer)(nil)

// Writer 把决策结果逐行写入内存中的 xlsx 工作簿（batch.Sink 的实现）。
//
// 约束：
// - 行顺序 = Accept/Reject 的调用顺序（即输入顺序）
// - 成功行：A=商品名 B=最终条码 C=嵌入图片；失败行：A=商品名 B=原始输入 C=失败标记
// - 单行失败时不推进行号，随后的 Reject 会覆盖同一行
type Writer struct {
	f      *excelize.File
	sheet  string
	layout Layout
	render RenderFunc

	// 通过可替换的函数指针，让测试能稳定模拟插图失败。
	addPicture func(sheet, cell string, pic *excelize.Picture) error

	row int // 最后一条已写完的行号（表头为 1）
}

// NewWriter 创建带表头与列宽的空工作簿。
func NewWriter(layout Layout, render RenderFunc) (*Writer, error) {
	if render == nil {
		return nil, errors.New("render 不能为空")
	}
	if layout.Columns.ProductName == "" || layout.Columns.Barcode == "" || layout.Columns.Image == "" {
		layout.Columns = DefaultColumns
	}
	if layout.ImageWidth <= 0 {
		layout.ImageWidth = DefaultImageWidth
	}
	if layout.ImageHeight <= 0 {
		layout.ImageHeight = DefaultImageHeight
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), OutputSheet); err != nil {
		_ = f.Close()
		return nil, err
	}

	w := &Writer{f: f, sheet: OutputSheet, layout: layout, render: render, row: 1}
	w.addPicture = f.AddPictureFromBytes

	header := []any{layout.Columns.ProductName, layout.Columns.Barcode, layout.Columns.Image}
	if err := f.SetSheetRow(w.sheet, "A1", &header); err != nil {
		_ = f.Close()
		return nil, err
	}

	widths := []struct {
		col string
		w   float64
	}{
		{"A", 25},
		{"B", 20},
		{"C", float64(layout.ImageWidth) / 7},
	}
	for _, cw := range widths {
		if err := f.SetColWidth(w.sheet, cw.col, cw.col, cw.w); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return w, nil
}

// Accept 渲染条码图片并写入一行。渲染失败返回 batch.RenderError，写入失败返回 batch.WriteError。
func (w *Writer) Accept(ctx context.Context, rec domain.Record, code ean13.Code) error {
	png, err := w.render(string(code))
	if err != nil {
		return batch.RenderError(err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(png))
	if err != nil {
		return batch.RenderError(fmt.Errorf("图片无法解码：%w", err))
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return batch.RenderError(errors.New("图片尺寸无效"))
	}

	row := w.row + 1
	if err := w.setRow(row, rec.Name, string(code), ""); err != nil {
		return batch.WriteError(err)
	}
	cellC, err := excelize.CoordinatesToCellName(3, row)
	if err != nil {
		return batch.WriteError(err)
	}
	pic := &excelize.Picture{
		Extension: ".png",
		File:      png,
		Format: &excelize.GraphicOptions{
			AltText: string(code),
			ScaleX:  float64(w.layout.ImageWidth) / float64(cfg.Width),
			ScaleY:  float64(w.layout.ImageHeight) / float64(cfg.Height),
		},
	}
	if err := w.addPicture(w.sheet, cellC, pic); err != nil {
		return batch.WriteError(err)
	}
	// 图片插入成功后才调整行高：失败行保持默认行高。
	if err := w.f.SetRowHeight(w.sheet, row, rowHeight(w.layout.ImageHeight)); err != nil {
		return batch.WriteError(err)
	}

	w.row = row
	return nil
}

// Reject 写入失败行：B 列保留原始输入，C 列写失败标记。
func (w *Writer) Reject(ctx context.Context, rec domain.Record, cause error) error {
	row := w.row + 1
	if err := w.setRow(row, rec.Name, rec.Raw, domain.FailureMarker); err != nil {
		return err
	}
	w.row = row
	return nil
}

// rowHeight 把图片像素高度换算为行高（磅，系数 0.7），并截断到 excelize 允许的上限。
func rowHeight(imageHeight int) float64 {
	h := float64(imageHeight) * 0.7
	if h > excelize.MaxRowHeight {
		h = excelize.MaxRowHeight
	}
	return h
}

func (w *Writer) setRow(row int, a, b, c string) error {
	cellA, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	vals := []any{a, b, c}
	return w.f.SetSheetRow(w.sheet, cellA, &vals)
}

// Rows 返回已写入的数据行数（不含表头）。
func (w *Writer) Rows() int { return w.row - 1 }

// Bytes 序列化工作簿。
func (w *Writer) Bytes() ([]byte, error) {
	buf, err := w.f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (w *Writer) Close() error { return w.f.Close() }

// TemplateBytes 生成空白输入模板（只有表头：商品名、条码）。
func TemplateBytes(cols Columns) ([]byte, error) {
	if cols.ProductName == "" || cols.Barcode == "" {
		cols = DefaultColumns
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), TemplateSheet); err != nil {
		return nil, err
	}
	header := []any{cols.ProductName, cols.Barcode}
	if err := f.SetSheetRow(TemplateSheet, "A1", &header); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(TemplateSheet, "A", "A", 30); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(TemplateSheet, "B", "B", 25); err != nil {
		return nil, err
	}
	// 条码列设为文本格式，避免用户输入时前导 0 被吞掉。
	style, err := f.NewStyle(&excelize.Style{NumFmt: 49})
	if err != nil {
		return nil, err
	}
	if err := f.SetColStyle(TemplateSheet, "B", style); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTemplate 把空白模板原子写入 path（已存在则覆盖）。
func WriteTemplate(path string, cols Columns) error {
	b, err := TemplateBytes(cols)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), b)
}
