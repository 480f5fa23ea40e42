package imgx

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/ean"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// eanModules 是 EAN-13 条形部分的模块数（含起止/中间保护条）。
const eanModules = 95

// Options 控制条码图片样式。零值字段使用 DefaultOptions 对应值。
type Options struct {
	ModuleWidth int // 每个模块的像素宽度
	BarHeight   int
	QuietZone   int // 左右静区（模块数）
	Margin      int // 上下留白（像素）
	TextGap     int // 条与数字之间的距离（像素）
}

var DefaultOptions = Options{
	ModuleWidth: 2,
	BarHeight:   96,
	QuietZone:   9,
	Margin:      8,
	TextGap:     4,
}

// RenderEAN13 把 13 位条码渲染为 PNG（条 + 下方可读数字）。
//
// 约束：
// - 纯函数：相同输入得到相同字节
// - 输入必须是校验位正确的 13 位数字（由上层保证；这里仍会拒绝非法值）
func RenderEAN13(code string) ([]byte, error) {
	return RenderEAN13With(code, DefaultOptions)
}

func RenderEAN13With(code string, opt Options) ([]byte, error) {
	if len(code) != 13 || strings.Trim(code, "0123456789") != "" {
		return nil, fmt.Errorf("EAN-13 必须是 13 位数字：%q", code)
	}
	opt = withDefaults(opt)

	bc, err := ean.Encode(code)
	if err != nil {
		return nil, err
	}
	if bc.Bounds().Dx() != eanModules {
		return nil, errors.New("条码模块数异常")
	}

	barW := eanModules * opt.ModuleWidth
	scaled, err := barcode.Scale(bc, barW, opt.BarHeight)
	if err != nil {
		return nil, err
	}

	face := basicfont.Face7x13
	w, h := Size(opt)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	barX := opt.QuietZone * opt.ModuleWidth
	barRect := image.Rect(barX, opt.Margin, barX+barW, opt.Margin+opt.BarHeight)
	draw.Draw(dst, barRect, scaled, scaled.Bounds().Min, draw.Src)

	// 可读数字：居中放在条下方的基线上。
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}
	textW := d.MeasureString(code).Ceil()
	baseline := opt.Margin + opt.BarHeight + opt.TextGap + face.Metrics().Ascent.Ceil()
	d.Dot = fixed.P((w-textW)/2, baseline)
	d.DrawString(code)

	var out bytes.Buffer
	if err := png.Encode(&out, dst); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Size 返回给定样式下图片的像素尺寸。
func Size(opt Options) (int, int) {
	opt = withDefaults(opt)
	textH := basicfont.Face7x13.Metrics().Height.Ceil()
	w := (eanModules + 2*opt.QuietZone) * opt.ModuleWidth
	h := opt.Margin + opt.BarHeight + opt.TextGap + textH + opt.Margin
	return w, h
}

func withDefaults(opt Options) Options {
	if opt.ModuleWidth <= 0 {
		opt.ModuleWidth = DefaultOptions.ModuleWidth
	}
	if opt.BarHeight <= 0 {
		opt.BarHeight = DefaultOptions.BarHeight
	}
	if opt.QuietZone < 0 {
		opt.QuietZone = DefaultOptions.QuietZone
	}
	if opt.Margin < 0 {
		opt.Margin = DefaultOptions.Margin
	}
	if opt.TextGap < 0 {
		opt.TextGap = DefaultOptions.TextGap
	}
	return opt
}
