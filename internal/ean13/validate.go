package ean13

import (
	"errors"
	"fmt"
)

// Kind 描述一次成功校验的结果类别。
type Kind string

const (
	// KindKeptOriginal：13 位且校验位正确，原样保留。
	KindKeptOriginal Kind = "kept_original"
	// KindChecksummed：12 位，补上了校验位。
	KindChecksummed Kind = "checksummed"
	// KindCorrectedChecksum：13 位但校验位错误，已用正确校验位覆盖（修复而非拒绝）。
	KindCorrectedChecksum Kind = "corrected_checksum"
)

// InvalidError 表示候选串不可用（CandidateInvalid）。
// 该错误只在 batch 内部用于决定走 REGENERATE，不会向外传播。
type InvalidError struct {
	// Kind: "non_digit" 或 "bad_length"
	Kind  string
	Input string
}

func (e *InvalidError) Error() string {
	switch e.Kind {
	case "non_digit":
		return fmt.Sprintf("条码包含非数字字符：%q", e.Input)
	case "bad_length":
		return fmt.Sprintf("条码长度必须是 12 或 13 位，实际 %d 位：%q", len(e.Input), e.Input)
	default:
		return "invalid candidate"
	}
}

// IsInvalid 判断 err 是否为 *InvalidError。
func IsInvalid(err error) bool {
	var e *InvalidError
	return errors.As(err, &e)
}

// Validate 校验并（必要时）修复一个原始候选串。
//
// 规则（按顺序）：
// - 含任意非数字字符 => non_digit
// - 长度不是 12/13 => bad_length
// - 12 位：补校验位 => KindChecksummed
// - 13 位：校验位正确 => KindKeptOriginal；否则覆盖校验位 => KindCorrectedChecksum
//
// 输入应已 trim；这里不再 trim，避免把“带空格的输入”悄悄当成合法。
func Validate(raw string) (Code, Kind, error) {
	if !allDigits(raw) {
		return "", "", &InvalidError{Kind: "non_digit", Input: raw}
	}

	switch len(raw) {
	case PayloadLen:
		c, err := FromPayload(raw)
		if err != nil {
			return "", "", err
		}
		return c, KindChecksummed, nil
	case CodeLen:
		payload := raw[:PayloadLen]
		want := Checksum(payload)
		if int(raw[PayloadLen]-'0') == want {
			return Code(raw), KindKeptOriginal, nil
		}
		return Code(payload + string(rune('0'+want))), KindCorrectedChecksum, nil
	default:
		return "", "", &InvalidError{Kind: "bad_length", Input: raw}
	}
}
