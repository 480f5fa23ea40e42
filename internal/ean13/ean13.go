// Package ean13 实现 EAN-13 的校验位计算、候选校验/修复与批内唯一生成。
//
// 约束：所有处理都以字符串为单位（不转数字），前导 0 必须原样保留。
package ean13

import "fmt"

const (
	// PayloadLen 是不含校验位的前 12 位。
	PayloadLen = 12
	// CodeLen 是完整 EAN-13 长度。
	CodeLen    = 13
)

// Code 是一个合法的 EAN-13：恰好 13 位数字，且最后一位等于前 12 位的校验位。
//
// 只能通过 Validate / FromPayload / Parse 得到；零值 "" 表示“没有条码”。
type Code string

// Payload 返回前 12 位。
func (c Code) Payload() string {
	if len(c) != CodeLen {
		return ""
	}
	return string(c[:PayloadLen])
}

// CheckDigit 返回校验位（0-9）；c 非法时返回 -1。
func (c Code) CheckDigit() int {
	if len(c) != CodeLen {
		return -1
	}
	return int(c[PayloadLen] - '0')
}

func (c Code) String() string { return string(c) }

// Checksum 计算 12 位 payload 的 EAN-13 校验位。
//
// 规则：奇数位（1-based 1,3,5,...,11）直接求和，偶数位（2,4,...,12）求和后乘 3；
// checksum = (10 - (sum % 10)) % 10。
// 调用方保证 payload 恰好 12 位数字，这里不做校验。
func Checksum(payload string) int {
	odd, even := 0, 0
	for i := 0; i < PayloadLen; i++ {
		d := int(payload[i] - '0')
		if i%2 == 0 {
			odd += d
		} else {
			even += d
		}
	}
	return (10 - (odd+3*even)%10) % 10
}

// FromPayload 把 12 位 payload 补上校验位。
func FromPayload(payload string) (Code, error) {
	if len(payload) != PayloadLen || !allDigits(payload) {
		return "", fmt.Errorf("payload 必须是 12 位数字：%q", payload)
	}
	return Code(payload + string(rune('0'+Checksum(payload)))), nil
}

// Parse 严格解析：必须是 13 位数字且校验位正确（不做修复）。
func Parse(s string) (Code, error) {
	if len(s) != CodeLen || !allDigits(s) {
		return "", fmt.Errorf("不是 13 位数字：%q", s)
	}
	if int(s[PayloadLen]-'0') != Checksum(s[:PayloadLen]) {
		return "", fmt.Errorf("校验位错误：%q", s)
	}
	return Code(s), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
