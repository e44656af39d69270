package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// FlexibleUint64 是一个可以从多种 JSON/YAML 格式解析的地址值
// 支持的格式:
// - 数字: 4096
// - 十六进制字符串: "0x1000"
// - 十进制字符串: "4096"
type FlexibleUint64 struct {
	value uint64
}

// NewFlexibleUint64 创建一个新的 FlexibleUint64
func NewFlexibleUint64(val uint64) FlexibleUint64 {
	return FlexibleUint64{value: val}
}

// ParseFlexibleUint64 从字符串解析
func ParseFlexibleUint64(str string) (FlexibleUint64, error) {
	var f FlexibleUint64
	err := f.setString(strings.TrimSpace(str))
	return f, err
}

// Value 返回 uint64 值
func (f FlexibleUint64) Value() uint64 {
	return f.value
}

// UnmarshalJSON 实现 json.Unmarshaler 接口
func (f *FlexibleUint64) UnmarshalJSON(data []byte) error {
	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		val, err := strconv.ParseUint(num.String(), 10, 64)
		if err != nil {
			return fmt.Errorf("无法解析数字: %v", err)
		}
		f.value = val
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("既不是数字也不是字符串: %v", err)
	}
	return f.setString(str)
}

// UnmarshalYAML 实现 yaml.v2 的 Unmarshaler 接口
// 未加引号的 0x1000 由 YAML 解析为整数，加引号的按字符串处理
func (f *FlexibleUint64) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var num uint64
	if err := unmarshal(&num); err == nil {
		f.value = num
		return nil
	}

	var str string
	if err := unmarshal(&str); err != nil {
		return fmt.Errorf("既不是数字也不是字符串: %v", err)
	}
	return f.setString(strings.TrimSpace(str))
}

func (f *FlexibleUint64) setString(str string) error {
	// 空字符串视为 0
	if str == "" || str == "0x" {
		f.value = 0
		return nil
	}

	if strings.HasPrefix(str, "0x") || strings.HasPrefix(str, "0X") {
		hexStr := strings.TrimPrefix(strings.ToLower(str), "0x")

		// 使用 big.Int 检查是否超出 uint64 范围
		bigInt := new(big.Int)
		if _, ok := bigInt.SetString(hexStr, 16); !ok {
			return fmt.Errorf("无效的十六进制字符串: %s", str)
		}
		if !bigInt.IsUint64() {
			return fmt.Errorf("十六进制值超出 uint64 范围: %s", str)
		}
		f.value = bigInt.Uint64()
		return nil
	}

	val, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return fmt.Errorf("无法解析十进制字符串: %s, 错误: %v", str, err)
	}
	f.value = val
	return nil
}

// MarshalJSON 序列化为十六进制字符串
func (f FlexibleUint64) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("\"0x%x\"", f.value)), nil
}

// MarshalYAML 序列化为十六进制字符串
func (f FlexibleUint64) MarshalYAML() (interface{}, error) {
	return f.String(), nil
}

// String 返回十六进制字符串表示
func (f FlexibleUint64) String() string {
	return fmt.Sprintf("0x%x", f.value)
}

// Uint64 返回 uint64 值 (Value 的别名)
func (f FlexibleUint64) Uint64() uint64 {
	return f.value
}

// ParseAddressList 解析逗号分隔的地址列表，例如 "0x10,0x2a,64"
func ParseAddressList(list string) ([]FlexibleUint64, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	parts := strings.Split(list, ",")
	out := make([]FlexibleUint64, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := ParseFlexibleUint64(part)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
