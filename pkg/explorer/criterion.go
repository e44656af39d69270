package explorer

import (
	"log"

	mapset "github.com/deckarep/golang-set/v2"

	"pathguide/pkg/types"
)

// CriterionKind criterion类型标签
type CriterionKind int

const (
	KindAddressSet CriterionKind = iota // 目标地址集合
	KindPredicate                       // 路径谓词
)

// String 返回criterion类型的字符串表示
func (k CriterionKind) String() string {
	switch k {
	case KindAddressSet:
		return "AddressSet"
	case KindPredicate:
		return "Predicate"
	default:
		return "Unknown"
	}
}

// Predicate 路径谓词
type Predicate func(Path) bool

// Criterion 归一化后的匹配器：地址集合或谓词，构造后不可变
type Criterion struct {
	kind  CriterionKind
	addrs mapset.Set[uint64]
	pred  Predicate
}

// AddressSet 由地址列表构造criterion
func AddressSet(addrs ...uint64) Criterion {
	return Criterion{kind: KindAddressSet, addrs: mapset.NewThreadUnsafeSet(addrs...)}
}

// PredicateCriterion 由谓词构造criterion
func PredicateCriterion(pred Predicate) Criterion {
	return Criterion{kind: KindPredicate, pred: pred}
}

// NewCriterion 把调用方输入归一化为Criterion
// 支持: 单个地址、地址集合、谓词函数；nil 视为空集合
func NewCriterion(v interface{}) (Criterion, error) {
	switch c := v.(type) {
	case nil:
		return AddressSet(), nil
	case Criterion:
		if c.kind == KindAddressSet && c.addrs == nil {
			return AddressSet(), nil
		}
		return c, nil
	case uint64:
		return AddressSet(c), nil
	case int:
		if c < 0 {
			return Criterion{}, &ConfigurationError{Field: "criterion", Value: v}
		}
		return AddressSet(uint64(c)), nil
	case types.FlexibleUint64:
		return AddressSet(c.Uint64()), nil
	case []uint64:
		return AddressSet(c...), nil
	case []int:
		addrs := make([]uint64, 0, len(c))
		for _, a := range c {
			if a < 0 {
				return Criterion{}, &ConfigurationError{Field: "criterion", Value: v}
			}
			addrs = append(addrs, uint64(a))
		}
		return AddressSet(addrs...), nil
	case []types.FlexibleUint64:
		addrs := make([]uint64, 0, len(c))
		for _, a := range c {
			addrs = append(addrs, a.Uint64())
		}
		return AddressSet(addrs...), nil
	case mapset.Set[uint64]:
		return AddressSet(c.ToSlice()...), nil
	case Predicate:
		if c == nil {
			return Criterion{}, &ConfigurationError{Field: "criterion", Value: v}
		}
		return PredicateCriterion(c), nil
	case func(Path) bool:
		if c == nil {
			return Criterion{}, &ConfigurationError{Field: "criterion", Value: v}
		}
		return PredicateCriterion(c), nil
	default:
		return Criterion{}, &ConfigurationError{Field: "criterion", Value: v}
	}
}

// Kind 返回criterion类型
func (c Criterion) Kind() CriterionKind {
	return c.kind
}

// IsTrivial 空地址集合不构成任何限制
func (c Criterion) IsTrivial() bool {
	return c.kind == KindAddressSet && (c.addrs == nil || c.addrs.Cardinality() == 0)
}

// Addresses 返回地址集合内容（谓词返回nil）
func (c Criterion) Addresses() []uint64 {
	if c.kind != KindAddressSet || c.addrs == nil {
		return nil
	}
	return c.addrs.ToSlice()
}

// Matches 判断路径的本步地址是否命中criterion
// 地址集合: 与本步地址求交集，非空即命中；谓词: 直接调用
func (c Criterion) Matches(p Path, stepAddrs mapset.Set[uint64]) bool {
	if c.kind == KindPredicate {
		return c.pred(p)
	}
	if c.addrs == nil || stepAddrs == nil {
		return false
	}
	matched := false
	stepAddrs.Each(func(addr uint64) bool {
		if !c.addrs.Contains(addr) {
			return false
		}
		matched = true
		if debugEnabled() {
			log.Printf("[Explorer] ... matched 0x%x", addr)
			return false
		}
		return true
	})
	return matched
}
