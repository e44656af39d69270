package explorer

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"

	"pathguide/pkg/types"
)

// ==================== 阈值 ====================

// Limit 桶数量阈值
// 正数为阈值；Unbounded 永不单独触发结束；0 只在配置文件中出现，表示使用默认值
type Limit int

// Unbounded 无上限
const Unbounded Limit = -1

// Reached 判断桶大小是否达到阈值
func (l Limit) Reached(n int) bool {
	return l > 0 && n >= int(l)
}

func (l Limit) String() string {
	if l <= 0 {
		return "unbounded"
	}
	return fmt.Sprintf("%d", int(l))
}

// ==================== 搜索配置 ====================

// SearchConfig 搜索配置，构造后不可变
type SearchConfig struct {
	Find     Criterion
	Avoid    Criterion
	Restrict Criterion

	MinDepth   int // 回溯长度低于该值的路径不参与分类
	MaxDepth   int // 由外部步进器/调度器执行，控制器本身不检查
	MaxRepeats int // 循环判定阈值

	NumFind    Limit
	NumAvoid   Limit
	NumDeviate Limit
	NumLoop    Limit
}

// DefaultSearchConfig 返回默认配置
// 所有默认值集中在此处,不在使用处硬编码
func DefaultSearchConfig() *SearchConfig {
	return &SearchConfig{
		Find:       AddressSet(),
		Avoid:      AddressSet(),
		Restrict:   AddressSet(),
		MinDepth:   0,
		MaxDepth:   100,
		MaxRepeats: 10,
		NumFind:    1,
		NumAvoid:   Unbounded,
		NumDeviate: Unbounded,
		NumLoop:    Unbounded,
	}
}

// MergeWithDefaults 合并用户配置与默认配置
// 零值字段使用默认值
func (sc *SearchConfig) MergeWithDefaults() {
	defaults := DefaultSearchConfig()

	if sc.Find.kind == KindAddressSet && sc.Find.addrs == nil {
		sc.Find = defaults.Find
	}
	if sc.Avoid.kind == KindAddressSet && sc.Avoid.addrs == nil {
		sc.Avoid = defaults.Avoid
	}
	if sc.Restrict.kind == KindAddressSet && sc.Restrict.addrs == nil {
		sc.Restrict = defaults.Restrict
	}
	if sc.MaxDepth == 0 {
		sc.MaxDepth = defaults.MaxDepth
	}
	if sc.MaxRepeats == 0 {
		sc.MaxRepeats = defaults.MaxRepeats
	}
	if sc.NumFind == 0 {
		sc.NumFind = defaults.NumFind
	}
	if sc.NumAvoid == 0 {
		sc.NumAvoid = defaults.NumAvoid
	}
	if sc.NumDeviate == 0 {
		sc.NumDeviate = defaults.NumDeviate
	}
	if sc.NumLoop == 0 {
		sc.NumLoop = defaults.NumLoop
	}
}

// Validate 检查数值范围
func (sc *SearchConfig) Validate() error {
	if sc.MinDepth < 0 {
		return &ConfigurationError{Field: "min_depth", Value: sc.MinDepth}
	}
	if sc.MaxDepth < 0 {
		return &ConfigurationError{Field: "max_depth", Value: sc.MaxDepth}
	}
	if sc.MaxRepeats <= 0 {
		return &ConfigurationError{Field: "max_repeats", Value: sc.MaxRepeats}
	}
	for name, l := range map[string]Limit{
		"num_find":    sc.NumFind,
		"num_avoid":   sc.NumAvoid,
		"num_deviate": sc.NumDeviate,
		"num_loop":    sc.NumLoop,
	} {
		if l == 0 || l < Unbounded {
			return &ConfigurationError{Field: name, Value: int(l)}
		}
	}
	return nil
}

// ==================== 配置文件 ====================

// FileConfig YAML配置文件结构
// 谓词类criterion只能通过代码构造，文件中只支持地址列表
type FileConfig struct {
	Find     []types.FlexibleUint64 `yaml:"find" json:"find"`
	Avoid    []types.FlexibleUint64 `yaml:"avoid" json:"avoid"`
	Restrict []types.FlexibleUint64 `yaml:"restrict" json:"restrict"`

	MinDepth   int `yaml:"min_depth" json:"min_depth"`
	MaxDepth   int `yaml:"max_depth" json:"max_depth"`
	MaxRepeats int `yaml:"max_repeats" json:"max_repeats"`

	NumFind    int `yaml:"num_find" json:"num_find"`       // -1 表示无上限
	NumAvoid   int `yaml:"num_avoid" json:"num_avoid"`     // 0 使用默认值（无上限）
	NumDeviate int `yaml:"num_deviate" json:"num_deviate"` // 0 使用默认值（无上限）
	NumLoop    int `yaml:"num_loop" json:"num_loop"`       // 0 使用默认值（无上限）

	Scheduler SchedulerOptions `yaml:"scheduler" json:"scheduler"`
	Debug     bool             `yaml:"debug" json:"debug"`
}

// SchedulerOptions 外部调度器参数
type SchedulerOptions struct {
	Workers   int `yaml:"workers" json:"workers"`       // 并发步进数 (max_concurrency)
	MaxActive int `yaml:"max_active" json:"max_active"` // 每轮最多取出的活跃路径数
	MaxSteps  int `yaml:"max_steps" json:"max_steps"`   // 步进总预算，0 表示不限
}

// LoadFileConfig 从磁盘加载YAML配置
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	fc.Scheduler.mergeWithDefaults()
	return &fc, nil
}

func (so *SchedulerOptions) mergeWithDefaults() {
	if so.Workers <= 0 {
		so.Workers = 4
	}
}

// SearchConfig 由文件配置构造不可变的SearchConfig
func (fc *FileConfig) SearchConfig() (*SearchConfig, error) {
	find, err := NewCriterion(fc.Find)
	if err != nil {
		return nil, err
	}
	avoid, err := NewCriterion(fc.Avoid)
	if err != nil {
		return nil, err
	}
	restrict, err := NewCriterion(fc.Restrict)
	if err != nil {
		return nil, err
	}

	sc := &SearchConfig{
		Find:       find,
		Avoid:      avoid,
		Restrict:   restrict,
		MinDepth:   fc.MinDepth,
		MaxDepth:   fc.MaxDepth,
		MaxRepeats: fc.MaxRepeats,
		NumFind:    Limit(fc.NumFind),
		NumAvoid:   Limit(fc.NumAvoid),
		NumDeviate: Limit(fc.NumDeviate),
		NumLoop:    Limit(fc.NumLoop),
	}
	sc.MergeWithDefaults()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}
