package explorer

import "sync/atomic"

var debug atomic.Bool

// SetDebug 打开或关闭调试日志（命中地址、结束原因）
func SetDebug(enabled bool) {
	debug.Store(enabled)
}

func debugEnabled() bool {
	return debug.Load()
}
