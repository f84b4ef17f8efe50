package manager

import (
	"sync"

	"github.com/morezero/component-runtime/pkg/dispatcher"
)

var (
	defaultOnce sync.Once
	defaultMgr  *Manager
)

// Default returns the process-wide manager instance, creating it with its own
// dispatcher registry and no router on first use. New code should construct
// and inject a Manager explicitly; Default exists for callers that predate
// injection.
func Default() *Manager {
	defaultOnce.Do(func() {
		defaultMgr = New(dispatcher.NewRegistry(), nil)
	})
	return defaultMgr
}
