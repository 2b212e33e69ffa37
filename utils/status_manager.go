package utils

import "sync"

const (
	// Init 后端还没有启动
	Init = "init"
	// Active 后端还可能产生响应
	Active = "active"
	// Terminated 已经产生quit响应，不会再有任何响应
	Terminated = "terminated"
)

// StatusManager 记录会话状态
type StatusManager struct {
	lock   sync.RWMutex
	status string
}

func NewStatusManager(status string) *StatusManager {
	return &StatusManager{
		status: status,
	}
}

func (s *StatusManager) Set(status string) {
	defer s.lock.Unlock()
	s.lock.Lock()
	s.status = status
}

func (s *StatusManager) Get() string {
	defer s.lock.RUnlock()
	s.lock.RLock()
	return s.status
}

// Transfer 只有当前状态为from时才切换到to
func (s *StatusManager) Transfer(from, to string) bool {
	defer s.lock.Unlock()
	s.lock.Lock()
	if s.status != from {
		return false
	}
	s.status = to
	return true
}

func (s *StatusManager) Is(statusList ...string) bool {
	defer s.lock.RUnlock()
	s.lock.RLock()
	for _, status := range statusList {
		if s.status == status {
			return true
		}
	}
	return false
}
