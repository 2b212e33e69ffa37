package utils

import (
	"context"
	"time"

	"github.com/fansqz/go-tgdb/utils/gosync"
	"github.com/sirupsen/logrus"
)

// TimeoutManager 一个计时器
// 如果在timeout时间内没有执行reset命令，就会执行fun函数
type TimeoutManager struct {
	timer          *time.Timer
	timeout        time.Duration
	resetChannel   chan struct{}
	chancelChannel chan struct{}
	fun            func()
}

// NewTimeoutManager 创建一个新的计时器实例
func NewTimeoutManager() *TimeoutManager {
	return &TimeoutManager{
		resetChannel:   make(chan struct{}, 1),
		chancelChannel: make(chan struct{}, 1),
	}
}

// Start 开始计时
// 在timeout时间内没有执行reset命令，就会执行fun函数，ctx结束时停止计时
func (t *TimeoutManager) Start(ctx context.Context, timeout time.Duration, option func()) {
	t.timer = time.NewTimer(timeout)
	t.timeout = timeout
	t.fun = option
	gosync.Go(ctx, func(ctx context.Context) {
		defer t.timer.Stop()
		for {
			select {
			case <-t.timer.C:
				logrus.Infof("[TimeoutManager] Timer expired, performing action")
				t.fun()
				return
			case <-t.resetChannel:
				logrus.Debugf("[TimeoutManager] reset")
				if !t.timer.Stop() {
					select {
					case <-t.timer.C:
					default:
					}
				}
				t.timer.Reset(t.timeout)
			case <-t.chancelChannel:
				logrus.Debugf("[TimeoutManager] chancel")
				return
			case <-ctx.Done():
				return
			}
		}
	})
}

// Reset 重置计时器
func (t *TimeoutManager) Reset() {
	select {
	case t.resetChannel <- struct{}{}:
	default:
	}
}

// Chancel 取消计时，计时已经结束时什么也不做
func (t *TimeoutManager) Chancel() {
	select {
	case t.chancelChannel <- struct{}{}:
	default:
	}
}
