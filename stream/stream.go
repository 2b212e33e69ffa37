package stream

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/fansqz/go-tgdb/constants"
	e "github.com/fansqz/go-tgdb/error"
	"github.com/fansqz/go-tgdb/protocol"
	"github.com/fansqz/go-tgdb/utils"
	"github.com/fansqz/go-tgdb/utils/gosync"
	"github.com/sirupsen/logrus"
)

// Callback 前端处理响应的回调，回调返回以后响应会被释放，回调不能保留响应
type Callback func(resp protocol.Response)

// Stream 后端到前端的响应流
// 只有一个生产者（后端）和一个消费者（前端），响应按照产生的顺序交付。
// quit响应产生以后流进入Terminated状态，之后再产生响应属于协议错误。
type Stream struct {
	id     string
	log    *logrus.Entry
	status *utils.StatusManager

	lock  sync.Mutex
	queue *linkedlistqueue.Queue
	// 已经把quit交付给前端
	drained bool
	// 有新的响应时通知消费者
	notify chan struct{}
}

func NewStream() *Stream {
	id := utils.GetUUID()
	return &Stream{
		id:     id,
		log:    logrus.WithField("session", id),
		status: utils.NewStatusManager(utils.Active),
		queue:  linkedlistqueue.New(),
		notify: make(chan struct{}, 1),
	}
}

func (s *Stream) ID() string {
	return s.id
}

// Terminated quit响应是否已经产生
func (s *Stream) Terminated() bool {
	return s.status.Is(utils.Terminated)
}

// Len 还没有交付的响应数量
func (s *Stream) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.queue.Size()
}

// Produce 后端产生一个响应，成功以后响应的所有权交给流
// 失败时所有权仍属于调用方
func (s *Stream) Produce(resp protocol.Response) error {
	if resp == nil {
		return fmt.Errorf("%w: nil response", e.ErrInvalidResponse)
	}
	s.lock.Lock()
	if s.status.Is(utils.Terminated) {
		s.lock.Unlock()
		s.log.Errorf("[Produce] %s produced after quit", resp.Kind())
		return fmt.Errorf("%w: %s", e.ErrProtocolSequence, resp.Kind())
	}
	if err := resp.Validate(); err != nil {
		s.lock.Unlock()
		s.log.Warnf("[Produce] reject %s, err = %v", resp.Kind(), err)
		return err
	}
	s.queue.Enqueue(resp)
	if resp.Kind() == constants.Quit {
		s.status.Transfer(utils.Active, utils.Terminated)
		s.log.Infof("[Produce] quit produced, stream terminated")
	}
	s.lock.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// TryNext 不阻塞地取出下一个响应，没有响应时返回false
// quit交付以后返回io.EOF
func (s *Stream) TryNext() (protocol.Response, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if v, ok := s.queue.Dequeue(); ok {
		resp := v.(protocol.Response)
		if resp.Kind() == constants.Quit {
			s.drained = true
		}
		return resp, true, nil
	}
	if s.drained {
		return nil, false, io.EOF
	}
	return nil, false, nil
}

// Next 取出下一个响应，没有响应时阻塞，取出以后响应的所有权交给调用方
// quit交付以后返回io.EOF
func (s *Stream) Next(ctx context.Context) (protocol.Response, error) {
	for {
		resp, ok, err := s.TryNext()
		if err != nil {
			return nil, err
		}
		if ok {
			return resp, nil
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Pump 启动协程，把响应依次交给callback处理，callback返回以后释放响应
// quit处理完或者ctx结束时退出，返回的channel在退出时关闭
func (s *Stream) Pump(ctx context.Context, callback Callback) <-chan struct{} {
	done := make(chan struct{})
	gosync.Go(ctx, func(ctx context.Context) {
		defer close(done)
		for {
			resp, err := s.Next(ctx)
			if err != nil {
				if err != io.EOF {
					s.log.Debugf("[Pump] stop, err = %v", err)
				}
				return
			}
			callback(resp)
			protocol.Release(&resp)
		}
	})
	return done
}
