package services

import (
	"context"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// progressUpdate 是管线阶段投进通道的一条消息。
type progressUpdate struct {
	userID    int64
	messageID int
	state     ProgressState
}

// ProgressReporter 把管线阶段与消息层解耦：阶段通过通道投递快照，
// 后台循环按用户做最小间隔限流后写入 ProgressSink。
//
// 限流规则：
//   - 同一用户两次发布之间至少间隔 interval；
//   - 同一阶段的相同百分比不重复下发（幂等）；
//   - Final 快照无条件下发。
//
// 实现了 kratos transport.Server 的 Start/Stop，由应用托管生命周期。
type ProgressReporter struct {
	sink     ProgressSink
	interval time.Duration
	updates  chan progressUpdate
	stop     chan struct{}
	stopped  chan struct{}
	log      *log.Helper

	mu   sync.Mutex
	last map[int64]lastPublish
}

type lastPublish struct {
	at      time.Time
	stage   Stage
	percent int
}

// NewProgressReporter 构造进度上报器。interval<=0 时使用 4s
// （消息平台对频繁编辑有洪水限制）。
func NewProgressReporter(sink ProgressSink, interval time.Duration, logger log.Logger) *ProgressReporter {
	if interval <= 0 {
		interval = 4 * time.Second
	}
	return &ProgressReporter{
		sink:     sink,
		interval: interval,
		updates:  make(chan progressUpdate, 256),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
		last:     make(map[int64]lastPublish),
		log:      log.NewHelper(logger),
	}
}

// Publish 把快照排队等待发布。非终态快照在队列拥塞时直接丢弃
// （下一个 tick 会带来更新的百分比），终态快照阻塞直到入队。
func (r *ProgressReporter) Publish(userID int64, messageID int, st ProgressState) {
	u := progressUpdate{userID: userID, messageID: messageID, state: st}
	if st.Final {
		select {
		case r.updates <- u:
		case <-r.stop:
		}
		return
	}
	select {
	case r.updates <- u:
	default:
	}
}

// Start 运行发布循环，直到 Stop 或 ctx 结束。
func (r *ProgressReporter) Start(ctx context.Context) error {
	defer close(r.stopped)
	for {
		select {
		case u := <-r.updates:
			r.dispatch(ctx, u)
		case <-r.stop:
			r.drain(ctx)
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// Stop 结束发布循环，剩余终态快照会在退出前尽力发完。
func (r *ProgressReporter) Stop(ctx context.Context) error {
	close(r.stop)
	select {
	case <-r.stopped:
	case <-ctx.Done():
	}
	return nil
}

func (r *ProgressReporter) dispatch(ctx context.Context, u progressUpdate) {
	if !r.shouldPublish(u) {
		return
	}
	if err := r.sink.Publish(ctx, u.userID, u.messageID, u.state); err != nil {
		// 进度是尽力而为的，编辑失败不影响管线
		r.log.Warnf("progress publish failed: user=%d stage=%s err=%v", u.userID, u.state.Stage, err)
	}
}

func (r *ProgressReporter) shouldPublish(u progressUpdate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, seen := r.last[u.userID]
	if u.state.Final {
		delete(r.last, u.userID)
		return true
	}
	if seen {
		if prev.stage == u.state.Stage && prev.percent == u.state.Percent {
			return false
		}
		if time.Since(prev.at) < r.interval {
			return false
		}
	}
	r.last[u.userID] = lastPublish{at: time.Now(), stage: u.state.Stage, percent: u.state.Percent}
	return true
}

// drain 在停机路径上把已排队的终态快照发出去。
func (r *ProgressReporter) drain(ctx context.Context) {
	for {
		select {
		case u := <-r.updates:
			if u.state.Final {
				r.dispatch(ctx, u)
			}
		default:
			return
		}
	}
}
