package runlog

import (
	"context"
	"time"

	"arbiter/internal/logger"
	"arbiter/internal/orchestrator"
)

// Recorder 实现 orchestrator.Observer，把每次运行结果异步落库。
// 落库失败只告警，不影响主流程返回。
type Recorder struct {
	store   *Store
	timeout time.Duration
}

// NewRecorder 绑定存储；timeout<=0 时使用默认 5s。
func NewRecorder(store *Store, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{store: store, timeout: timeout}
}

// OnRunCompleted 在编排完成后被回调。
// 使用独立 context：请求取消不应丢掉已完成运行的审计记录。
func (r *Recorder) OnRunCompleted(_ context.Context, res orchestrator.Result) {
	if r == nil || r.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.store.SaveRun(ctx, res); err != nil {
			logger.Warnf("运行日志落库失败 trace=%s: %v", res.TraceID, err)
		}
	}()
}

var _ orchestrator.Observer = (*Recorder)(nil)
