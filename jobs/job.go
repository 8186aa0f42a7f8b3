package jobs

import (
	"context"
	"time"

	"github.com/go-redsync/redsync/v4"
	"go.uber.org/zap"
)

// 分布式锁的持有时长，单次任务执行超过它锁会被别的实例抢走
const jobLockExpiry = 60 * time.Second

// tryLock 非阻塞抢锁，抢不到说明别的实例在跑，这一轮直接跳过
// 返回nil表示没抢到
func tryLock(ctx context.Context, rs *redsync.Redsync, name string) *redsync.Mutex {
	mutex := rs.NewMutex(name, redsync.WithExpiry(jobLockExpiry), redsync.WithTries(1))
	if err := mutex.TryLockContext(ctx); err != nil {
		zap.S().Infof("任务锁被占用，跳过本轮: %s", name)
		return nil
	}
	return mutex
}

func unlock(ctx context.Context, mutex *redsync.Mutex, name string) {
	if _, err := mutex.UnlockContext(ctx); err != nil {
		zap.S().Warnf("释放任务锁失败: %s, err=%s", name, err.Error())
	}
}

// RunPeriodically 周期执行一个任务直到ctx取消
func RunPeriodically(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	zap.S().Infof("定时任务启动: %s, 间隔=%s", name, interval)
	for {
		select {
		case <-ctx.Done():
			zap.S().Infof("定时任务退出: %s", name)
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				zap.S().Errorf("定时任务执行失败: %s, err=%s", name, err.Error())
			}
		}
	}
}
