package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"GroupBuyMarket/model"

	"github.com/redis/go-redis/v9"
)

var (
	ErrAlreadyExecuted = errors.New("库存流水已存在，重复操作")
	ErrStockNotFound   = errors.New("库存key不存在")
	ErrStockNotEnough  = errors.New("库存不足")
	ErrTeamFull        = errors.New("拼团队伍已满")
	ErrDuplicateJoin   = errors.New("重复加入拼团队伍")
)

// Ledger 封装redis侧的库存账本，扣减、回滚、查流水都走这里
// 计数和流水在lua脚本里一次性写入，调用方不需要再加锁
type Ledger struct {
	rdb *redis.Client
}

func NewLedger(rdb *redis.Client) *Ledger {
	return &Ledger{rdb: rdb}
}

// CompoundResult 商品扣减加入队的合并结果
type CompoundResult struct {
	GoodsRemaining int64
	TeamCount      int64
}

func codeToErr(code int64) error {
	switch code {
	case scriptCodeOK:
		return nil
	case scriptCodeNotEnough:
		return ErrStockNotEnough
	case scriptCodeTeamFull:
		return ErrTeamFull
	case scriptCodeExecuted:
		return ErrAlreadyExecuted
	case scriptCodeNotFound:
		return ErrStockNotFound
	case scriptCodeDuplicateTeam:
		return ErrDuplicateJoin
	default:
		return fmt.Errorf("未知的脚本返回码: %d", code)
	}
}

func runScript(ctx context.Context, rdb *redis.Client, script *redis.Script, keys []string, args ...interface{}) ([]int64, error) {
	result, err := script.Run(ctx, rdb, keys, args...).Result()
	if err != nil {
		return nil, err
	}
	values, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("脚本返回类型异常: %T", result)
	}
	out := make([]int64, 0, len(values))
	for _, v := range values {
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("脚本返回元素类型异常: %T", v)
		}
		out = append(out, n)
	}
	return out, nil
}

// Decrease 扣减库存并记流水，返回扣减后的余量
// 同一个identifier只会扣一次，第二次返回ErrAlreadyExecuted
func (l *Ledger) Decrease(ctx context.Context, stockKey, logKey, identifier string, n int64) (int64, error) {
	values, err := runScript(ctx, l.rdb, decreaseScript,
		[]string{stockKey, logKey}, identifier, n, time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	if err := codeToErr(values[0]); err != nil {
		return values[1], err
	}
	return values[1], nil
}

// Increase 回滚库存并记流水，返回回滚后的余量
func (l *Ledger) Increase(ctx context.Context, stockKey, logKey, identifier string, n int64) (int64, error) {
	values, err := runScript(ctx, l.rdb, increaseScript,
		[]string{stockKey, logKey}, identifier, n, time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	if err := codeToErr(values[0]); err != nil {
		return values[1], err
	}
	return values[1], nil
}

// DecreaseTeamDynamic 加入拼团队伍，计数不存在时自动初始化为1
// 队伍容量 = target + 恢复量，满了返回ErrTeamFull
func (l *Ledger) DecreaseTeamDynamic(ctx context.Context, activityID int64, teamID, identifier string, target int64) (int64, error) {
	keys := []string{
		TeamStockKey(activityID, teamID),
		TeamStockLogKey(activityID, teamID),
		TeamRecoveryKey(activityID, teamID),
	}
	values, err := runScript(ctx, l.rdb, decreaseTeamScript, keys, identifier, target, time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	if err := codeToErr(values[0]); err != nil {
		return values[1], err
	}
	return values[1], nil
}

// DecreaseGoodsAndJoinTeam 一个脚本里完成商品扣减和入队
// teamID为空代表首次开团，只扣商品不入队
func (l *Ledger) DecreaseGoodsAndJoinTeam(ctx context.Context, activityID int64, goodsID, teamID, identifier string, n, target int64) (CompoundResult, error) {
	joinTeam := "0"
	teamKey, teamLogKey, recoveryKey := "-", "-", "-"
	if teamID != "" {
		joinTeam = "1"
		teamKey = TeamStockKey(activityID, teamID)
		teamLogKey = TeamStockLogKey(activityID, teamID)
		recoveryKey = TeamRecoveryKey(activityID, teamID)
	}
	keys := []string{
		GoodsStockKey(activityID, goodsID),
		GoodsStockLogKey(activityID, goodsID),
		teamKey, teamLogKey, recoveryKey,
	}
	values, err := runScript(ctx, l.rdb, decreaseGoodsAndTeamScript, keys,
		identifier, n, target, time.Now().UnixMilli(), joinTeam)
	if err != nil {
		return CompoundResult{}, err
	}
	result := CompoundResult{GoodsRemaining: values[1], TeamCount: values[2]}
	if err := codeToErr(values[0]); err != nil {
		return result, err
	}
	return result, nil
}

// RecoverTeamSeat 取消订单让出座位，恢复量随活动有效期过期
func (l *Ledger) RecoverTeamSeat(ctx context.Context, activityID int64, teamID string, validTime time.Duration) (int64, error) {
	values, err := recoveryTeamScript.Run(ctx, l.rdb,
		[]string{TeamRecoveryKey(activityID, teamID)}, int64(validTime.Seconds())).Int64()
	if err != nil {
		return 0, err
	}
	return values, nil
}

// GetLog 查单条流水，不存在时返回(nil, nil)
func (l *Ledger) GetLog(ctx context.Context, logKey, identifier string) (*model.StockLog, error) {
	raw, err := l.rdb.HGet(ctx, logKey, identifier).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.ParseStockLog(raw)
}

// RemoveLog 删除一条流水，对账通过或回滚完成后调用
func (l *Ledger) RemoveLog(ctx context.Context, logKey, identifier string) error {
	return l.rdb.HDel(ctx, logKey, identifier).Err()
}

// AllLogs 取一个流水hash下的全部流水，对账和补偿任务用
func (l *Ledger) AllLogs(ctx context.Context, logKey string) (map[string]*model.StockLog, error) {
	raw, err := l.rdb.HGetAll(ctx, logKey).Result()
	if err != nil {
		return nil, err
	}
	logs := make(map[string]*model.StockLog, len(raw))
	for identifier, value := range raw {
		entry, err := model.ParseStockLog(value)
		if err != nil {
			return nil, fmt.Errorf("解析流水失败 %s: %w", identifier, err)
		}
		logs[identifier] = entry
	}
	return logs, nil
}

// ScanLogKeys 按pattern扫流水key，用SCAN不用KEYS
func (l *Ledger) ScanLogKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := l.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// InitGoodsStock 活动预热时初始化商品库存计数
// SETNX语义，已有计数的不覆盖，返回是否真的写入了
func (l *Ledger) InitGoodsStock(ctx context.Context, activityID int64, goodsID string, n int64) (bool, error) {
	return l.rdb.SetNX(ctx, GoodsStockKey(activityID, goodsID), n, 0).Result()
}

// InitTeamStock 预热队伍人数计数，起始值1和拼团脚本的自动初始化保持一致
func (l *Ledger) InitTeamStock(ctx context.Context, activityID int64, teamID string) (bool, error) {
	return l.rdb.SetNX(ctx, TeamStockKey(activityID, teamID), 1, 0).Result()
}

// GetStock 读当前计数，不存在返回ErrStockNotFound
func (l *Ledger) GetStock(ctx context.Context, stockKey string) (int64, error) {
	n, err := l.rdb.Get(ctx, stockKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrStockNotFound
	}
	return n, err
}
