package stock

import "github.com/redis/go-redis/v9"

// lua脚本的返回约定：数组第一位是状态码，后面是计数值
// 0 成功
// 1 库存不足
// 2 队伍已满
// 3 流水已存在（幂等拒绝）
// 4 库存key不存在
// 5 重复加入队伍
const (
	scriptCodeOK            = 0
	scriptCodeNotEnough     = 1
	scriptCodeTeamFull      = 2
	scriptCodeExecuted      = 3
	scriptCodeNotFound      = 4
	scriptCodeDuplicateTeam = 5
)

// 流水hash的过期时间，24小时，过期即默认账已对平
const logExpireSeconds = 86400

// 扣减库存并记流水
// KEYS: 库存key, 流水key
// ARGV: identifier, 扣减数量, 时间戳(ms)
var decreaseScript = redis.NewScript(`
local stockKey = KEYS[1]
local logKey = KEYS[2]
local identifier = ARGV[1]
local change = tonumber(ARGV[2])
local ts = tonumber(ARGV[3])

if redis.call('HEXISTS', logKey, identifier) == 1 then
    return {3, 0}
end
local current = redis.call('GET', stockKey)
if not current then
    return {4, 0}
end
current = tonumber(current)
if current < change then
    return {1, current}
end
local after = current - change
redis.call('SET', stockKey, after)
local entry = cjson.encode({action='decrease', from=current, to=after, change=change, by=identifier, timestamp=ts})
redis.call('HSET', logKey, identifier, entry)
redis.call('EXPIRE', logKey, 86400)
return {0, after}
`)

// 回滚库存并记流水，补偿和取消链路用
var increaseScript = redis.NewScript(`
local stockKey = KEYS[1]
local logKey = KEYS[2]
local identifier = ARGV[1]
local change = tonumber(ARGV[2])
local ts = tonumber(ARGV[3])

if redis.call('HEXISTS', logKey, identifier) == 1 then
    return {3, 0}
end
local current = redis.call('GET', stockKey)
if not current then
    return {4, 0}
end
current = tonumber(current)
local after = current + change
redis.call('SET', stockKey, after)
local entry = cjson.encode({action='increase', from=current, to=after, change=change, by=identifier, timestamp=ts})
redis.call('HSET', logKey, identifier, entry)
redis.call('EXPIRE', logKey, 86400)
return {0, after}
`)

// 动态加入拼团队伍
// 队伍计数不存在时自动初始化为1（首个加入者）
// 容量上限 = 目标人数 + 恢复量，取消的座位通过恢复量让出来
// KEYS: 队伍key, 队伍流水key, 恢复量key
// ARGV: identifier, 目标人数, 时间戳(ms)
var decreaseTeamScript = redis.NewScript(`
local teamKey = KEYS[1]
local logKey = KEYS[2]
local recoveryKey = KEYS[3]
local identifier = ARGV[1]
local target = tonumber(ARGV[2])
local ts = tonumber(ARGV[3])

if redis.call('HEXISTS', logKey, identifier) == 1 then
    return {5, 0}
end
local current = redis.call('GET', teamKey)
if not current then
    redis.call('SET', teamKey, 1)
    local entry = cjson.encode({action='decrease_team', from=0, to=1, change=1, by=identifier, timestamp=ts})
    redis.call('HSET', logKey, identifier, entry)
    redis.call('EXPIRE', logKey, 86400)
    return {0, 1}
end
current = tonumber(current)
local recovery = tonumber(redis.call('GET', recoveryKey) or '0')
if current >= target + recovery then
    return {2, current}
end
local after = current + 1
redis.call('SET', teamKey, after)
local entry = cjson.encode({action='decrease_team', from=current, to=after, change=1, by=identifier, timestamp=ts})
redis.call('HSET', logKey, identifier, entry)
redis.call('EXPIRE', logKey, 86400)
return {0, after}
`)

// 商品扣减和入队一个脚本完成，要么都成要么都不成
// 所有校验放在任何写操作之前，校验失败时不会留下半个结果
// KEYS: 商品key, 商品流水key, 队伍key, 队伍流水key, 恢复量key
// ARGV: identifier, 扣减数量, 目标人数, 时间戳(ms), 是否入队("1"/"0")
var decreaseGoodsAndTeamScript = redis.NewScript(`
local goodsKey = KEYS[1]
local goodsLogKey = KEYS[2]
local teamKey = KEYS[3]
local teamLogKey = KEYS[4]
local recoveryKey = KEYS[5]
local identifier = ARGV[1]
local change = tonumber(ARGV[2])
local target = tonumber(ARGV[3])
local ts = tonumber(ARGV[4])
local joinTeam = ARGV[5] == '1'

if redis.call('HEXISTS', goodsLogKey, identifier) == 1 then
    return {3, 0, 0}
end
local goods = redis.call('GET', goodsKey)
if not goods then
    return {4, 0, 0}
end
goods = tonumber(goods)
if goods < change then
    return {1, goods, 0}
end

local teamCurrent = 0
if joinTeam then
    if redis.call('HEXISTS', teamLogKey, identifier) == 1 then
        return {5, goods, 0}
    end
    local c = redis.call('GET', teamKey)
    if c then
        teamCurrent = tonumber(c)
        local recovery = tonumber(redis.call('GET', recoveryKey) or '0')
        if teamCurrent >= target + recovery then
            return {2, goods, teamCurrent}
        end
    end
end

local goodsAfter = goods - change
redis.call('SET', goodsKey, goodsAfter)
local goodsEntry = cjson.encode({action='decrease', from=goods, to=goodsAfter, change=change, by=identifier, timestamp=ts})
redis.call('HSET', goodsLogKey, identifier, goodsEntry)
redis.call('EXPIRE', goodsLogKey, 86400)

local teamAfter = 0
if joinTeam then
    teamAfter = teamCurrent + 1
    redis.call('SET', teamKey, teamAfter)
    local teamEntry = cjson.encode({action='decrease_team', from=teamCurrent, to=teamAfter, change=1, by=identifier, timestamp=ts})
    redis.call('HSET', teamLogKey, identifier, teamEntry)
    redis.call('EXPIRE', teamLogKey, 86400)
end
return {0, goodsAfter, teamAfter}
`)

// 取消订单让出队伍座位，写恢复量并续期到活动有效期结束
// KEYS: 恢复量key
// ARGV: 有效期秒数
var recoveryTeamScript = redis.NewScript(`
local v = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[1]))
return v
`)

// 防重令牌的原子校验删除，值匹配才删，删成功返回1
var consumeTokenScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
    return 0
end
if v ~= ARGV[1] then
    return 0
end
redis.call('DEL', KEYS[1])
return 1
`)
