package model

import (
	"encoding/json"
	"strings"
)

// Redis库存流水的动作类型
const (
	StockActionDecrease     = "decrease"
	StockActionIncrease     = "increase"
	StockActionDecreaseTeam = "decrease_team"
)

// 流水标识前缀，标识的格式：<前缀>_<userId>_<orderId>
const (
	IdentifierPrefixDecrease = "DECREASE"
	IdentifierPrefixIncrease = "INCREASE"
)

// StockLog Redis库存流水，lua脚本里用cjson写进hash的value
// 对账和补偿任务都靠它还原一次扣减
type StockLog struct {
	Action string `json:"action"`
	From   int64  `json:"from"`
	To     int64  `json:"to"`
	// cjson有可能把数字编码成整型或字符串，统一用json.Number接
	Change    json.Number `json:"change"`
	By        string      `json:"by"`
	Timestamp int64       `json:"timestamp"`
}

func ParseStockLog(raw string) (*StockLog, error) {
	var l StockLog
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (l *StockLog) ChangeAsInt() int64 {
	n, err := l.Change.Int64()
	if err != nil {
		// 兜底走float解析，cjson在部分版本会输出小数
		f, ferr := l.Change.Float64()
		if ferr != nil {
			return 0
		}
		return int64(f)
	}
	return n
}

// ExtractUserID 从流水标识里取userId
func (l *StockLog) ExtractUserID() string {
	parts := strings.Split(l.By, "_")
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}

// ExtractOrderID 从流水标识里取orderId
func (l *StockLog) ExtractOrderID() string {
	parts := strings.Split(l.By, "_")
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}
