package utils

import (
	"fmt"
	"time"

	"golang.org/x/exp/rand"
)

// GenerateOrderSn 订单号的生成规则
/*
	年月日时分秒+用户id+2位随机数
*/
func GenerateOrderSn(userID string) string {
	now := time.Now()
	r := rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	orderSn := fmt.Sprintf("%d%d%d%d%d%d%s%d",
		now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Nanosecond(),
		userID, r.Intn(90)+10,
	)
	return orderSn
}

// GenerateTeamID 队伍id，8位随机数字
func GenerateTeamID() string {
	r := rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	return fmt.Sprintf("%08d", r.Intn(100000000))
}
