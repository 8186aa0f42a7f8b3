package global

import (
	"GroupBuyMarket/config"

	"github.com/go-redsync/redsync/v4"
	goredislib "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	DB *gorm.DB

	Redis *goredislib.Client

	// RS 分布式锁，定时任务抢占用
	RS *redsync.Redsync

	ServerConfig *config.ServerConfig = new(config.ServerConfig)

	NacosConfig *config.NacosConfig = &config.NacosConfig{}
)
