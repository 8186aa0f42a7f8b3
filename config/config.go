package config

type MysqlConfig struct {
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port"`
	Name     string `mapstructure:"db" json:"db"`
	User     string `mapstructure:"user" json:"user"`
	Password string `mapstructure:"password" json:"password"`
}

type RedisConfig struct {
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`
}

type RocketmqConfig struct {
	Host      string `mapstructure:"host" json:"host"`
	Port      int    `mapstructure:"port" json:"port"`
	GroupName string `mapstructure:"group" json:"group"`
}

// JobConfig 定时任务的参数，全部可以通过nacos热更新
type JobConfig struct {
	// 对账任务的执行间隔，单位秒
	ReconcileInterval int `mapstructure:"reconcile_interval" json:"reconcile_interval"`
	// 补偿任务的执行间隔，单位秒
	CompensateInterval int `mapstructure:"compensate_interval" json:"compensate_interval"`
	// 归档任务的执行间隔，单位秒
	ArchiveInterval int `mapstructure:"archive_interval" json:"archive_interval"`
}

type ServerConfig struct {
	Name         string         `mapstructure:"name" json:"name"`
	Host         string         `mapstructure:"host" json:"host"`
	Port         int            `mapstructure:"port" json:"port"`
	MysqlInfo    MysqlConfig    `mapstructure:"mysql" json:"mysql"`
	RedisInfo    RedisConfig    `mapstructure:"redis" json:"redis"`
	RocketmqInfo RocketmqConfig `mapstructure:"rocketmq" json:"rocketmq"`
	JobInfo      JobConfig      `mapstructure:"job" json:"job"`
}

type NacosConfig struct {
	Host      string `mapstructure:"host"`
	Port      uint64 `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	DataId    string `mapstructure:"dataid"`
	Group     string `mapstructure:"group"`
}
