package initialize

import "go.uber.org/zap"

func InitLogger() {
	// 开发模式的logger，带颜色和caller，直接替换zap的全局logger
	// 业务代码里统一用zap.S()的sugared logger打印
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(logger)
}
