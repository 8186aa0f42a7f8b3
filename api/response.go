package api

// Response 统一响应结构
type Response struct {
	Code string      `json:"code"`
	Info string      `json:"info"`
	Data interface{} `json:"data,omitempty"`
}

const (
	CodeSuccess        = "0000"
	CodeUnError        = "0001"
	CodeIllegalParam   = "0002"
	CodeStockNotEnough = "E0006" // 库存不足
	CodeTeamFull       = "E0007" // 队伍已满
	CodeOrderPending   = "E0104" // 下单结果待异步确认
	CodeInvalidToken   = "E0105" // 防重令牌无效
	CodeRuleRejected   = "E0106" // 活动规则校验不通过
)

func ok(data interface{}) Response {
	return Response{Code: CodeSuccess, Info: "成功", Data: data}
}

func fail(code, info string) Response {
	return Response{Code: code, Info: info}
}
