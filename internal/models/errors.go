package models

import "errors"

// 错误分类，调用方用 errors.Is 判断
var (
	// ErrTransport 设备读取传输失败（超时、不可达、响应异常），按配置重试后降级为日志
	ErrTransport = errors.New("transport error")

	// ErrConfiguration 配置错误（无可用阈值档案、边界顺序非法），跳过该设备
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidState 报警状态机非法流转（确认/解除已关闭的报警）
	ErrInvalidState = errors.New("invalid alert state")

	// ErrPersistence 存储不可用，当前周期的报警变更不生效
	ErrPersistence = errors.New("persistence error")

	// ErrNotFound 实体不存在
	ErrNotFound = errors.New("not found")
)
