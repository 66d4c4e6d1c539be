package svc

import "errors"

// ErrNoSourcesEnabled 错误：没有任何可用的衍生品数据源
var ErrNoSourcesEnabled = errors.New("no derivatives sources enabled")

// ErrStorageInitFailed 错误：存储初始化失败
var ErrStorageInitFailed = errors.New("storage initialization failed")
