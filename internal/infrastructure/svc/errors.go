package svc

import "errors"

// ErrNoStorage 未启用任何关系型存储
var ErrNoStorage = errors.New("no relational storage enabled")

// ErrStorageInitFailed 错误：存储初始化失败
var ErrStorageInitFailed = errors.New("storage initialization failed")
