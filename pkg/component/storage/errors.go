package storage

import "errors"

var (
	// ErrClientExists 同名客户端已注册
	ErrClientExists = errors.New("storage client already registered")

	// ErrClientNotFound 客户端不存在
	ErrClientNotFound = errors.New("storage client not found")

	// ErrInvalidClient 名称为空或客户端为 nil
	ErrInvalidClient = errors.New("invalid storage client")
)
