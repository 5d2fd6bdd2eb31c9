package errors

import "google.golang.org/grpc/codes"

// docqa 服务代码: 20
// 错误码格式: AABBCCC

var (
	// 请求参数错误 (类别 01)
	ErrDocQAInvalidRequest  = Register(New(MakeCode(ServiceDocQA, CategoryRequest, 1), 400, codes.InvalidArgument, "Invalid request parameters", "请求参数无效"))
	ErrDocQAUnsupportedType = Register(New(MakeCode(ServiceDocQA, CategoryRequest, 2), 400, codes.InvalidArgument, "Unsupported file type", "不支持的文件类型"))
	ErrDocQAInvalidChat     = Register(New(MakeCode(ServiceDocQA, CategoryRequest, 3), 400, codes.InvalidArgument, "Invalid conversation", "对话格式无效"))

	// 权限错误 (类别 03)
	ErrDocQAFileForbidden = Register(New(MakeCode(ServiceDocQA, CategoryPermission, 1), 403, codes.PermissionDenied, "File is not owned by caller", "无权操作该文件"))

	// 资源错误 (类别 04)
	ErrDocQAFileNotFound = Register(New(MakeCode(ServiceDocQA, CategoryResource, 1), 404, codes.NotFound, "File not found", "文件不存在"))

	// 状态冲突 (类别 05)
	ErrDocQAInvalidState = Register(New(MakeCode(ServiceDocQA, CategoryConflict, 1), 409, codes.FailedPrecondition, "Invalid file status transition", "文件状态不允许该操作"))

	// 内部错误 (类别 07)
	ErrDocQAIngestFailed = Register(New(MakeCode(ServiceDocQA, CategoryInternal, 1), 500, codes.Internal, "Ingestion failed", "文档入库失败"))
	ErrDocQAQueryFailed  = Register(New(MakeCode(ServiceDocQA, CategoryInternal, 2), 500, codes.Internal, "Query failed", "查询失败"))

	// 外部依赖错误 (类别 10)
	ErrDocQAStorageUnavailable = Register(New(MakeCode(ServiceDocQA, CategoryNetwork, 1), 503, codes.Unavailable, "Object storage unavailable", "对象存储不可用"))
	ErrDocQAModelUnavailable   = Register(New(MakeCode(ServiceDocQA, CategoryNetwork, 2), 503, codes.Unavailable, "Model provider unavailable", "模型服务不可用"))
	ErrDocQAQueueUnavailable   = Register(New(MakeCode(ServiceDocQA, CategoryNetwork, 3), 503, codes.Unavailable, "Job queue unavailable", "任务队列不可用"))

	// 超时 (类别 11)
	ErrDocQAChatTimeout = Register(New(MakeCode(ServiceDocQA, CategoryTimeout, 1), 504, codes.DeadlineExceeded, "Chat timeout", "对话超时"))

	// 配置错误 (类别 12)
	ErrDocQADimensionMismatch = Register(New(MakeCode(ServiceDocQA, CategoryConfig, 1), 500, codes.FailedPrecondition, "Embedding dimension mismatch", "向量维度不匹配"))
	ErrDocQAConfig            = Register(New(MakeCode(ServiceDocQA, CategoryConfig, 2), 500, codes.FailedPrecondition, "Invalid docqa configuration", "docqa 配置错误"))
)
