package app

import "github.com/kart-io/docqa/pkg/app/cliflag"

// CliOptions 由命令行程序的顶层配置实现。
type CliOptions interface {
	// Flags 返回按分组组织的 flag。
	Flags() cliflag.NamedFlagSets
	// Complete 填充默认值与环境变量。
	Complete() error
	// Validate 校验配置，返回聚合错误。
	Validate() error
}

// PrintableOptions 可选接口，实现后启动时以 debug 级别输出配置。
type PrintableOptions interface {
	String() string
}
