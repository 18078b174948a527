package config

import (
	"context"
	"fmt"
	"strings"
)

// Config 配置加载器自身的配置
type Config struct {
	Name      string   // 配置文件名称（不含扩展名）
	Paths     []string // 配置文件搜索路径，默认 ["./", "./config"]
	FileType  string   // 配置文件类型 (yaml, json, etc.)
	EnvPrefix string   // 环境变量前缀，默认 "BULWARK"
}

// validate 设置默认值并验证配置
func (c *Config) validate() error {
	if c.Name == "" {
		c.Name = "config"
	}
	if c.Paths == nil {
		c.Paths = []string{".", "./config"}
	}
	if c.FileType == "" {
		c.FileType = "yaml"
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = "BULWARK"
	}
	c.EnvPrefix = strings.ToUpper(c.EnvPrefix)
	return nil
}

// New 创建配置加载器
// 返回的 Loader 需要调用 Load 之后才能读取配置
func New(opts ...Option) (Loader, error) {
	cfg := &Config{}
	for _, o := range opts {
		o(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return newLoader(cfg), nil
}

// MustLoad 创建加载器并立即加载配置，出错时 panic
// 仅用于初始化阶段
func MustLoad(opts ...Option) Loader {
	l, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create config loader: %v", err))
	}
	if err := l.Load(context.Background()); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return l
}
