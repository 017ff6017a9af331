package di

import (
	"fmt"

	"github.com/aihub/knowledge-rag/internal/config"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// Container 是依赖注入容器的全局实例
var Container *dig.Container

// InitContainer 初始化依赖注入容器，注册配置、日志与全部组件
func InitContainer(cfg *config.Config, logger *zap.Logger) (*dig.Container, error) {
	container, err := NewContainer(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := RegisterInfrastructure(container); err != nil {
		return nil, err
	}
	if err := RegisterProviders(container); err != nil {
		return nil, err
	}
	Container = container
	return container, nil
}

// NewContainer 只注册配置与日志的容器，测试可以在其上替换基础设施
func NewContainer(cfg *config.Config, logger *zap.Logger) (*dig.Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	container := dig.New()
	if err := container.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := container.Provide(func() *zap.Logger { return logger }); err != nil {
		return nil, err
	}
	return container, nil
}

// GetContainer 获取依赖注入容器实例
func GetContainer() *dig.Container {
	return Container
}

// Invoke 封装dig.Invoke，提供更友好的接口
func Invoke(function interface{}, opts ...dig.InvokeOption) error {
	if Container == nil {
		return fmt.Errorf("di container not initialized")
	}
	return Container.Invoke(function, opts...)
}
