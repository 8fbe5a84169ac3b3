package function

import (
	"context"
	"fmt"

	"github.com/myysophia/replay-ingest/internal/config"
	"github.com/myysophia/replay-ingest/internal/ingest"
)

// NewDeployer 根据 function.provider 创建部署器
func NewDeployer(ctx context.Context, cfg *config.FunctionConfig) (Deployer, error) {
	switch cfg.Provider {
	case ProviderAWSLambda, "":
		client, err := NewLambdaClient(ctx, &cfg.AWS)
		if err != nil {
			return nil, err
		}
		return NewLambdaDeployer(client, cfg.Name), nil
	case ProviderAliyunFC:
		client, err := NewFCClient(&cfg.FC)
		if err != nil {
			return nil, err
		}
		return NewFCDeployer(client, cfg.FC.ServiceName), nil
	default:
		return nil, fmt.Errorf("不支持的函数平台: %s", cfg.Provider)
	}
}

// NewInvoker 创建回放处理函数的调用器，qualifier 为调用的别名
func NewInvoker(ctx context.Context, cfg *config.FunctionConfig, qualifier string) (ingest.UploadProcessor, error) {
	switch cfg.Provider {
	case ProviderAWSLambda, "":
		client, err := NewLambdaClient(ctx, &cfg.AWS)
		if err != nil {
			return nil, err
		}
		return NewLambdaInvoker(client, cfg.ProcessorName, qualifier), nil
	case ProviderAliyunFC:
		client, err := NewFCClient(&cfg.FC)
		if err != nil {
			return nil, err
		}
		return NewFCInvoker(client, cfg.FC.ServiceName, cfg.ProcessorName, qualifier), nil
	default:
		return nil, fmt.Errorf("不支持的函数平台: %s", cfg.Provider)
	}
}
