package function

import (
	"context"
	"fmt"

	"github.com/aliyun/fc-go-sdk"
	"github.com/myysophia/replay-ingest/internal/config"
	"github.com/myysophia/replay-ingest/internal/db/models"
	"github.com/myysophia/replay-ingest/internal/logger"
	"go.uber.org/zap"
)

// FCAPI 使用到的函数计算接口
type FCAPI interface {
	PublishServiceVersion(input *fc.PublishServiceVersionInput) (*fc.PublishServiceVersionOutput, error)
	GetAlias(input *fc.GetAliasInput) (*fc.GetAliasOutput, error)
	UpdateAlias(input *fc.UpdateAliasInput) (*fc.UpdateAliasOutput, error)
	InvokeFunction(input *fc.InvokeFunctionInput) (*fc.InvokeFunctionOutput, error)
}

// NewFCClient 创建函数计算客户端
func NewFCClient(cfg *config.FunctionComputeConfig) (*fc.Client, error) {
	client, err := fc.NewClient(
		cfg.Endpoint,
		cfg.APIVersion,
		cfg.AccessKeyID,
		cfg.AccessKeySecret,
	)
	if err != nil {
		return nil, fmt.Errorf("创建函数计算客户端失败: %w", err)
	}
	return client, nil
}

// FCDeployer 函数计算的版本和别名按服务维度管理
type FCDeployer struct {
	client      FCAPI
	serviceName string
}

// NewFCDeployer 创建部署器
func NewFCDeployer(client FCAPI, serviceName string) *FCDeployer {
	return &FCDeployer{client: client, serviceName: serviceName}
}

// AliasVersion 别名当前指向的版本
func (d *FCDeployer) AliasVersion(_ context.Context, alias string) (string, error) {
	out, err := d.client.GetAlias(fc.NewGetAliasInput(d.serviceName, alias))
	if err != nil {
		return "", fmt.Errorf("查询别名 %s 失败: %w", alias, err)
	}
	if out.VersionID == nil {
		return "", fmt.Errorf("别名 %s 未指向任何版本", alias)
	}
	return *out.VersionID, nil
}

// PublishVersion 发布服务版本
func (d *FCDeployer) PublishVersion(_ context.Context, description string) (string, error) {
	input := fc.NewPublishServiceVersionInput(d.serviceName).WithDescription(description)
	out, err := d.client.PublishServiceVersion(input)
	if err != nil {
		return "", fmt.Errorf("发布服务版本失败: %w", err)
	}
	if out.VersionID == nil {
		return "", fmt.Errorf("发布服务版本未返回版本号")
	}
	return *out.VersionID, nil
}

// UpdateAlias 更新别名
func (d *FCDeployer) UpdateAlias(_ context.Context, alias, version string) error {
	input := fc.NewUpdateAliasInput(d.serviceName, alias).WithVersionID(version)
	if _, err := d.client.UpdateAlias(input); err != nil {
		return fmt.Errorf("更新别名 %s 失败: %w", alias, err)
	}
	logger.Info("别名已更新",
		zap.String("service", d.serviceName),
		zap.String("alias", alias),
		zap.String("version", version))
	return nil
}

// ConsumerEnabled 函数计算的 Kafka 消费由本服务的 consume 命令负责，始终视为启用
func (d *FCDeployer) ConsumerEnabled(context.Context) (bool, error) {
	return true, nil
}

// SetConsumerEnabled 不支持
func (d *FCDeployer) SetConsumerEnabled(context.Context, bool) error {
	return fmt.Errorf("%w: 函数计算触发器开关", ErrUnsupported)
}

// FCInvoker 同步调用函数计算上的回放处理函数
type FCInvoker struct {
	client       FCAPI
	serviceName  string
	functionName string
	qualifier    string
}

// NewFCInvoker 创建调用器
func NewFCInvoker(client FCAPI, serviceName, functionName, qualifier string) *FCInvoker {
	return &FCInvoker{
		client:       client,
		serviceName:  serviceName,
		functionName: functionName,
		qualifier:    qualifier,
	}
}

// ProcessUpload 处理上传事件
func (i *FCInvoker) ProcessUpload(_ context.Context, event *models.UploadEvent) error {
	payload, err := newProcessRequest(event)
	if err != nil {
		return fmt.Errorf("编码处理请求失败: %w", err)
	}

	logger.Debug("调用函数计算处理上传",
		zap.String("service", i.serviceName),
		zap.String("function", i.functionName),
		zap.String("shortid", event.ShortID))

	input := fc.NewInvokeFunctionInput(i.serviceName, i.functionName).WithPayload(payload)
	if i.qualifier != "" {
		input = input.WithQualifier(i.qualifier)
	}

	out, err := i.client.InvokeFunction(input)
	if err != nil {
		return fmt.Errorf("调用函数计算服务失败: %w", err)
	}
	// 函数抛出异常时返回 X-Fc-Error-Type 头
	return classifyResult(out.Payload, out.Header.Get("X-Fc-Error-Type") != "")
}
