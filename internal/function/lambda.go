package function

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/myysophia/replay-ingest/internal/config"
	"github.com/myysophia/replay-ingest/internal/db/models"
	"github.com/myysophia/replay-ingest/internal/logger"
	"go.uber.org/zap"
)

// LambdaAPI 使用到的 Lambda 接口
type LambdaAPI interface {
	PublishVersion(ctx context.Context, params *lambda.PublishVersionInput, optFns ...func(*lambda.Options)) (*lambda.PublishVersionOutput, error)
	GetAlias(ctx context.Context, params *lambda.GetAliasInput, optFns ...func(*lambda.Options)) (*lambda.GetAliasOutput, error)
	UpdateAlias(ctx context.Context, params *lambda.UpdateAliasInput, optFns ...func(*lambda.Options)) (*lambda.UpdateAliasOutput, error)
	ListEventSourceMappings(ctx context.Context, params *lambda.ListEventSourceMappingsInput, optFns ...func(*lambda.Options)) (*lambda.ListEventSourceMappingsOutput, error)
	UpdateEventSourceMapping(ctx context.Context, params *lambda.UpdateEventSourceMappingInput, optFns ...func(*lambda.Options)) (*lambda.UpdateEventSourceMappingOutput, error)
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// NewLambdaClient 创建 Lambda 客户端，未配置静态凭证时使用默认凭证链
func NewLambdaClient(ctx context.Context, cfg *config.AWSLambdaConfig) (*lambda.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		logger.Error("创建AWS配置失败", zap.Error(err))
		return nil, fmt.Errorf("创建AWS配置失败: %w", err)
	}
	return lambda.NewFromConfig(awsCfg), nil
}

// LambdaDeployer 管理 Lambda 函数的版本、别名和事件源映射
type LambdaDeployer struct {
	client       LambdaAPI
	functionName string
}

// NewLambdaDeployer 创建部署器
func NewLambdaDeployer(client LambdaAPI, functionName string) *LambdaDeployer {
	return &LambdaDeployer{client: client, functionName: functionName}
}

// AliasVersion 别名当前指向的版本
func (d *LambdaDeployer) AliasVersion(ctx context.Context, alias string) (string, error) {
	out, err := d.client.GetAlias(ctx, &lambda.GetAliasInput{
		FunctionName: aws.String(d.functionName),
		Name:         aws.String(alias),
	})
	if err != nil {
		return "", fmt.Errorf("查询别名 %s 失败: %w", alias, err)
	}
	return aws.ToString(out.FunctionVersion), nil
}

// PublishVersion 发布新版本
func (d *LambdaDeployer) PublishVersion(ctx context.Context, description string) (string, error) {
	out, err := d.client.PublishVersion(ctx, &lambda.PublishVersionInput{
		FunctionName: aws.String(d.functionName),
		Description:  aws.String(description),
	})
	if err != nil {
		return "", fmt.Errorf("发布函数版本失败: %w", err)
	}
	return aws.ToString(out.Version), nil
}

// UpdateAlias 更新别名
func (d *LambdaDeployer) UpdateAlias(ctx context.Context, alias, version string) error {
	out, err := d.client.UpdateAlias(ctx, &lambda.UpdateAliasInput{
		FunctionName:    aws.String(d.functionName),
		Name:            aws.String(alias),
		FunctionVersion: aws.String(version),
	})
	if err != nil {
		return fmt.Errorf("更新别名 %s 失败: %w", alias, err)
	}
	logger.Info("别名已更新",
		zap.String("function", d.functionName),
		zap.String("alias", alias),
		zap.String("version", aws.ToString(out.FunctionVersion)))
	return nil
}

func (d *LambdaDeployer) eventSourceMappings(ctx context.Context) ([]types.EventSourceMappingConfiguration, error) {
	var mappings []types.EventSourceMappingConfiguration
	input := &lambda.ListEventSourceMappingsInput{FunctionName: aws.String(d.functionName)}
	for {
		out, err := d.client.ListEventSourceMappings(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("列出事件源映射失败: %w", err)
		}
		mappings = append(mappings, out.EventSourceMappings...)
		if out.NextMarker == nil || *out.NextMarker == "" {
			return mappings, nil
		}
		input.Marker = out.NextMarker
	}
}

// ConsumerEnabled 任一事件源映射处于启用状态即视为启用
func (d *LambdaDeployer) ConsumerEnabled(ctx context.Context) (bool, error) {
	mappings, err := d.eventSourceMappings(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range mappings {
		switch aws.ToString(m.State) {
		case "Enabled", "Enabling", "Updating":
			return true, nil
		}
	}
	return false, nil
}

// SetConsumerEnabled 启用或停用全部事件源映射
func (d *LambdaDeployer) SetConsumerEnabled(ctx context.Context, enabled bool) error {
	mappings, err := d.eventSourceMappings(ctx)
	if err != nil {
		return err
	}
	logger.Info("切换流消费者",
		zap.String("function", d.functionName),
		zap.Bool("enabled", enabled),
		zap.Int("mappings", len(mappings)))

	for _, m := range mappings {
		_, err := d.client.UpdateEventSourceMapping(ctx, &lambda.UpdateEventSourceMappingInput{
			UUID:    m.UUID,
			Enabled: aws.Bool(enabled),
		})
		if err != nil {
			return fmt.Errorf("更新事件源映射 %s 失败: %w", aws.ToString(m.UUID), err)
		}
	}
	return nil
}

// LambdaInvoker 同步调用回放处理函数
type LambdaInvoker struct {
	client       LambdaAPI
	functionName string
	qualifier    string
}

// NewLambdaInvoker 创建调用器，qualifier 为空时调用 $LATEST
func NewLambdaInvoker(client LambdaAPI, functionName, qualifier string) *LambdaInvoker {
	return &LambdaInvoker{client: client, functionName: functionName, qualifier: qualifier}
}

// ProcessUpload 处理上传事件
func (i *LambdaInvoker) ProcessUpload(ctx context.Context, event *models.UploadEvent) error {
	payload, err := newProcessRequest(event)
	if err != nil {
		return fmt.Errorf("编码处理请求失败: %w", err)
	}

	input := &lambda.InvokeInput{
		FunctionName:   aws.String(i.functionName),
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        payload,
	}
	if i.qualifier != "" {
		input.Qualifier = aws.String(i.qualifier)
	}

	out, err := i.client.Invoke(ctx, input)
	if err != nil {
		return fmt.Errorf("调用处理函数 %s 失败: %w", i.functionName, err)
	}
	return classifyResult(out.Payload, out.FunctionError != nil)
}
