package stream

import (
	"context"
	"fmt"
	"math/big"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/myysophia/replay-ingest/internal/config"
)

// KinesisAPI KinesisShards 依赖的客户端接口
type KinesisAPI interface {
	DescribeStreamSummary(ctx context.Context, params *kinesis.DescribeStreamSummaryInput, optFns ...func(*kinesis.Options)) (*kinesis.DescribeStreamSummaryOutput, error)
	ListShards(ctx context.Context, params *kinesis.ListShardsInput, optFns ...func(*kinesis.Options)) (*kinesis.ListShardsOutput, error)
	SplitShard(ctx context.Context, params *kinesis.SplitShardInput, optFns ...func(*kinesis.Options)) (*kinesis.SplitShardOutput, error)
	MergeShards(ctx context.Context, params *kinesis.MergeShardsInput, optFns ...func(*kinesis.Options)) (*kinesis.MergeShardsOutput, error)
}

// NewKinesisClient 创建 Kinesis 客户端，未配置静态凭证时使用默认凭证链
func NewKinesisClient(ctx context.Context, cfg *config.KinesisConfig) (*kinesis.Client, error) {
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
		return nil, fmt.Errorf("创建AWS配置失败: %w", err)
	}

	return kinesis.NewFromConfig(awsCfg, func(o *kinesis.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// KinesisShards 基于 Kinesis 的 ShardAPI
type KinesisShards struct {
	client     KinesisAPI
	streamName string
}

// NewKinesisShards 创建分片管理适配器
func NewKinesisShards(client KinesisAPI, streamName string) *KinesisShards {
	return &KinesisShards{client: client, streamName: streamName}
}

// StreamStatus 查询流状态
func (k *KinesisShards) StreamStatus(ctx context.Context) (string, error) {
	out, err := k.client.DescribeStreamSummary(ctx, &kinesis.DescribeStreamSummaryInput{
		StreamName: aws.String(k.streamName),
	})
	if err != nil {
		return "", err
	}
	return string(out.StreamDescriptionSummary.StreamStatus), nil
}

// ListShards 列出全部分片，包括已关闭的
func (k *KinesisShards) ListShards(ctx context.Context) ([]Shard, error) {
	var shards []Shard
	// 带 NextToken 时不能再传 StreamName
	input := &kinesis.ListShardsInput{StreamName: aws.String(k.streamName)}
	for {
		out, err := k.client.ListShards(ctx, input)
		if err != nil {
			return nil, err
		}
		for _, s := range out.Shards {
			shard, err := toShard(s)
			if err != nil {
				return nil, err
			}
			shards = append(shards, shard)
		}
		if out.NextToken == nil || *out.NextToken == "" {
			return shards, nil
		}
		input = &kinesis.ListShardsInput{NextToken: out.NextToken}
	}
}

// SplitShard 在 newStartingHashKey 处拆分
func (k *KinesisShards) SplitShard(ctx context.Context, shardID string, newStartingHashKey *big.Int) error {
	_, err := k.client.SplitShard(ctx, &kinesis.SplitShardInput{
		StreamName:         aws.String(k.streamName),
		ShardToSplit:       aws.String(shardID),
		NewStartingHashKey: aws.String(newStartingHashKey.String()),
	})
	return err
}

// MergeShards 合并两个相邻分片
func (k *KinesisShards) MergeShards(ctx context.Context, shardID, adjacentShardID string) error {
	_, err := k.client.MergeShards(ctx, &kinesis.MergeShardsInput{
		StreamName:           aws.String(k.streamName),
		ShardToMerge:         aws.String(shardID),
		AdjacentShardToMerge: aws.String(adjacentShardID),
	})
	return err
}

func toShard(s types.Shard) (Shard, error) {
	id := aws.ToString(s.ShardId)
	if s.HashKeyRange == nil {
		return Shard{}, fmt.Errorf("分片 %s 缺少哈希范围", id)
	}
	start, ok := new(big.Int).SetString(aws.ToString(s.HashKeyRange.StartingHashKey), 10)
	if !ok {
		return Shard{}, fmt.Errorf("分片 %s 起始哈希键无效", id)
	}
	end, ok := new(big.Int).SetString(aws.ToString(s.HashKeyRange.EndingHashKey), 10)
	if !ok {
		return Shard{}, fmt.Errorf("分片 %s 结束哈希键无效", id)
	}
	return Shard{
		ID:              id,
		StartingHashKey: start,
		EndingHashKey:   end,
		Open:            s.SequenceNumberRange == nil || s.SequenceNumberRange.EndingSequenceNumber == nil,
	}, nil
}
