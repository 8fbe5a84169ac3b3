package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	JWT      JWTConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig
	Storage  StorageConfig
	Stream   StreamConfig
	Function FunctionConfig
	Canary   CanaryConfig
	Ingest   IngestConfig
	Metrics  MetricsConfig
	Reaper   ReaperConfig
}

type AppConfig struct {
	Name         string
	Env          string
	Host         string
	Port         int
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
	IdleTimeout  int `mapstructure:"idle_timeout"`
}

type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	ExpiresIn int    `mapstructure:"expires_in"`
	Issuer    string
	// 运维账号密码的 bcrypt 哈希
	AdminPasswordHash string `mapstructure:"admin_password_hash"`
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	Username        string
	Password        string
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	URL     string
	Addr    string
	Enabled bool
}

type LogConfig struct {
	Level    string
	Format   string
	Output   string
	FilePath string `mapstructure:"file_path"`
}

// StorageConfig 原始上传所在的对象存储
type StorageConfig struct {
	Type         string          // AWS_S3 或 ALIYUN_OSS
	RawBucket    string          `mapstructure:"raw_bucket"`
	UploadBucket string          `mapstructure:"upload_bucket"`
	PutURLExpire int             `mapstructure:"put_url_expire"`
	AliyunOSS    AliyunOSSConfig `mapstructure:"aliyun_oss"`
	AWSS3        AWSS3Config     `mapstructure:"aws_s3"`
}

type AliyunOSSConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	Endpoint        string
	Region          string
}

type AWSS3Config struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Region          string
	// 非空时指向 MinIO 等兼容服务
	Endpoint     string
	UsePathStyle bool `mapstructure:"use_path_style"`
}

type StreamConfig struct {
	Backend string // kinesis 或 kafka
	Name    string
	Kinesis KinesisConfig
	Kafka   KafkaConfig

	SLASeconds        int    `mapstructure:"sla_seconds"`
	MinShards         int    `mapstructure:"min_shards"`
	MaxShards         int    `mapstructure:"max_shards"`
	ResizeCron        string `mapstructure:"resize_cron"`
	ReadyMaxAttempts  int    `mapstructure:"ready_max_attempts"`
	ReadyPollInterval int    `mapstructure:"ready_poll_interval"`
	ResizeLockTTL     int    `mapstructure:"resize_lock_ttl"`
}

type KinesisConfig struct {
	Region          string
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Endpoint        string
}

type KafkaConfig struct {
	Brokers []string
	GroupID string `mapstructure:"group_id"`
	MaxWait int    `mapstructure:"max_wait"`
}

type FunctionConfig struct {
	Provider      string                // aws_lambda 或 aliyun_fc
	Name          string                // 处理原始上传的函数
	ProcessorName string                `mapstructure:"processor_name"`
	ProdAlias     string                `mapstructure:"prod_alias"`
	CanaryAlias   string                `mapstructure:"canary_alias"`
	AWS           AWSLambdaConfig       `mapstructure:"aws_lambda"`
	FC            FunctionComputeConfig `mapstructure:"aliyun_fc"`
}

type AWSLambdaConfig struct {
	Region          string
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type FunctionComputeConfig struct {
	Endpoint        string   `mapstructure:"endpoint"`
	APIVersion      string   `mapstructure:"api_version"`
	AccessKeyID     string   `mapstructure:"access_key_id"`
	AccessKeySecret string   `mapstructure:"access_key_secret"`
	ServiceName     string   `mapstructure:"service_name"`
	TriggerNames    []string `mapstructure:"trigger_names"`
}

type CanaryConfig struct {
	MinUploads   int `mapstructure:"min_uploads"`
	MaxWait      int `mapstructure:"max_wait"`
	PollInterval int `mapstructure:"poll_interval"`
}

type IngestConfig struct {
	BatchSize    int    `mapstructure:"batch_size"`
	Concurrency  int    `mapstructure:"concurrency"`
	MaxClockSkew int    `mapstructure:"max_clock_skew"`
	InvokedAlias string `mapstructure:"invoked_alias"`
}

type MetricsConfig struct {
	Namespace                string
	PrometheusURL            string  `mapstructure:"prometheus_url"`
	DefaultProcessingSeconds float64 `mapstructure:"default_processing_seconds"`
}

type ReaperConfig struct {
	Cron      string
	DelayDays int `mapstructure:"delay_days"`
}

var globalConfig *Config

// SetDefaults 设置默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "replay-ingest")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("jwt.expires_in", 3600)
	v.SetDefault("jwt.issuer", "replay-ingest")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("storage.type", "AWS_S3")
	v.SetDefault("storage.put_url_expire", 86400)
	v.SetDefault("stream.backend", "kinesis")
	v.SetDefault("stream.sla_seconds", 300)
	v.SetDefault("stream.min_shards", 1)
	v.SetDefault("stream.max_shards", 64)
	v.SetDefault("stream.resize_cron", "*/15 * * * *")
	v.SetDefault("stream.ready_max_attempts", 15)
	v.SetDefault("stream.ready_poll_interval", 4)
	v.SetDefault("stream.resize_lock_ttl", 900)
	v.SetDefault("stream.kafka.group_id", "replay-ingest")
	v.SetDefault("stream.kafka.max_wait", 1)
	v.SetDefault("function.provider", "aws_lambda")
	v.SetDefault("function.prod_alias", "PROD")
	v.SetDefault("function.canary_alias", "CANARY")
	v.SetDefault("canary.min_uploads", 30)
	v.SetDefault("canary.max_wait", 600)
	v.SetDefault("canary.poll_interval", 5)
	v.SetDefault("ingest.batch_size", 100)
	v.SetDefault("ingest.concurrency", 16)
	v.SetDefault("ingest.max_clock_skew", 86400)
	v.SetDefault("metrics.namespace", "replay_ingest")
	v.SetDefault("metrics.default_processing_seconds", 4.0)
	v.SetDefault("reaper.cron", "15 3 * * *")
	v.SetDefault("reaper.delay_days", 3)
}

// LoadConfig 加载单个配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(configPath)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	globalConfig = config
	return config, nil
}

// LoadConfigWithEnv 根据环境加载多个配置文件
// 支持传入目录（会自动寻找目录下的 app.yaml）或者特定配置文件路径
// env 参数可选："dev", "test", "prod"，默认为 "dev"
func LoadConfigWithEnv(configPath string, env string) (*Config, error) {
	if env == "" {
		env = "dev"
	}

	v := viper.New()
	SetDefaults(v)

	configPaths := []string{
		configPath,
		"./configs",
		"../configs",
		"../../configs",
	}

	configFound := false
	for _, path := range configPaths {
		if path == "" {
			continue
		}
		if isDir(path) {
			baseConfigFile := filepath.Join(path, "app.yaml")
			if fileExists(baseConfigFile) {
				v.SetConfigFile(baseConfigFile)
				configFound = true
				break
			}
		} else if fileExists(path) {
			v.SetConfigFile(path)
			configFound = true
			break
		}
	}

	if !configFound {
		return nil, fmt.Errorf("无法找到配置文件，已尝试路径: %v", configPaths)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取基本配置文件失败: %w", err)
	}

	// 合并环境特定配置
	envConfigFile := filepath.Join(filepath.Dir(v.ConfigFileUsed()), fmt.Sprintf("app.%s.yaml", env))
	if fileExists(envConfigFile) {
		envViper := viper.New()
		envViper.SetConfigFile(envConfigFile)

		if err := envViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取环境配置文件失败: %w", err)
		}

		if err := v.MergeConfigMap(envViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("合并环境配置失败: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	config.App.Env = env

	if err := config.Validate(); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Validate 校验互相关联的配置项
func (c *Config) Validate() error {
	if c.Stream.MinShards < 1 {
		return fmt.Errorf("stream.min_shards 必须大于 0")
	}
	if c.Stream.MaxShards < c.Stream.MinShards {
		return fmt.Errorf("stream.max_shards (%d) 小于 stream.min_shards (%d)", c.Stream.MaxShards, c.Stream.MinShards)
	}
	// 分片数只在 2 的幂之间调整
	if !powerOfTwo(c.Stream.MinShards) || !powerOfTwo(c.Stream.MaxShards) {
		return fmt.Errorf("stream.min_shards (%d) 和 stream.max_shards (%d) 必须是 2 的幂", c.Stream.MinShards, c.Stream.MaxShards)
	}
	if c.Stream.SLASeconds <= 0 {
		return fmt.Errorf("stream.sla_seconds 必须大于 0")
	}
	if c.Reaper.DelayDays < 1 {
		return fmt.Errorf("reaper.delay_days 至少为 1")
	}
	return nil
}

func powerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// 检查是否是目录
func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// 检查文件是否存在
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	return globalConfig
}

// SetConfig 替换全局配置，测试使用
func SetConfig(cfg *Config) {
	globalConfig = cfg
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.DBName, c.SSLMode)
}

// GetConnMaxLifetime 获取数据库连接最大生命周期
func (c *DatabaseConfig) GetConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetime) * time.Second
}

// GetJWTExpiration 获取 JWT 过期时间
func (c *JWTConfig) GetJWTExpiration() time.Duration {
	return time.Duration(c.ExpiresIn) * time.Second
}

// GetPutURLExpiration 获取上传地址的有效期
func (c *StorageConfig) GetPutURLExpiration() time.Duration {
	return time.Duration(c.PutURLExpire) * time.Second
}

func (c *StreamConfig) GetReadyPollInterval() time.Duration {
	return time.Duration(c.ReadyPollInterval) * time.Second
}

func (c *StreamConfig) GetResizeLockTTL() time.Duration {
	return time.Duration(c.ResizeLockTTL) * time.Second
}

func (c *KafkaConfig) GetMaxWait() time.Duration {
	return time.Duration(c.MaxWait) * time.Second
}

// GetMaxWait 获取等待金丝雀上传的最长时间
func (c *CanaryConfig) GetMaxWait() time.Duration {
	return time.Duration(c.MaxWait) * time.Second
}

func (c *CanaryConfig) GetPollInterval() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// GetMaxClockSkew 获取允许的客户端时钟偏差
func (c *IngestConfig) GetMaxClockSkew() time.Duration {
	return time.Duration(c.MaxClockSkew) * time.Second
}
