package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 结构体包含所有应用的配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"` // `mapstructure` 标签用于Viper绑定结构体
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	AliyunOSS AliyunOSSConfig `mapstructure:"aliyun_oss"`
	S3        S3Config        `mapstructure:"s3"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Access    AccessConfig    `mapstructure:"access"`
	Export    ExportConfig    `mapstructure:"export"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port string `mapstructure:"port" validate:"required"`
	Mode string `mapstructure:"mode" validate:"omitempty,oneof=debug release test"`
}

// MySQLConfig 数据库配置
type MySQLConfig struct {
	DSN          string `mapstructure:"dsn" validate:"required"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"min=0"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"min=0"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
}

// StorageConfig 选择对象存储后端
type StorageConfig struct {
	Type               string        `mapstructure:"type" validate:"required,oneof=minio aliyun_oss s3 memory"`
	Bucket             string        `mapstructure:"bucket" validate:"required"`
	PresignedURLExpiry time.Duration `mapstructure:"presigned_url_expiry" validate:"gt=0"`
}

// MinIOConfig MinIO配置
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type AliyunOSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"` // 例如: https://oss-cn-hangzhou.aliyuncs.com
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// S3Config 兼容 Amazon S3 / Localstack 的配置
type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"` // 留空则使用 AWS 默认解析
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries" validate:"min=0"`
}

// JWTConfig JWT配置，本服务只校验令牌，不签发
type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key" validate:"required"`
	Issuer    string `mapstructure:"issuer"`
}

// zap日志配置
type LogConfig struct {
	OutputPath string `mapstructure:"output_path"`
	ErrorPath  string `mapstructure:"error_path"`
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
}

// AccessConfig 权限解析相关配置
type AccessConfig struct {
	MaxDepth        int           `mapstructure:"max_depth" validate:"gt=0"`
	FolderCacheTTL  time.Duration `mapstructure:"folder_cache_ttl"`
	FolderCacheSize int           `mapstructure:"folder_cache_size" validate:"min=0"` // 为 0 时不启用目录缓存
	GrantLockTTL    time.Duration `mapstructure:"grant_lock_ttl" validate:"gt=0"`
}

// ExportConfig 批量导出任务配置
type ExportConfig struct {
	Workers        int           `mapstructure:"workers" validate:"gt=0"`
	Queue          string        `mapstructure:"queue" validate:"required"`
	URLTTL         time.Duration `mapstructure:"url_ttl" validate:"gt=0"`
	StaleAfter     time.Duration `mapstructure:"stale_after" validate:"gt=0"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	TempDir        string        `mapstructure:"temp_dir"`
	StatusCacheTTL time.Duration `mapstructure:"status_cache_ttl"`
}

var AppConfig *Config // 全局应用配置实例

var validate = validator.New()

// SetDefaults 注册默认值，配置文件和环境变量都没有时生效
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("mysql.dsn", "")
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.max_open_conns", 100)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("storage.type", "minio")
	v.SetDefault("storage.bucket", "go-docspace")
	v.SetDefault("storage.presigned_url_expiry", 15*time.Minute)
	for _, key := range []string{"minio.endpoint", "minio.access_key_id", "minio.secret_access_key",
		"aliyun_oss.endpoint", "aliyun_oss.access_key_id", "aliyun_oss.secret_access_key",
		"s3.endpoint", "s3.access_key_id", "s3.secret_access_key", "jwt.secret_key", "export.temp_dir"} {
		v.SetDefault(key, "")
	}
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.max_retries", 10)
	v.SetDefault("jwt.issuer", "go-docspace")
	v.SetDefault("log.output_path", "logs/app.log")
	v.SetDefault("log.error_path", "logs/error.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("access.max_depth", 64)
	v.SetDefault("access.folder_cache_size", 4096)
	v.SetDefault("access.folder_cache_ttl", 30*time.Second)
	v.SetDefault("access.grant_lock_ttl", 10*time.Second)
	v.SetDefault("export.workers", 4)
	v.SetDefault("export.queue", "docspace:export:jobs")
	v.SetDefault("export.url_ttl", 24*time.Hour)
	v.SetDefault("export.stale_after", time.Hour)
	v.SetDefault("export.sweep_interval", 5*time.Minute)
	v.SetDefault("export.status_cache_ttl", 10*time.Minute)
}

// LoadConfig 加载配置
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")            // 配置文件名 (不带扩展名)
	v.SetConfigType("yaml")              // 配置文件类型
	v.AddConfigPath(".")                 // 在当前目录查找配置文件
	v.AddConfigPath("./configs")         // 也可以添加其他路径，例如 ./configs/
	v.AddConfigPath("/etc/go-docspace/") // 生产环境常见路径

	// 例如：GO_DOCSPACE_MYSQL_DSN 对应 mysql.dsn
	v.SetEnvPrefix("GO_DOCSPACE")
	v.SetEnvKeyReplacer(replacer())
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件未找到不是致命错误，可以依赖环境变量和默认值
		log.Println("Warning: config file not found, using environment variables or default values.")
	}

	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}

	AppConfig = cfg
	log.Println("Configuration loaded successfully with Viper.")
	return cfg, nil
}

func replacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}

// Decode 将 viper 中的配置绑定到结构体并校验
func Decode(v *viper.Viper) (*Config, error) {
	// AutomaticEnv 不会作用于 Unmarshal 中未出现的键，这里逐个绑定
	for _, key := range v.AllKeys() {
		_ = v.BindEnv(key)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置结构体，并检查所选存储后端的必填项
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	switch cfg.Storage.Type {
	case "minio":
		if cfg.MinIO.Endpoint == "" {
			return fmt.Errorf("配置校验失败: minio.endpoint is required when storage.type=minio")
		}
	case "aliyun_oss":
		if cfg.AliyunOSS.Endpoint == "" {
			return fmt.Errorf("配置校验失败: aliyun_oss.endpoint is required when storage.type=aliyun_oss")
		}
	case "s3":
		if cfg.S3.Region == "" {
			return fmt.Errorf("配置校验失败: s3.region is required when storage.type=s3")
		}
	}
	return nil
}

// formatValidationError 把 validator 的错误整理成可读的字段列表
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	msgs := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Namespace()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Namespace(), fe.Param()))
		case "gt", "min":
			msgs = append(msgs, fmt.Sprintf("%s must be %s %s", fe.Namespace(), fe.Tag(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("配置校验失败: %s", strings.Join(msgs, "; "))
}
