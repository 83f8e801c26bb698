// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 是所有服务共享的配置结构，App 放业务相关项，Infra 放中间件地址。
type Config struct {
	App   AppConfig   `yaml:"app"`
	Infra InfraConfig `yaml:"infra"`
	Log   LogConfig   `yaml:"log"`
}

type AppConfig struct {
	Name     string      `yaml:"name"`
	HTTPPort int         `yaml:"httpPort"`
	Order    OrderConfig `yaml:"order"`
}

// OrderConfig 订单超时相关的参数。延迟消息的 TTL 与扫描任务的截止时间相互独立。
type OrderConfig struct {
	PaymentTTL        time.Duration `yaml:"paymentTTL"`
	PaymentDeadline   time.Duration `yaml:"paymentDeadline"`
	DeliveryDeadline  time.Duration `yaml:"deliveryDeadline"`
	PaymentSweepCron  string        `yaml:"paymentSweepCron"`
	DeliverySweepCron string        `yaml:"deliverySweepCron"`
	EmbeddedDelay     bool          `yaml:"embeddedDelay"` // 在订单服务进程内同时运行延迟路由器
}

type InfraConfig struct {
	MySQL     MySQLConfig     `yaml:"mysql"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Nacos     NacosConfig     `yaml:"nacos"`
	Payment   PaymentConfig   `yaml:"payment"`
}

type MySQLConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
	MaxIdleConns int    `yaml:"maxIdleConns"`
}

type KafkaConfig struct {
	Brokers         []string `yaml:"brokers"`
	DelayTopic      string   `yaml:"delayTopic"`
	DeadLetterTopic string   `yaml:"deadLetterTopic"`
	TimeoutGroup    string   `yaml:"timeoutGroup"`
	RouterGroup     string   `yaml:"routerGroup"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
}

type NacosConfig struct {
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

type PaymentConfig struct {
	RefundURL string `yaml:"refundURL"` // 为空时使用本地桩实现
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

var current atomic.Pointer[Config]

// GetCurrentConfig 返回最近一次加载的配置；从未加载过时返回默认配置。
func GetCurrentConfig() *Config {
	if c := current.Load(); c != nil {
		return c
	}
	return DefaultConfig()
}

// DefaultConfig 返回本地开发环境使用的默认值。
// 60 秒的支付 TTL 只适合联调，生产环境应通过配置文件改为 15 分钟左右。
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:     "order-service",
			HTTPPort: 8081,
			Order: OrderConfig{
				PaymentTTL:        60 * time.Second,
				PaymentDeadline:   15 * time.Minute,
				DeliveryDeadline:  60 * time.Minute,
				PaymentSweepCron:  "0 * * * * *",
				DeliverySweepCron: "0 0 1 * * *",
			},
		},
		Infra: InfraConfig{
			MySQL: MySQLConfig{
				Host:         "localhost",
				Port:         3306,
				User:         "root",
				Database:     "sky_take_out",
				MaxOpenConns: 20,
				MaxIdleConns: 5,
			},
			Kafka: KafkaConfig{
				Brokers:         []string{"localhost:9092"},
				DelayTopic:      "order.delay.normal",
				DeadLetterTopic: "order.delay.dlx",
				TimeoutGroup:    "order-timeout-consumer-group",
				RouterGroup:     "order-delay-router-group",
			},
			Redis: RedisConfig{Addr: "localhost:6379"},
			Zookeeper: ZookeeperConfig{
				SessionTimeout: 10 * time.Second,
			},
			Nacos: NacosConfig{Group: "DEFAULT_GROUP"},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load 读取 YAML 配置文件（path 为空时只使用默认值），再用环境变量覆盖，最后保存为当前配置。
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	current.Store(cfg)
	return cfg, nil
}

// Validate 检查会导致超时逻辑失效的配置。
func (c *Config) Validate() error {
	o := c.App.Order
	if o.PaymentTTL <= 0 {
		return errors.New("app.order.paymentTTL must be positive")
	}
	if o.PaymentDeadline <= 0 || o.DeliveryDeadline <= 0 {
		return errors.New("app.order deadlines must be positive")
	}
	if len(c.Infra.Kafka.Brokers) == 0 {
		return errors.New("infra.kafka.brokers is empty")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := getEnv("HTTP_PORT", ""); v != "" {
		if port, err := parsePort(v); err == nil {
			cfg.App.HTTPPort = port
		}
	}
	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getEnv("MYSQL_HOST", ""); v != "" {
		cfg.Infra.MySQL.Host = v
	}
	if v := getEnv("MYSQL_PASSWORD", ""); v != "" {
		cfg.Infra.MySQL.Password = v
	}
	if v := getEnv("REDIS_ADDR", ""); v != "" {
		cfg.Infra.Redis.Addr = v
	}
	if v := getEnv("JAEGER_ENDPOINT", ""); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := getEnv("ZOOKEEPER_SERVERS", ""); v != "" {
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	if v := getEnv("NACOS_SERVER_ADDRS", ""); v != "" {
		cfg.Infra.Nacos.ServerAddrs = v
	}
	if v := getEnv("NACOS_NAMESPACE", ""); v != "" {
		cfg.Infra.Nacos.Namespace = v
	}
	if v := getEnv("PAYMENT_TTL", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.Order.PaymentTTL = d
		}
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		cfg.Log.Level = v
	}
}
