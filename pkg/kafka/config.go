package kafka

import "time"

// ProducerOption configures Producer.
type ProducerOption func(*ProducerConfig)

// ProducerConfig holds producer configuration.
type ProducerConfig struct {
	Brokers          []string      `yaml:"-"`
	RequiredAcks     int           `yaml:"required_acks" default:"-1"`
	Compression      string        `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
	MaxAttempts      int           `yaml:"max_attempts" default:"3"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	BatchSize        int           `yaml:"batch_size" default:"100"`
	BatchBytes       int           `yaml:"batch_bytes" default:"1048576"`
	BatchTimeout     time.Duration `yaml:"batch_timeout" default:"100ms"`
	Async            bool          `yaml:"async"`
	HashByKey        bool          `yaml:"hash_by_key" default:"true"`
	AutoCreateTopics bool          `yaml:"auto_create_topics"`
}

// WithProducerConfig copies a whole config section over the defaults.
func WithProducerConfig(cfg ProducerConfig) ProducerOption {
	return func(c *ProducerConfig) {
		brokers := c.Brokers
		*c = cfg
		if len(c.Brokers) == 0 {
			c.Brokers = brokers
		}
	}
}

// WithBrokers sets Kafka brokers.
func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Brokers = brokers
	}
}

// WithCompression sets compression type.
func WithCompression(compression string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Compression = compression
	}
}

// WithAsync toggles async writes (fire-and-forget).
func WithAsync(async bool) ProducerOption {
	return func(c *ProducerConfig) {
		c.Async = async
	}
}

// WithHashByKey sets hash balancer for per-key (symbol) ordering.
func WithHashByKey(hash bool) ProducerOption {
	return func(c *ProducerConfig) {
		c.HashByKey = hash
	}
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Brokers     []string      `yaml:"-"`
	GroupID     string        `yaml:"group_id" default:"stockcast"`
	StartOffset string        `yaml:"start_offset" default:"latest" validate:"oneof=earliest latest"`
	Workers     int           `yaml:"workers" default:"2" validate:"gte=1"`
	BufferSize  int           `yaml:"buffer_size" default:"16"`
	RetryMax    int           `yaml:"retry_max" default:"3"`
	BackoffMin  time.Duration `yaml:"backoff_min" default:"100ms"`
	BackoffMax  time.Duration `yaml:"backoff_max" default:"5s"`
	DLQTopic    string        `yaml:"dlq_topic"`
	MinBytes    int           `yaml:"min_bytes" default:"1"`
	MaxBytes    int           `yaml:"max_bytes" default:"10000000"`
}

// WithConsumerConfig copies a whole config section over the defaults.
func WithConsumerConfig(cfg ConsumerConfig) ConsumerOption {
	return func(c *ConsumerConfig) {
		brokers := c.Brokers
		*c = cfg
		if len(c.Brokers) == 0 {
			c.Brokers = brokers
		}
	}
}

// WithConsumerBrokers sets Kafka brokers.
func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Brokers = brokers
	}
}

// WithConsumerGroupID sets consumer group ID.
func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.GroupID = groupID
	}
}

// WithConsumerWorkers sets number of worker goroutines.
func WithConsumerWorkers(count int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Workers = count
	}
}

// WithConsumerRetry configures retry attempts and backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ sets a Kafka topic name for DLQ.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.DLQTopic = topic
	}
}
