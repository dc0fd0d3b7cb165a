package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/tracing"
	"talent-match-go/internal/types"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var rabbitTracer = otel.Tracer("talent-match-go/storage/rabbitmq")

// ErrMessageNacked 表示消息已发出但broker返回了nack
var ErrMessageNacked = errors.New("消息未被broker确认")

// EventPublisher 匹配事件发布接口
type EventPublisher interface {
	// PublishMatchCompleted 发布匹配完成事件
	PublishMatchCompleted(ctx context.Context, event *types.MatchCompletedEvent) error

	// 关闭连接
	Close() error
}

// 确保RabbitMQ实现了EventPublisher接口
var _ EventPublisher = (*RabbitMQ)(nil)

// RabbitMQ 提供消息队列功能
type RabbitMQ struct {
	conn         *amqp.Connection
	channelPool  sync.Pool
	exchangeMap  map[string]bool // 记录已声明的exchange
	publishMutex sync.Mutex      // 保护发布操作
	cfg          *config.RabbitMQConfig
}

// NewRabbitMQ 创建RabbitMQ客户端，并声明匹配事件交换机
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil {
		return nil, fmt.Errorf("RabbitMQ配置不能为空")
	}

	// 使用配置中的完整URL
	if cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}

	// 建立连接
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器 (%s): %w", cfg.URL, err)
	}

	mq := &RabbitMQ{
		conn:        conn,
		exchangeMap: make(map[string]bool),
		cfg:         cfg,
	}

	// 初始化channel池，所有通道开启publisher confirm模式
	mq.channelPool = sync.Pool{
		New: func() interface{} {
			ch, errPool := conn.Channel()
			if errPool != nil {
				log.Printf("创建RabbitMQ通道失败: %v", errPool)
				return nil
			}
			if errPool = ch.Confirm(false); errPool != nil {
				log.Printf("开启RabbitMQ confirm模式失败: %v", errPool)
				ch.Close()
				return nil
			}
			return ch
		},
	}

	// 测试连接和通道
	testCh := mq.getChannel()
	if testCh == nil {
		conn.Close()
		return nil, fmt.Errorf("无法创建RabbitMQ通道")
	}
	mq.putChannel(testCh)

	// 声明匹配事件交换机
	if cfg.MatchEventsExchange != "" {
		if err := mq.EnsureExchange(cfg.MatchEventsExchange, "topic", true); err != nil {
			conn.Close()
			return nil, fmt.Errorf("声明匹配事件交换机失败: %w", err)
		}
	}

	log.Printf("成功连接到RabbitMQ服务器: %s", cfg.URL)
	return mq, nil
}

// 获取可用通道
func (r *RabbitMQ) getChannel() *amqp.Channel {
	ch := r.channelPool.Get()
	if ch == nil {
		newCh, err := r.conn.Channel()
		if err != nil {
			log.Printf("创建新RabbitMQ通道失败: %v", err)
			return nil
		}
		if err = newCh.Confirm(false); err != nil {
			log.Printf("开启RabbitMQ confirm模式失败: %v", err)
			newCh.Close()
			return nil
		}
		return newCh
	}
	return ch.(*amqp.Channel)
}

// 归还通道到池
func (r *RabbitMQ) putChannel(ch *amqp.Channel) {
	if ch != nil {
		r.channelPool.Put(ch)
	}
}

// Close 关闭连接
func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}

// EnsureExchange 确保exchange存在
func (r *RabbitMQ) EnsureExchange(exchangeName, exchangeType string, durable bool) error {
	// 添加安全检查，防止交换机名为空
	if exchangeName == "" {
		return fmt.Errorf("exchange名称不能为空")
	}

	// 防止尝试声明默认交换机
	if exchangeName == "amq.default" || exchangeName == "default" {
		return fmt.Errorf("不能声明默认交换机 '%s'", exchangeName)
	}

	if _, exists := r.exchangeMap[exchangeName]; exists {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	err := ch.ExchangeDeclare(
		exchangeName, // exchange名称
		exchangeType, // exchange类型
		durable,      // 持久化
		false,        // 自动删除
		false,        // 内部专用
		false,        // 非阻塞
		nil,          // 参数
	)
	if err != nil {
		return fmt.Errorf("声明exchange失败: %w", err)
	}

	r.exchangeMap[exchangeName] = true
	log.Printf("已确保exchange存在: '%s'", exchangeName)
	return nil
}

// PublishMessage 发布消息到exchange
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	// 设置消息属性
	var deliveryMode uint8 = 1 // 非持久化
	if persistent {
		deliveryMode = 2 // 持久化
	}

	// 使用context控制超时，等待broker confirm
	confirmation, err := ch.PublishWithDeferredConfirmWithContext(
		ctx,
		exchangeName, // exchange名
		routingKey,   // 路由键
		false,        // 强制
		false,        // 立即
		amqp.Publishing{
			DeliveryMode: deliveryMode,
			ContentType:  "application/json",
			Body:         message,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return err
	}
	if confirmation == nil {
		return nil
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("等待broker confirm失败: %w", err)
	}
	if !acked {
		return ErrMessageNacked
	}
	return nil
}

// PublishJSON 发布JSON格式的消息
func (r *RabbitMQ) PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("JSON序列化失败: %w", err)
	}

	return r.PublishMessage(ctx, exchangeName, routingKey, jsonData, persistent)
}

// PublishMatchCompleted 发布匹配完成事件到匹配事件交换机。
// 发布失败只记录span错误，不应导致匹配结果丢失，由调用方决定是否降级。
func (r *RabbitMQ) PublishMatchCompleted(ctx context.Context, event *types.MatchCompletedEvent) error {
	ctx, span := rabbitTracer.Start(ctx, "RabbitMQ.PublishMatchCompleted",
		trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "rabbitmq"),
		attribute.String("messaging.destination", r.cfg.MatchEventsExchange),
		attribute.String("messaging.routing_key", r.cfg.MatchCompletedRouting),
		attribute.String("match.run_id", event.RunID),
		attribute.String("match.job_id", event.JobID),
	)

	err := r.PublishJSON(ctx, r.cfg.MatchEventsExchange, r.cfg.MatchCompletedRouting, event, true)
	if err != nil {
		if errors.Is(err, ErrMessageNacked) {
			tracing.RecordRabbitMQNack(span, event.RunID, "")
		} else {
			tracing.RecordErrorWithInfo(span, err, tracing.ErrorTypeRabbitMQ,
				attribute.String("messaging.error_type", "publish_failed"))
		}
		return fmt.Errorf("发布匹配完成事件失败: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
