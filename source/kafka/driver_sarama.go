package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/zoobzio/clockz"

	"pipeflow/internal/logging"
)

// SaramaDriver reads every partition of the configured topics with a plain
// sarama.Consumer. No offsets are committed.
type SaramaDriver struct {
	cfg      Config
	consumer sarama.Consumer
	clock    clockz.Clock
}

// NewSaramaDriverWithConsumer uses an existing consumer; Configure then
// skips dialing the brokers.
func NewSaramaDriverWithConsumer(c sarama.Consumer) *SaramaDriver {
	return &SaramaDriver{consumer: c}
}

func (d *SaramaDriver) WithClock(clock clockz.Clock) *SaramaDriver {
	d.clock = clock
	return d
}

func (d *SaramaDriver) getClock() clockz.Clock {
	if d.clock == nil {
		return clockz.RealClock
	}
	return d.clock
}

func (d *SaramaDriver) Configure(config Config) error {
	d.cfg = ApplyDefaults(config)
	if d.consumer != nil {
		if len(d.cfg.Topics) == 0 {
			return fmt.Errorf("kafka: no topics configured")
		}
		return nil
	}
	if err := d.cfg.Validate(); err != nil {
		return err
	}

	ver, err := sarama.ParseKafkaVersion(d.cfg.Version)
	if err != nil {
		return err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.Consumer.Return.Errors = true
	if d.cfg.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if d.cfg.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = d.cfg.SASLUser, d.cfg.SASLPass
	}
	d.consumer, err = sarama.NewConsumer(d.cfg.Brokers, sc)
	return err
}

func (d *SaramaDriver) initialOffset() int64 {
	if d.cfg.StartFrom == "newest" {
		return sarama.OffsetNewest
	}
	return sarama.OffsetOldest
}

func (d *SaramaDriver) Run(ctx context.Context, emit EmitFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var pcs []sarama.PartitionConsumer
	defer func() {
		for _, pc := range pcs {
			_ = pc.Close()
		}
	}()
	for _, topic := range d.cfg.Topics {
		partitions, err := d.consumer.Partitions(topic)
		if err != nil {
			return fmt.Errorf("kafka: partitions of %q: %w", topic, err)
		}
		for _, p := range partitions {
			pc, err := d.consumer.ConsumePartition(topic, p, d.initialOffset())
			if err != nil {
				return fmt.Errorf("kafka: consume %s[%d]: %w", topic, p, err)
			}
			pcs = append(pcs, pc)
		}
	}

	msgs := make(chan *sarama.ConsumerMessage)
	var wg sync.WaitGroup
	for _, pc := range pcs {
		wg.Add(1)
		go func(pc sarama.PartitionConsumer) {
			defer wg.Done()
			errs := pc.Errors()
			for {
				select {
				case <-ctx.Done():
					return
				case err, ok := <-errs:
					if !ok {
						errs = nil
						continue
					}
					logging.L().Warn("kafka: partition consumer error", "err", err)
				case m, ok := <-pc.Messages():
					if !ok {
						return
					}
					select {
					case msgs <- m:
					case <-ctx.Done():
						return
					}
				}
			}
		}(pc)
	}
	defer wg.Wait()
	defer cancel()

	emitted := 0
	for {
		var idle <-chan time.Time
		if d.cfg.IdleTimeout > 0 {
			idle = d.getClock().After(d.cfg.IdleTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
			return nil
		case m := <-msgs:
			if err := emit(toMessage(m)); err != nil {
				return err
			}
			emitted++
			if d.cfg.MaxMessages > 0 && emitted >= d.cfg.MaxMessages {
				return nil
			}
		}
	}
}

func (d *SaramaDriver) Close() error {
	if d.consumer == nil {
		return nil
	}
	return d.consumer.Close()
}

func toMessage(m *sarama.ConsumerMessage) Message {
	return Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Headers:   toHeaderMap(m.Headers),
		Timestamp: m.Timestamp,
	}
}

func toHeaderMap(src []*sarama.RecordHeader) map[string][]byte {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string][]byte, len(src))
	for _, h := range src {
		out[string(h.Key)] = h.Value
	}
	return out
}
