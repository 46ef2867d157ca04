package kafka

import (
	"fmt"

	"github.com/IBM/sarama"

	"pipeflow/internal/options"
	"pipeflow/internal/property"
	"pipeflow/internal/record"
	"pipeflow/sink"
)

type Config struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Acks    int16    `yaml:"required_acks"` // 0,1,-1
	// KeyPath selects the message key inside the record; empty sends no key.
	KeyPath string `yaml:"key_path"`
}

type driver struct {
	cfg Config
	p   sarama.SyncProducer
}

// NewWithProducer returns a sink writing through p; Configure then only
// reads the options.
func NewWithProducer(p sarama.SyncProducer) sink.Adapter {
	return &driver{p: p}
}

func (d *driver) Configure(c any) error {
	switch cfg := c.(type) {
	case Config:
		d.cfg = cfg
	case map[string]any:
		if err := options.DecodeTagged(cfg, &d.cfg, "yaml"); err != nil {
			return fmt.Errorf("kafka-sink: %w", err)
		}
	default:
		return fmt.Errorf("kafka-sink: want Config, got %T", c)
	}
	if d.cfg.Topic == "" {
		return fmt.Errorf("kafka-sink: no topic configured")
	}
	if d.p != nil {
		return nil
	}
	if len(d.cfg.Brokers) == 0 {
		return fmt.Errorf("kafka-sink: no brokers configured")
	}

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.RequiredAcks(d.cfg.Acks)
	sc.Producer.Return.Successes = true
	var err error
	d.p, err = sarama.NewSyncProducer(d.cfg.Brokers, sc)
	return err
}

func (d *driver) Push(rec any) error {
	value, err := record.Encode(rec)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.cfg.Topic,
		Value: sarama.ByteEncoder(value),
	}
	if d.cfg.KeyPath != "" {
		if k := property.GetOrNil(rec, d.cfg.KeyPath); k != nil {
			msg.Key = sarama.StringEncoder(fmt.Sprint(k))
		}
	}
	if _, _, err := d.p.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka-sink: %w", err)
	}
	return nil
}

func (d *driver) Close() error {
	if d.p == nil {
		return nil
	}
	p := d.p
	d.p = nil
	return p.Close()
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
