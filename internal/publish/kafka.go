// Package publish mirrors pair switches and refreshed views onto a Kafka topic.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"tradedash/config"
	"tradedash/internal/breakeven"
	"tradedash/internal/coordinator"
	"tradedash/logger"
	"tradedash/models"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the JSON value of every published message. The message key is the
// pair label so one partition sees a pair's events in order.
type Event struct {
	Type      string      `json:"type"`
	Base      string      `json:"base"`
	Quote     string      `json:"quote"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

type bookSummary struct {
	BestAsk *float64 `json:"best_ask,omitempty"`
	BestBid *float64 `json:"best_bid,omitempty"`
	Mid     *float64 `json:"mid,omitempty"`
	Asks    int      `json:"asks"`
	Bids    int      `json:"bids"`
	Last    float64  `json:"last"`
}

type breakEvenSummary struct {
	Provenance breakeven.Provenance `json:"provenance"`
	Outcome    breakeven.Outcome    `json:"outcome"`
	Rows       int                  `json:"rows"`
	StartPrice *float64             `json:"start_price,omitempty"`
}

// Publisher implements coordinator.Presenter. Events are queued without
// blocking the caller; when the queue is full the event is dropped.
type Publisher struct {
	coordinator.NopPresenter

	cfg    config.KafkaConfig
	writer MessageWriter
	events chan Event
	log    *logger.Log
	now    func() time.Time

	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	dropped int
}

func NewPublisher(cfg config.KafkaConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	p := newPublisher(cfg, w)
	p.log.WithComponent("publish").WithFields(logger.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	}).Info("kafka publisher initialized")
	return p, nil
}

func newPublisher(cfg config.KafkaConfig, w MessageWriter) *Publisher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	return &Publisher{
		cfg:    cfg,
		writer: w,
		events: make(chan Event, cfg.BufferSize),
		log:    logger.GetLogger(),
		now:    time.Now,
	}
}

func (p *Publisher) PairChanged(snap models.PairSnapshot) {
	p.enqueue(snap.Pair, "pair_changed", snap)
}

func (p *Publisher) OrderBook(pair models.Pair, view models.OrderBookView, ticker models.Ticker, _ int) {
	p.enqueue(pair, "orderbook", bookSummary{
		BestAsk: view.BestAsk,
		BestBid: view.BestBid,
		Mid:     view.Mid,
		Asks:    len(view.Asks),
		Bids:    len(view.Bids),
		Last:    ticker.Last,
	})
}

func (p *Publisher) BreakEven(pair models.Pair, result breakeven.Result) {
	p.enqueue(pair, "breakeven", breakEvenSummary{
		Provenance: result.Provenance,
		Outcome:    result.Outcome,
		Rows:       len(result.Table),
		StartPrice: result.StartPrice,
	})
}

func (p *Publisher) SessionProfit(pair models.Pair, profit models.SessionProfit) {
	p.enqueue(pair, "session_profit", profit)
}

func (p *Publisher) enqueue(pair models.Pair, typ string, data interface{}) {
	ev := Event{Type: typ, Base: pair.Base, Quote: pair.Quote, Timestamp: p.now(), Data: data}
	select {
	case p.events <- ev:
	default:
		p.mu.Lock()
		p.dropped++
		dropped := p.dropped
		p.mu.Unlock()
		p.log.WithComponent("publish").WithPair(pair.Base, pair.Quote).WithFields(logger.Fields{
			"type":    typ,
			"dropped": dropped,
		}).Warn("publish queue full, dropping event")
	}
}

func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("kafka publisher already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	p.log.WithComponent("publish").Debug("starting kafka publisher")

	p.wg.Add(1)
	go p.run()
	return nil
}

func (p *Publisher) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			p.drain()
			return
		case ev := <-p.events:
			p.write(p.ctx, ev)
		}
	}
}

// drain writes whatever is still queued with a short deadline of its own.
func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-p.events:
			p.write(ctx, ev)
		default:
			return
		}
	}
}

func (p *Publisher) write(ctx context.Context, ev Event) {
	log := p.log.WithComponent("publish").WithPair(ev.Base, ev.Quote)
	data, err := json.Marshal(ev)
	if err != nil {
		log.WithError(err).Warn("failed to marshal event")
		return
	}
	msg := kafka.Message{
		Key:   []byte(ev.Base + "/" + ev.Quote),
		Value: data,
		Time:  ev.Timestamp,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.WithError(err).Warn("failed to write message")
		return
	}
	log.WithFields(logger.Fields{"type": ev.Type}).Debug("event written to kafka")
}

func (p *Publisher) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
	if err := p.writer.Close(); err != nil {
		p.log.WithComponent("publish").WithError(err).Warn("failed to close kafka writer")
	}
	p.log.WithComponent("publish").Debug("kafka publisher stopped")
}
