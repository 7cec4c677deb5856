// Package stream follows the backend's live feed for the active pair.
package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"tradedash/config"
	"tradedash/internal/coordinator"
	"tradedash/internal/market"
	"tradedash/internal/metrics"
	"tradedash/logger"
	"tradedash/models"
)

// PairSource yields the active pair. *pairstate.State satisfies it.
type PairSource interface {
	Snapshot() models.PairSnapshot
}

// Sink receives normalized books from the feed.
type Sink interface {
	OrderBook(pair models.Pair, view models.OrderBookView, ticker models.Ticker, precision int)
}

type subscribeMessage struct {
	Action string `json:"action"`
	Base   string `json:"base"`
	Quote  string `json:"quote"`
}

type inboundMessage struct {
	Type  string          `json:"type"`
	Base  string          `json:"base"`
	Quote string          `json:"quote"`
	Data  json.RawMessage `json:"data"`
}

// Subscriber keeps one websocket to the backend and re-subscribes whenever the
// active pair changes. It implements coordinator.Presenter so it can sit in
// the coordinator's presenter list; only PairChanged is acted on.
type Subscriber struct {
	coordinator.NopPresenter

	cfg    config.StreamConfig
	pairs  PairSource
	sink   Sink
	log    *logger.Log
	wg     sync.WaitGroup
	pairCh chan models.Pair

	mu      sync.Mutex
	running bool
	ctx     context.Context

	// last payloads for the followed pair, merged into every push
	lastPair   models.Pair
	lastView   models.OrderBookView
	lastTicker models.Ticker
}

func NewSubscriber(cfg config.StreamConfig, pairs PairSource, sink Sink) *Subscriber {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	return &Subscriber{
		cfg:    cfg,
		pairs:  pairs,
		sink:   sink,
		log:    logger.GetLogger(),
		pairCh: make(chan models.Pair, 1),
	}
}

// PairChanged queues a re-subscription. It never blocks; only the newest pair
// is kept.
func (s *Subscriber) PairChanged(snap models.PairSnapshot) {
	if snap.Base == "" {
		return
	}
	for {
		select {
		case s.pairCh <- snap.Pair:
			return
		default:
		}
		select {
		case <-s.pairCh:
		default:
		}
	}
}

// Start dials the feed and keeps it alive until ctx is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("stream subscriber already running")
	}
	s.running = true
	s.ctx = ctx
	s.mu.Unlock()

	log := s.log.WithComponent("stream").WithFields(logger.Fields{"operation": "start"})
	if !s.cfg.Enabled || s.cfg.URL == "" {
		log.Info("live stream disabled")
		return nil
	}

	log.WithFields(logger.Fields{"url": s.cfg.URL}).Info("starting stream subscriber")
	s.wg.Add(1)
	go s.stream()
	return nil
}

// Stop waits for the stream goroutine. Cancel the Start context first.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.wg.Wait()
	s.log.WithComponent("stream").Info("stream subscriber stopped")
}

func (s *Subscriber) stream() {
	defer s.wg.Done()
	log := s.log.WithComponent("stream").WithFields(logger.Fields{"worker": "stream"})

	for {
		if s.ctx.Err() != nil {
			return
		}
		if err := s.session(); err != nil {
			log.WithError(err).Warn("stream session ended, reconnecting")
		}
		select {
		case <-time.After(s.cfg.ReconnectDelay):
		case <-s.ctx.Done():
			return
		}
	}
}

// session runs one connection until it fails or the context ends. All writes
// happen on this goroutine.
func (s *Subscriber) session() error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   s.cfg.ReadBuffer,
	}
	conn, _, err := dialer.DialContext(s.ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	if snap := s.pairs.Snapshot(); snap.Base != "" {
		if err := s.subscribe(conn, snap.Pair); err != nil {
			return err
		}
	}

	msgs := make(chan []byte, 64)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go s.readLoop(conn, msgs, readErr, done)

	for {
		select {
		case <-s.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return nil
		case p := <-s.pairCh:
			if err := s.subscribe(conn, p); err != nil {
				return err
			}
		case msg := <-msgs:
			s.handle(msg)
		case err := <-readErr:
			return fmt.Errorf("read stream: %w", err)
		}
	}
}

type messageReader interface {
	ReadMessage() (int, []byte, error)
}

// readLoop forwards frames to msgs until the read fails, the session ends
// (done closed) or the subscriber stops.
func (s *Subscriber) readLoop(r messageReader, msgs chan<- []byte, readErr chan<- error, done <-chan struct{}) {
	for {
		_, msg, err := r.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		select {
		case msgs <- msg:
		case <-done:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Subscriber) subscribe(conn *websocket.Conn, p models.Pair) error {
	if err := conn.WriteJSON(subscribeMessage{Action: "subscribe", Base: p.Base, Quote: p.Quote}); err != nil {
		return fmt.Errorf("subscribe %s: %w", p, err)
	}
	s.log.WithComponent("stream").WithPair(p.Base, p.Quote).Debug("subscribed")
	return nil
}

func (s *Subscriber) handle(raw []byte) {
	log := s.log.WithComponent("stream")

	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.WithError(err).Debug("failed to decode message")
		return
	}
	if msg.Type != "orderbook" && msg.Type != "ticker" {
		return
	}

	snap := s.pairs.Snapshot()
	p := models.Pair{Base: models.CanonicalCode(msg.Base), Quote: models.CanonicalCode(msg.Quote)}
	if p != snap.Pair {
		metrics.IncrementStaleDrop("stream")
		return
	}
	logger.IncrementStreamMessage()

	if s.lastPair != p {
		s.lastPair = p
		s.lastView = models.OrderBookView{Asks: []models.DepthRow{}, Bids: []models.DepthRow{}}
		s.lastTicker = models.Ticker{}
	}

	switch msg.Type {
	case "orderbook":
		var book models.RawOrderBook
		if err := json.Unmarshal(msg.Data, &book); err != nil {
			log.WithPair(p.Base, p.Quote).WithError(err).Debug("bad order book payload")
			return
		}
		s.lastView = market.Normalize(book)
	case "ticker":
		var ticker models.Ticker
		if err := json.Unmarshal(msg.Data, &ticker); err != nil {
			log.WithPair(p.Base, p.Quote).WithError(err).Debug("bad ticker payload")
			return
		}
		s.lastTicker = ticker
	}

	s.sink.OrderBook(p, s.lastView, s.lastTicker, snap.PricePrecision)
}
