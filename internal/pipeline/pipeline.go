// Package pipeline consumes inbound customer replies, runs sentiment analysis
// and routing, and hands the routed result to the conversation gateway.
package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"dealerlink/internal/domain"
	"dealerlink/internal/metrics"
	"dealerlink/internal/routing"
	"dealerlink/internal/sentiment"

	"github.com/google/uuid"
)

// Options tunes the pipeline. Zero values pick the defaults.
type Options struct {
	Workers     int           // concurrent routing workers, default 4
	SendTimeout time.Duration // per-message delivery budget, default 30s
}

// Pipeline is the inbound half of the engine: bus -> analyze -> route ->
// gateway. Replies for the same conversation always land on the same worker,
// so per-conversation ordering holds even under concurrency.
type Pipeline struct {
	analyzer *sentiment.Analyzer
	engine   *routing.Engine
	contexts domain.ContextStore
	gateway  domain.ConversationGateway
	logger   *slog.Logger

	workers     int
	sendTimeout time.Duration
	queues      []chan domain.InboundReply
}

func New(analyzer *sentiment.Analyzer, engine *routing.Engine, contexts domain.ContextStore, gw domain.ConversationGateway, logger *slog.Logger, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	p := &Pipeline{
		analyzer:    analyzer,
		engine:      engine,
		contexts:    contexts,
		gateway:     gw,
		logger:      logger,
		workers:     opts.Workers,
		sendTimeout: opts.SendTimeout,
		queues:      make([]chan domain.InboundReply, opts.Workers),
	}
	for i := range p.queues {
		p.queues[i] = make(chan domain.InboundReply, 32)
	}
	return p
}

// Run consumes the inbound channel until it closes or ctx is cancelled, then
// drains the worker queues.
func (p *Pipeline) Run(ctx context.Context, inbound <-chan domain.InboundReply) {
	var wg sync.WaitGroup
	for i, queue := range p.queues {
		wg.Add(1)
		go func(id int, queue <-chan domain.InboundReply) {
			defer wg.Done()
			for reply := range queue {
				p.process(ctx, reply)
			}
		}(i, queue)
	}

	p.logger.Info("pipeline started", "workers", p.workers)

dispatch:
	for {
		select {
		case reply, ok := <-inbound:
			if !ok {
				break dispatch
			}
			p.queues[p.shard(reply)] <- reply
		case <-ctx.Done():
			break dispatch
		}
	}

	for _, queue := range p.queues {
		close(queue)
	}
	wg.Wait()
	p.logger.Info("pipeline stopped")
}

// shard maps a reply to a worker so one conversation is never processed by
// two workers at once.
func (p *Pipeline) shard(reply domain.InboundReply) int {
	h := fnv.New32a()
	h.Write([]byte(reply.DealershipID))
	h.Write([]byte{0})
	h.Write([]byte(reply.CustomerID))
	return int(h.Sum32() % uint32(p.workers))
}

func (p *Pipeline) process(ctx context.Context, reply domain.InboundReply) {
	metrics.InboundReplies.Inc()
	start := time.Now()

	cctx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	defer cancel()

	if err := p.contexts.RecordInteraction(cctx, reply.DealershipID, reply.CustomerID, reply.Content); err != nil {
		p.logger.Error("cannot record interaction", "dealership", reply.DealershipID, "customer", reply.CustomerID, "err", err)
	}

	cc, err := p.contexts.GetCustomerContext(cctx, reply.DealershipID, reply.CustomerID)
	if err != nil {
		// Route anyway; an empty context routes like a new customer.
		p.logger.Error("cannot load customer context", "dealership", reply.DealershipID, "customer", reply.CustomerID, "err", err)
		cc = &domain.CustomerContext{CustomerID: reply.CustomerID, DealershipID: reply.DealershipID}
	}

	// The just-recorded interaction is the message itself; analyze against the
	// history before it.
	history := cc.PreviousMessages
	if n := len(history); n > 0 && history[n-1] == reply.Content {
		history = history[:n-1]
	}
	analysis := p.analyzer.Analyze(reply.Content, history)

	msg := &domain.ChannelMessage{
		ID:             uuid.NewString(),
		ConversationID: reply.DealershipID + ":" + reply.CustomerID,
		CustomerID:     reply.CustomerID,
		DealershipID:   reply.DealershipID,
		Content:        reply.Content,
	}
	decision := p.engine.Decide(msg, analysis, cc, nil)
	metrics.RoutingTotal.Inc()
	metrics.RoutingLatency.Observe(time.Since(start).Seconds())

	if decision.ShouldEscalate {
		metrics.Escalations.Inc()
		if err := p.contexts.RecordEscalation(cctx, reply.DealershipID, reply.CustomerID, decision.EscalationReason); err != nil {
			p.logger.Error("cannot record escalation", "customer", reply.CustomerID, "err", err)
		}
	}

	p.logger.Info("reply processed",
		"dealership", reply.DealershipID,
		"customer", reply.CustomerID,
		"channel", reply.Channel,
		"emotion", analysis.Emotion,
		"agent", decision.RecommendedAgent,
		"priority", decision.Priority,
		"escalate", decision.ShouldEscalate,
	)

	if err := p.gateway.ForwardReply(cctx, reply, decision); err != nil {
		p.logger.Error("cannot forward routed reply", "customer", reply.CustomerID, "err", err)
	}
}

// HandlerSource resolves a channel handler for outbound delivery. Satisfied
// by channel.Factory.
type HandlerSource interface {
	GetChannelHandler(dealershipID string, channel domain.ChannelType) domain.ChannelHandler
}

// Dispatcher sends outbound messages through the right channel handler under
// the configured delivery budget.
type Dispatcher struct {
	handlers    HandlerSource
	gateway     domain.ConversationGateway
	logger      *slog.Logger
	sendTimeout time.Duration
}

func NewDispatcher(handlers HandlerSource, gw domain.ConversationGateway, logger *slog.Logger, sendTimeout time.Duration) *Dispatcher {
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	return &Dispatcher{handlers: handlers, gateway: gw, logger: logger, sendTimeout: sendTimeout}
}

// Send delivers one message on the given channel. Channel-level failures come
// back inside the DeliveryResult; the error covers unusable channels only.
func (d *Dispatcher) Send(ctx context.Context, channel domain.ChannelType, msg *domain.ChannelMessage) (*domain.DeliveryResult, error) {
	handler := d.handlers.GetChannelHandler(msg.DealershipID, channel)
	if handler == nil {
		return nil, fmt.Errorf("channel %s is not configured for dealership %s", channel, msg.DealershipID)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	sctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	result, err := handler.SendMessage(sctx, msg)
	if err != nil {
		return nil, fmt.Errorf("send on %s: %w", channel, err)
	}
	d.gateway.RecordDelivery(ctx, msg, result)
	if !result.Success {
		d.logger.Warn("delivery failed",
			"dealership", msg.DealershipID,
			"channel", channel,
			"message_id", msg.ID,
			"error_code", result.ErrorCode,
			"error", result.Error,
		)
	}
	return result, nil
}
