package inbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"linkmesh/pkg/protocol"
	"linkmesh/pkg/queue"
)

// Publisher publishes records as one unit and returns one future per record,
// in record order.
type Publisher interface {
	Publish(ctx context.Context, records []Record) []*queue.Future[struct{}]
}

// ErrMessagePanic wraps a panic raised while processing a single message.
var ErrMessagePanic = errors.New("inbound: message processing panic")

// RPCOptions tunes an RPCProcessor.
type RPCOptions struct {
	// PublishTimeout bounds the wait for a batch's publish futures.
	PublishTimeout time.Duration
	// ProcessTimeout bounds Process when the caller's context has no deadline.
	ProcessTimeout time.Duration
	Logger         *zap.Logger
}

type rpcQueue = queue.BufferedQueue[*protocol.LinkInMessage, *protocol.LinkManagerResponse]

type rpcItem = queue.ItemWithSource[*protocol.LinkInMessage, *protocol.LinkManagerResponse]

// RPCProcessor answers link messages synchronously while batching their
// processing and publication through a BufferedQueue.
type RPCProcessor struct {
	proc  *Processor
	pub   Publisher
	queue *rpcQueue
	opts  RPCOptions
	log   *zap.Logger
}

// NewRPCProcessor builds an RPCProcessor draining on exec.
func NewRPCProcessor(proc *Processor, pub Publisher, exec queue.Executor, opts RPCOptions) (*RPCProcessor, error) {
	if proc == nil || pub == nil {
		return nil, errors.New("inbound: processor and publisher are required")
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.L().Named("inbound.rpc")
	}
	return &RPCProcessor{
		proc:  proc,
		pub:   pub,
		queue: queue.New[*protocol.LinkInMessage, *protocol.LinkManagerResponse](exec, queue.WithLogger(opts.Logger)),
		opts:  opts,
		log:   opts.Logger,
	}, nil
}

// Start begins draining with r as the batch handler.
func (r *RPCProcessor) Start() error {
	return r.queue.Start(r)
}

// Stop stops draining. A drain already running completes on its own
// publish results. Requests still buffered never resolve, so callers of
// Process rely on their context or ProcessTimeout.
func (r *RPCProcessor) Stop() {
	r.queue.Stop()
}

// Process submits msg and waits for its reply. An empty reply is returned
// when processing produced none; failures are returned unchanged.
func (r *RPCProcessor) Process(ctx context.Context, msg *protocol.LinkInMessage) (*protocol.LinkManagerResponse, error) {
	if _, ok := ctx.Deadline(); !ok && r.opts.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.ProcessTimeout)
		defer cancel()
	}
	reply, err := r.queue.Add(msg).Wait(ctx)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		reply = &protocol.LinkManagerResponse{}
	}
	return reply, nil
}

// Handle processes a batch, publishes every produced record in one call and
// answers each request exactly once.
func (r *RPCProcessor) Handle(batch []*queue.Request[*protocol.LinkInMessage]) ([]rpcItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.PublishTimeout)
	defer cancel()

	type span struct {
		resp       Response
		err        error
		start, end int
	}
	spans := make([]span, len(batch))
	var records []Record
	for i, req := range batch {
		resp, err := r.handleOne(ctx, req.Value)
		spans[i] = span{resp: resp, err: err, start: len(records)}
		records = append(records, resp.Records...)
		spans[i].end = len(records)
	}

	var futs []*queue.Future[struct{}]
	if len(records) > 0 {
		futs = r.pub.Publish(ctx, records)
		if len(futs) != len(records) {
			return nil, fmt.Errorf("inbound: publisher returned %d futures for %d records", len(futs), len(records))
		}
	}

	out := make([]rpcItem, 0, len(batch))
	for i, req := range batch {
		s := spans[i]
		if s.err != nil {
			r.proc.metrics.failed.Add(ctx, 1)
			out = append(out, queue.Reply(req, queue.Err[*protocol.LinkManagerResponse](s.err)))
			continue
		}
		if err := waitAll(ctx, futs[s.start:s.end]); err != nil {
			r.proc.metrics.failed.Add(ctx, 1)
			r.log.Warn("publish failed", zap.Int("records", s.end-s.start), zap.Error(err))
			out = append(out, queue.Reply(req, queue.Err[*protocol.LinkManagerResponse](err)))
			continue
		}
		if s.end > s.start {
			r.proc.metrics.published.Add(ctx, 1)
		}
		reply := s.resp.Reply
		if reply == nil {
			reply = &protocol.LinkManagerResponse{}
		}
		out = append(out, queue.Reply(req, queue.Ok(reply)))
	}
	return out, nil
}

func (r *RPCProcessor) handleOne(ctx context.Context, msg *protocol.LinkInMessage) (resp Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("recovered panic while processing link message", zap.Any("panic", rec))
			resp = Response{}
			err = fmt.Errorf("%w: %v", ErrMessagePanic, rec)
		}
	}()
	return r.proc.Handle(ctx, msg), nil
}

func waitAll(ctx context.Context, futs []*queue.Future[struct{}]) error {
	var errs []error
	for _, f := range futs {
		if _, err := f.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
