package progression

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
)

// queuedCommand represents a command enqueued in the command bus for processing.
// Each queuedCommand includes the context for cancellation, the command itself,
// and a response channel to return the processing result.
type queuedCommand struct {
	Ctx        context.Context
	Command    RawCommand
	ResponseCh chan<- commandResult
}

// commandResult represents the result of processing a command.
type commandResult struct {
	Result AppendResult
	Err    error
}

// CommandBus is an in-process transport in front of a Router.
//
// Commands are spread over a fixed number of shards by hashing their stream
// hint, or their correlation id when no hint is given. Each shard is drained
// by a single worker, so commands sharing a hint are handled one at a time
// and in arrival order. Different shards run in parallel.
type CommandBus struct {
	router *Router
	queues []chan queuedCommand
	stopCh chan struct{}
	once   sync.Once
	mu     sync.RWMutex
	wg     sync.WaitGroup
}

// NewCommandBus starts shardCount workers, each with a queue of bufferSize.
//
// Example:
//
//	bus := NewCommandBus(router, 100, 8)
//	defer bus.Stop()
func NewCommandBus(router *Router, bufferSize int, shardCount int) *CommandBus {
	if shardCount <= 0 {
		shardCount = 1
	}
	if bufferSize < 0 {
		bufferSize = 0
	}

	bus := &CommandBus{
		router: router,
		queues: make([]chan queuedCommand, shardCount),
		stopCh: make(chan struct{}),
	}

	for i := range bus.queues {
		bus.queues[i] = make(chan queuedCommand, bufferSize)
		bus.wg.Add(1)
		go bus.worker(bus.queues[i])
	}

	return bus
}

// Dispatch enqueues a command and waits for its result. It is safe to call
// concurrently. It fails with ErrBusStopped once Stop has been called.
func (b *CommandBus) Dispatch(ctx context.Context, cmd RawCommand) (AppendResult, error) {
	b.mu.RLock()
	select {
	case <-b.stopCh:
		b.mu.RUnlock()
		return AppendResult{}, ErrBusStopped
	default:
	}

	responseCh := make(chan commandResult, 1)
	queue := b.queues[b.shard(cmd.Metadata)]

	select {
	case queue <- queuedCommand{Ctx: ctx, Command: cmd, ResponseCh: responseCh}:
		b.mu.RUnlock()
	case <-ctx.Done():
		b.mu.RUnlock()
		return AppendResult{}, ctx.Err()
	}

	select {
	case result := <-responseCh:
		return result.Result, result.Err
	case <-ctx.Done():
		return AppendResult{}, ctx.Err()
	}
}

// worker processes commands from a single shard queue.
func (b *CommandBus) worker(queue chan queuedCommand) {
	defer b.wg.Done()
	for cmd := range queue {
		cmd.ResponseCh <- b.handle(cmd)
	}
}

func (b *CommandBus) handle(cmd queuedCommand) (result commandResult) {
	defer func() {
		if r := recover(); r != nil {
			result = commandResult{Err: fmt.Errorf("panic in handler for %s: %v", cmd.Command.Metadata.Name, r)}
		}
	}()

	if err := cmd.Ctx.Err(); err != nil {
		return commandResult{Err: err}
	}
	res, err := b.router.Dispatch(cmd.Ctx, cmd.Command)
	return commandResult{Result: res, Err: err}
}

func (b *CommandBus) shard(md Metadata) int {
	key := md.StreamHint
	if key == "" {
		key = md.CorrelationID
	}
	if key == "" {
		key = md.ID.String()
	}
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return int(hash.Sum32() % uint32(len(b.queues)))
}

// Stop shuts down the bus.
//
// It stops accepting new commands, lets the workers finish everything
// already queued and returns once they are done. Stop is idempotent.
func (b *CommandBus) Stop() {
	b.once.Do(func() {
		b.mu.Lock()
		close(b.stopCh)
		for _, q := range b.queues {
			close(q)
		}
		b.mu.Unlock()
		b.wg.Wait()
	})
}
