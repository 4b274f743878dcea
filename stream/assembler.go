// Package stream drives the fetch→resolve→decrypt pipeline across an
// ordered segment list and emits plaintext chunks in manifest order
// while overlapping network latency across a bounded window of segments.
package stream

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sync"
	"time"

	"streamcore/decrypt"
	"streamcore/enums"
	"streamcore/fetch"
	"streamcore/keys"
	"streamcore/models"
	"streamcore/util"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type segmentResult struct {
	index int
	chunk *models.DecryptedChunk
	err   error
}

// Assembler produces a lazy, forward-only, non-restartable sequence of
// decrypted chunks for one manifest. At most Window segments are
// resident (in flight or decoded but not yet emitted) at any time.
type Assembler struct {
	manifest *models.StreamManifest
	fetcher  fetch.Fetcher
	resolver *keys.Resolver
	config   *models.ProcessConfig

	id           string
	ownsResolver bool

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	closeOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}

	out chan *models.DecryptedChunk

	mu       sync.Mutex
	terminal error
}

func NewAssembler(
	manifest *models.StreamManifest,
	fetcher fetch.Fetcher,
	config *models.ProcessConfig,
) *Assembler {
	config = models.GetProcessConfig(config)
	assembler := newAssembler(manifest, fetcher, keys.NewResolver(fetcher, config.KeyCacheScope), config)
	assembler.ownsResolver = true
	return assembler
}

// NewAssemblerWithResolver reuses a caller-owned resolver, letting a
// session-scoped key cache survive across manifest refreshes. The
// caller remains responsible for closing the resolver.
func NewAssemblerWithResolver(
	manifest *models.StreamManifest,
	fetcher fetch.Fetcher,
	resolver *keys.Resolver,
	config *models.ProcessConfig,
) *Assembler {
	config = models.GetProcessConfig(config)
	resolver.Reset()
	return newAssembler(manifest, fetcher, resolver, config)
}

func newAssembler(
	manifest *models.StreamManifest,
	fetcher fetch.Fetcher,
	resolver *keys.Resolver,
	config *models.ProcessConfig,
) *Assembler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Assembler{
		manifest: manifest,
		fetcher:  fetcher,
		resolver: resolver,
		config:   config,
		id:       uuid.NewString(),
		ctx:      ctx,
		cancel:   cancel,
		stopCh:   make(chan struct{}),
		out:      make(chan *models.DecryptedChunk),
	}
}

// Next returns the next chunk in manifest order. It returns io.EOF after
// the last segment, or the terminal error once the stream has failed.
// The pipeline starts lazily on the first call.
func (a *Assembler) Next(ctx context.Context) (*models.DecryptedChunk, error) {
	a.startOnce.Do(a.start)

	select {
	case chunk, ok := <-a.out:
		if !ok {
			return nil, a.terminalError()
		}
		return chunk, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close cancels outstanding work. Safe to call at any time; a consumer
// that stops reading early must call it to release in-window fetches.
func (a *Assembler) Close() {
	a.closeOnce.Do(func() {
		a.cancel()
		if a.ownsResolver {
			a.resolver.Close()
		}
	})
}

// WriteTo drains the whole stream into w, returning the number of
// plaintext bytes written.
func (a *Assembler) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	defer a.Close()

	var written int64
	for {
		chunk, err := a.Next(ctx)
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
		n, err := w.Write(chunk.Data)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("failed to write chunk %d: %w", chunk.Index, err)
		}
	}
}

func (a *Assembler) start() {
	descriptors := a.descriptors()
	if len(descriptors) == 0 {
		close(a.out)
		return
	}
	zap.S().Debugf(
		"stream %s: starting pipeline, %d segments, window %d",
		a.id, len(descriptors), a.config.Window,
	)

	// window tokens bound resident buffers: a token is taken per launch
	// and returned only when the segment's chunk has been emitted
	tokens := make(chan struct{}, a.config.Window)
	for i := 0; i < a.config.Window; i++ {
		tokens <- struct{}{}
	}

	results := make(chan segmentResult)
	var wg sync.WaitGroup

	// launcher. results must not close while launches are still pending,
	// so the launcher itself waits for its workers after the loop; a
	// separate closer could observe a zero WaitGroup between launches.
	go func() {
		defer func() {
			wg.Wait()
			close(results)
		}()

		for _, descriptor := range descriptors {
			select {
			case <-tokens:
			case <-a.stopCh:
				return
			case <-a.ctx.Done():
				return
			}

			wg.Add(1)
			go func(descriptor *models.SegmentDescriptor) {
				defer wg.Done()
				chunk, err := a.processSegment(a.ctx, descriptor)
				select {
				case results <- segmentResult{index: descriptor.Index, chunk: chunk, err: err}:
				case <-a.ctx.Done():
				}
			}(descriptor)
		}
	}()

	go a.collect(descriptors, results, tokens)
}

// descriptors returns the emission-ordered work list, the init segment
// first when the manifest has one.
func (a *Assembler) descriptors() []*models.SegmentDescriptor {
	if a.manifest.Init == nil {
		return a.manifest.Segments
	}
	descriptors := make([]*models.SegmentDescriptor, 0, len(a.manifest.Segments)+1)
	descriptors = append(descriptors, a.manifest.Init)
	return append(descriptors, a.manifest.Segments...)
}

// collect reorders completed segments and emits them strictly by index.
// A segment finishing out of order stays buffered until every
// lower-indexed segment has been emitted. On failure the contiguous
// prefix below the failed index still drains before the stream ends.
func (a *Assembler) collect(
	descriptors []*models.SegmentDescriptor,
	results <-chan segmentResult,
	tokens chan<- struct{},
) {
	next := descriptors[0].Index
	buffer := make(map[int]*models.DecryptedChunk, a.config.Window)

	failed := false
	failIndex := 0
	var failErr error

	defer func() {
		if failErr != nil {
			a.fail(failErr)
		}
		// unblock any workers still in flight past a failed index
		a.cancel()
		close(a.out)
	}()

	for result := range results {
		if result.err != nil {
			if !failed || result.index < failIndex {
				failed = true
				failIndex = result.index
				failErr = result.err
			}
			// no new launches once the stream is doomed
			a.stopOnce.Do(func() { close(a.stopCh) })
			continue
		}

		buffer[result.index] = result.chunk
		for {
			if failed && next >= failIndex {
				return
			}
			chunk, ok := buffer[next]
			if !ok {
				break
			}
			delete(buffer, next)

			select {
			case a.out <- chunk:
			case <-a.ctx.Done():
				failErr = a.ctx.Err()
				return
			}
			next++

			select {
			case tokens <- struct{}{}:
			default:
			}
		}
	}

	if failErr == nil && a.ctx.Err() != nil {
		failErr = a.ctx.Err()
	}
}

// processSegment runs one segment through fetch, key resolution and
// decryption. Fetch and key-delivery failures are retried with a delay;
// decrypt failures and malformed key material abort immediately since
// retrying cannot fix wrong-key or corrupted data.
func (a *Assembler) processSegment(
	ctx context.Context,
	descriptor *models.SegmentDescriptor,
) (*models.DecryptedChunk, error) {
	var lastErr error

	for attempt := 0; attempt <= a.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(a.config.RetryDelay):
			}
		}

		chunk, err := a.attemptSegment(ctx, descriptor)
		if err == nil {
			return chunk, nil
		}
		if !retryable(err) {
			return nil, fmt.Errorf("segment %d: %w", descriptor.Index, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		zap.S().Debugf("stream %s: segment %d attempt %d failed: %v", a.id, descriptor.Index, attempt+1, err)
		lastErr = err
	}

	return nil, errors.Wrapf(lastErr, "segment %d: all %d attempts failed",
		descriptor.Index, a.config.RetryAttempts+1)
}

func (a *Assembler) attemptSegment(
	ctx context.Context,
	descriptor *models.SegmentDescriptor,
) (*models.DecryptedChunk, error) {
	raw, err := a.fetcher.Fetch(ctx, &fetch.Request{
		URL:         descriptor.URL,
		RangeStart:  descriptor.RangeStart,
		RangeLength: descriptor.RangeLength,
	})
	if err != nil {
		return nil, err
	}

	var key *models.ResolvedKey
	if descriptor.Encrypted() && a.config.Cipher != enums.CipherSchemeNone {
		key, err = a.resolver.Resolve(ctx, descriptor.Key, descriptor.Sequence)
		if err != nil {
			return nil, err
		}
	}

	data, err := decrypt.Segment(raw, key)
	if err != nil {
		return nil, err
	}

	return &models.DecryptedChunk{
		Index:         descriptor.Index,
		Data:          data,
		Discontinuity: descriptor.Discontinuity,
	}, nil
}

// retryable separates transient delivery failures from data corruption
// and wrong-key evidence.
func retryable(err error) bool {
	switch {
	case stderrors.Is(err, util.ErrShortInput),
		stderrors.Is(err, util.ErrInvalidPadding),
		stderrors.Is(err, util.ErrKeyMalformed),
		stderrors.Is(err, context.Canceled):
		return false
	}
	// per-fetch timeouts stay retryable, same as any other fetch failure
	return true
}

func (a *Assembler) fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.terminal == nil {
		a.terminal = err
	}
}

func (a *Assembler) terminalError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.terminal != nil {
		return a.terminal
	}
	return io.EOF
}
