package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	ort "github.com/yalue/onnxruntime_go"
)

// Model tensor names.
const (
	InputName  = "obs"
	TargetName = "target"
	KindName   = "kind"
)

const (
	DefaultBatchSize    = 64
	DefaultBatchTimeout = 2 * time.Millisecond
)

var ErrClientClosed = errors.New("inference: client closed")

type OnnxClientConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	// DisableCUDA keeps the session on the CPU provider.
	DisableCUDA bool
	Logger      *slog.Logger
}

type inferenceRequest struct {
	input    []float32
	respChan chan inferenceResponse
}

type inferenceResponse struct {
	target []float32
	kind   []float32
	err    error
}

// OnnxClient batches Predict calls from many goroutines into single session
// runs.
type OnnxClient struct {
	session      *ort.DynamicAdvancedSession
	space        Space
	cfg          OnnxClientConfig
	requestsChan chan inferenceRequest
	done         chan struct{}
	loopDone     chan struct{}
	closeOnce    sync.Once

	batches  atomic.Int64
	items    atomic.Int64
	runNanos atomic.Int64
	last     atomic.Int64
}

var ortInitOnce sync.Once
var ortInitErr error

func initRuntime() error {
	if runtime.GOOS == "linux" {
		ensureLinuxLibraryPath()
		if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
			ort.SetSharedLibraryPath(p)
		} else if p := findSharedLibrary(); p != "" {
			ort.SetSharedLibraryPath(p)
		}
	}
	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// findSharedLibrary looks for libonnxruntime in the working directory and
// its parents.
func findSharedLibrary() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	names := []string{"libonnxruntime.so", "libonnxruntime.so.1", "libonnxruntime.so.1.23.2"}
	for {
		for _, name := range names {
			abs := filepath.Join(dir, name)
			if _, err := os.Stat(abs); err == nil {
				return abs
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func NewOnnxClient(modelPath string, space Space, cfg OnnxClientConfig) (*OnnxClient, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if err := initRuntime(); err != nil {
		return nil, fmt.Errorf("failed to init ort: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	// Many clients share the machine; keep each session single-threaded.
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	if !cfg.DisableCUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err == nil {
			defer cudaOptions.Destroy()
			if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
				cfg.Logger.Warn("cuda provider unavailable", "error", err)
			} else {
				cfg.Logger.Info("cuda provider enabled")
			}
		} else {
			cfg.Logger.Warn("cuda options unavailable", "error", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{InputName}, []string{TargetName, KindName}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	c := &OnnxClient{
		session:      session,
		space:        space,
		cfg:          cfg,
		requestsChan: make(chan inferenceRequest, cfg.BatchSize*2),
		done:         make(chan struct{}),
		loopDone:     make(chan struct{}),
	}
	go c.batchLoop()
	return c, nil
}

func ensureLinuxLibraryPath() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	// CUDA libraries installed by pip into the project venv.
	candidateDirs := []string{cwd}
	patterns := []string{
		filepath.Join(cwd, ".venv", "lib", "python*", "site-packages", "nvidia", "*", "lib"),
		filepath.Join(cwd, ".venv", "lib", "python*", "site-packages", "onnxruntime", "capi"),
	}
	for _, pat := range patterns {
		matches, _ := filepath.Glob(pat)
		candidateDirs = append(candidateDirs, matches...)
	}

	existing := os.Getenv("LD_LIBRARY_PATH")
	seen := map[string]bool{}
	for _, p := range strings.Split(existing, ":") {
		if p != "" {
			seen[p] = true
		}
	}

	var add []string
	for _, d := range candidateDirs {
		if seen[d] {
			continue
		}
		if st, err := os.Stat(d); err == nil && st.IsDir() {
			add = append(add, d)
		}
	}
	if len(add) == 0 {
		return
	}
	val := strings.Join(add, ":")
	if existing != "" {
		val += ":" + existing
	}
	_ = os.Setenv("LD_LIBRARY_PATH", val)
}

func (c *OnnxClient) Space() Space { return c.space }

func (c *OnnxClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.loopDone
		err = c.session.Destroy()
	})
	return err
}

// Predict runs one observation through the model and returns the target and
// kind scores.
func (c *OnnxClient) Predict(ctx context.Context, input []float32) ([]float32, []float32, error) {
	if len(input) != c.space.InputLen() {
		return nil, nil, fmt.Errorf("inference: input length %d, want %d", len(input), c.space.InputLen())
	}
	respChan := make(chan inferenceResponse, 1)
	select {
	case c.requestsChan <- inferenceRequest{input: input, respChan: respChan}:
	case <-c.done:
		return nil, nil, ErrClientClosed
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	select {
	case resp := <-respChan:
		return resp.target, resp.kind, resp.err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

func (c *OnnxClient) batchLoop() {
	defer close(c.loopDone)
	inputLen := c.space.InputLen()
	batchInput := make([]float32, 0, c.cfg.BatchSize*inputLen)
	requests := make([]inferenceRequest, 0, c.cfg.BatchSize)

	ticker := time.NewTicker(c.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(requests) == 0 {
			return
		}
		c.runBatch(requests, batchInput)
		requests = requests[:0]
		batchInput = batchInput[:0]
	}

	for {
		select {
		case req := <-c.requestsChan:
			requests = append(requests, req)
			batchInput = append(batchInput, req.input...)
			if len(requests) >= c.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-c.done:
			c.failBatch(requests, ErrClientClosed)
			return
		}
	}
}

func (c *OnnxClient) runBatch(requests []inferenceRequest, batchInput []float32) {
	start := time.Now()
	n := int64(len(requests))
	targets := c.space.Targets
	kinds := c.space.Kinds()

	inputShape := append([]int64{n}, c.space.Shape...)
	inputTensor, err := ort.NewTensor(ort.NewShape(inputShape...), batchInput)
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer inputTensor.Destroy()

	targetTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(n, int64(targets)))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer targetTensor.Destroy()

	kindTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(n, int64(kinds)))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer kindTensor.Destroy()

	if err := c.session.Run([]ort.Value{inputTensor}, []ort.Value{targetTensor, kindTensor}); err != nil {
		c.failBatch(requests, err)
		return
	}

	targetData := targetTensor.GetData()
	kindData := kindTensor.GetData()
	for i, req := range requests {
		target := make([]float32, targets)
		copy(target, targetData[i*targets:(i+1)*targets])
		kind := make([]float32, kinds)
		copy(kind, kindData[i*kinds:(i+1)*kinds])
		req.respChan <- inferenceResponse{target: target, kind: kind}
	}

	c.batches.Add(1)
	c.items.Add(n)
	c.runNanos.Add(time.Since(start).Nanoseconds())
	c.last.Store(n)
}

func (c *OnnxClient) failBatch(requests []inferenceRequest, err error) {
	for _, req := range requests {
		req.respChan <- inferenceResponse{err: err}
	}
}

func (c *OnnxClient) Stats() RuntimeStats {
	return RuntimeStats{
		TotalBatches:  c.batches.Load(),
		TotalItems:    c.items.Load(),
		TotalRunNanos: c.runNanos.Load(),
		LastBatchSize: c.last.Load(),
		QueueLen:      len(c.requestsChan),
	}.withAverages()
}
