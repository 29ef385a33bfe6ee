package grpcclient

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	apperrors "github.com/good-listener/wakelistener/internal/errors"
	"github.com/good-listener/wakelistener/internal/resilience"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// fakeInference records calls and answers with canned values.
type fakeInference struct {
	mu         sync.Mutex
	scores     map[string]any
	prob       float32
	failScore  error
	resets     []string
	lastRate   string
	lastLength int
}

func (f *fakeInference) record(ctx context.Context, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(SampleRateKey); len(v) > 0 {
			f.lastRate = v[0]
		}
	}
	f.lastLength = n
}

func unary[T proto.Message](newReq func() T, fn func(f *fakeInference, ctx context.Context, req T) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		req := newReq()
		if err := dec(req); err != nil {
			return nil, err
		}
		return fn(srv.(*fakeInference), ctx, req)
	}
}

func newBytes() *wrapperspb.BytesValue { return &wrapperspb.BytesValue{} }
func newEmpty() *emptypb.Empty         { return &emptypb.Empty{} }

func serviceDescs() []grpc.ServiceDesc {
	return []grpc.ServiceDesc{
		{
			ServiceName: "inference.WakeWordService",
			HandlerType: (*any)(nil),
			Methods: []grpc.MethodDesc{
				{MethodName: "Score", Handler: unary(newBytes, func(f *fakeInference, ctx context.Context, req *wrapperspb.BytesValue) (any, error) {
					f.record(ctx, len(req.GetValue()))
					if f.failScore != nil {
						return nil, f.failScore
					}
					return structpb.NewStruct(f.scores)
				})},
				{MethodName: "Reset", Handler: unary(newEmpty, func(f *fakeInference, _ context.Context, _ *emptypb.Empty) (any, error) {
					f.mu.Lock()
					f.resets = append(f.resets, "wake")
					f.mu.Unlock()
					return &emptypb.Empty{}, nil
				})},
			},
		},
		{
			ServiceName: "inference.VADService",
			HandlerType: (*any)(nil),
			Methods: []grpc.MethodDesc{
				{MethodName: "DetectSpeech", Handler: unary(newBytes, func(f *fakeInference, ctx context.Context, req *wrapperspb.BytesValue) (any, error) {
					f.record(ctx, len(req.GetValue()))
					return wrapperspb.Float(f.prob), nil
				})},
				{MethodName: "ResetState", Handler: unary(newEmpty, func(f *fakeInference, _ context.Context, _ *emptypb.Empty) (any, error) {
					f.mu.Lock()
					f.resets = append(f.resets, "vad")
					f.mu.Unlock()
					return &emptypb.Empty{}, nil
				})},
			},
		},
	}
}

func startServer(t *testing.T, f *fakeInference, hs *health.Server) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	for _, d := range serviceDescs() {
		srv.RegisterService(&d, f)
	}
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	cfg := DefaultConfig()
	cfg.CallTimeout = 2 * time.Second
	c, err := New("passthrough:///bufnet", cfg, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.KeepaliveTime != 10*time.Second {
		t.Errorf("KeepaliveTime = %v, want 10s", cfg.KeepaliveTime)
	}
	if cfg.KeepaliveTimeout != 3*time.Second {
		t.Errorf("KeepaliveTimeout = %v, want 3s", cfg.KeepaliveTimeout)
	}
	if cfg.HealthCheckInterval != 5*time.Second {
		t.Errorf("HealthCheckInterval = %v, want 5s", cfg.HealthCheckInterval)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", cfg.SampleRate)
	}
}

func TestScoreWakeWord(t *testing.T) {
	f := &fakeInference{scores: map[string]any{"hey_jarvis": 0.9, "alexa": 0.1}}
	c := startServer(t, f, health.NewServer())

	got, err := c.ScoreWakeWord(context.Background(), make([]byte, 2560))
	if err != nil {
		t.Fatalf("ScoreWakeWord: %v", err)
	}
	if got["hey_jarvis"] != 0.9 || got["alexa"] != 0.1 {
		t.Errorf("scores = %v", got)
	}
	if f.lastRate != "16000" {
		t.Errorf("sample rate metadata = %q, want 16000", f.lastRate)
	}
	if f.lastLength != 2560 {
		t.Errorf("server saw %d bytes, want 2560", f.lastLength)
	}
}

func TestScoreWakeWordNonNumeric(t *testing.T) {
	f := &fakeInference{scores: map[string]any{"hey_jarvis": "high"}}
	c := startServer(t, f, health.NewServer())

	_, err := c.ScoreWakeWord(context.Background(), make([]byte, 4))
	if !apperrors.IsCode(err, apperrors.CodeScorerInvalidOutput) {
		t.Errorf("err = %v, want SCORER_INVALID_OUTPUT", err)
	}
}

func TestScoreWakeWordServerError(t *testing.T) {
	f := &fakeInference{failScore: status.Error(codes.Unavailable, "model loading")}
	c := startServer(t, f, health.NewServer())

	_, err := c.ScoreWakeWord(context.Background(), make([]byte, 4))
	if !apperrors.IsCode(err, apperrors.CodeUnavailable) {
		t.Errorf("err = %v, want UNAVAILABLE", err)
	}
	if !apperrors.IsRetryable(err) {
		t.Error("unavailable scoring error should be retryable")
	}
}

func TestDetectSpeechAndResets(t *testing.T) {
	f := &fakeInference{prob: 0.75}
	c := startServer(t, f, health.NewServer())
	ctx := context.Background()

	p, err := c.DetectSpeech(ctx, make([]byte, 1024))
	if err != nil {
		t.Fatalf("DetectSpeech: %v", err)
	}
	if p != 0.75 {
		t.Errorf("probability = %v, want 0.75", p)
	}
	if err := c.ResetVAD(ctx); err != nil {
		t.Fatalf("ResetVAD: %v", err)
	}
	if err := c.ResetWakeWord(ctx); err != nil {
		t.Fatalf("ResetWakeWord: %v", err)
	}
	if len(f.resets) != 2 || f.resets[0] != "vad" || f.resets[1] != "wake" {
		t.Errorf("resets = %v", f.resets)
	}
}

func TestCheckNotServing(t *testing.T) {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	c := startServer(t, &fakeInference{}, hs)

	err := c.Check(context.Background())
	if status.Code(err) != codes.Unavailable {
		t.Errorf("Check() = %v, want Unavailable", err)
	}
}

func TestWaitReady(t *testing.T) {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	c := startServer(t, &fakeInference{}, hs)

	go func() {
		time.Sleep(20 * time.Millisecond)
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}()

	cfg := resilience.RetryConfig{MaxRetries: 20, BaseDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond}
	if err := c.WaitReady(context.Background(), cfg); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
}

func TestWaitReadyGivesUp(t *testing.T) {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	c := startServer(t, &fakeInference{}, hs)

	cfg := resilience.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	err := c.WaitReady(context.Background(), cfg)
	if !apperrors.IsCode(err, apperrors.CodeUnavailable) {
		t.Errorf("WaitReady() = %v, want UNAVAILABLE", err)
	}
}
