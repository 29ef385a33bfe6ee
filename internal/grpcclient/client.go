// Package grpcclient talks to the model inference server that hosts the wake
// word and speech activity models. Requests use protobuf well-known types so
// no generated stubs are needed on this side.
package grpcclient

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	apperrors "github.com/good-listener/wakelistener/internal/errors"
	"github.com/good-listener/wakelistener/internal/resilience"
	"github.com/good-listener/wakelistener/internal/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Config holds client settings.
type Config struct {
	SampleRate          int
	KeepaliveTime       time.Duration
	KeepaliveTimeout    time.Duration
	HealthCheckInterval time.Duration
	CallTimeout         time.Duration
}

// DefaultConfig returns settings for a local inference server at 16 kHz.
func DefaultConfig() Config {
	return Config{
		SampleRate:          16000,
		KeepaliveTime:       DefaultKeepaliveTime,
		KeepaliveTimeout:    DefaultKeepaliveTimeout,
		HealthCheckInterval: DefaultHealthCheckInterval,
		CallTimeout:         DefaultCallTimeout,
	}
}

// Client wraps the inference connection.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	cfg    Config
	rate   string
}

// New creates a client for addr. The connection is established lazily; use
// WaitReady to block until the server reports serving.
func New(addr string, cfg Config, opts ...grpc.DialOption) (*Client, error) {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithChainUnaryInterceptor(trace.UnaryClientInterceptor()),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeUnavailable, "dial inference server %s", addr)
	}
	return &Client{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		cfg:    cfg,
		rate:   strconv.Itoa(cfg.SampleRate),
	}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, req, reply any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, SampleRateKey, c.rate)
	if err := c.conn.Invoke(ctx, method, req, reply); err != nil {
		return apperrors.FromGRPCError(err).WithMetadata("method", method)
	}
	return nil
}

// ScoreWakeWord returns per-phrase confidences for one PCM frame.
func (c *Client) ScoreWakeWord(ctx context.Context, pcm []byte) (map[string]float64, error) {
	resp := &structpb.Struct{}
	if err := c.call(ctx, methodWakeScore, wrapperspb.Bytes(pcm), resp); err != nil {
		return nil, err
	}
	scores := make(map[string]float64, len(resp.GetFields()))
	for phrase, v := range resp.GetFields() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, apperrors.Newf(apperrors.CodeScorerInvalidOutput, "non-numeric score for %q", phrase)
		}
		scores[phrase] = n.NumberValue
	}
	return scores, nil
}

// ResetWakeWord clears the wake model's streaming state.
func (c *Client) ResetWakeWord(ctx context.Context) error {
	return c.call(ctx, methodWakeReset, &emptypb.Empty{}, &emptypb.Empty{})
}

// DetectSpeech returns the speech probability for one PCM frame.
func (c *Client) DetectSpeech(ctx context.Context, pcm []byte) (float32, error) {
	resp := &wrapperspb.FloatValue{}
	if err := c.call(ctx, methodVADDetect, wrapperspb.Bytes(pcm), resp); err != nil {
		return 0, err
	}
	return resp.GetValue(), nil
}

// ResetVAD resets VAD model state.
func (c *Client) ResetVAD(ctx context.Context) error {
	return c.call(ctx, methodVADReset, &emptypb.Empty{}, &emptypb.Empty{})
}

// Check asks the server's health service whether it is serving.
func (c *Client) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return status.Error(codes.Unavailable, fmt.Sprintf("inference server %s", resp.GetStatus()))
	}
	return nil
}

// WaitReady polls the health service with backoff until it reports serving.
func (c *Client) WaitReady(ctx context.Context, cfg resilience.RetryConfig) error {
	attempt := 0
	err := resilience.Retry(ctx, cfg, func() error {
		attempt++
		err := c.Check(ctx)
		if err != nil {
			slog.Debug("inference server not ready", "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "inference server not ready")
	}
	slog.Info("inference server ready", "target", c.conn.Target())
	return nil
}

// Monitor checks health every HealthCheckInterval and calls onChange when
// the serving state flips. It returns when ctx is done.
func (c *Client) Monitor(ctx context.Context, onChange func(serving bool)) {
	interval := c.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	serving := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		ok := c.Check(ctx) == nil
		if ok != serving {
			serving = ok
			slog.Warn("inference server health changed", "serving", ok)
			onChange(ok)
		}
	}
}
