package grpcserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealthServerReflectsStorePing(test *testing.T) {
	test.Parallel()
	pinger := &switchablePinger{}
	server, err := NewHealthServer(pinger, nil)
	if err != nil {
		test.Fatalf("new health server: %v", err)
	}
	client := newHealthClient(test, server)

	if got := checkStatus(test, client); got != healthpb.HealthCheckResponse_NOT_SERVING {
		test.Fatalf("expected NOT_SERVING before refresh, got %v", got)
	}

	if status := server.Refresh(context.Background()); status != healthpb.HealthCheckResponse_SERVING {
		test.Fatalf("expected SERVING after healthy ping, got %v", status)
	}
	if got := checkStatus(test, client); got != healthpb.HealthCheckResponse_SERVING {
		test.Fatalf("expected SERVING from client, got %v", got)
	}

	pinger.fail(errors.New("connection refused"))
	server.Refresh(context.Background())
	if got := checkStatus(test, client); got != healthpb.HealthCheckResponse_NOT_SERVING {
		test.Fatalf("expected NOT_SERVING after failed ping, got %v", got)
	}
}

func TestRunStopsOnContextCancel(test *testing.T) {
	test.Parallel()
	server, err := NewHealthServer(&switchablePinger{}, nil)
	if err != nil {
		test.Fatalf("new health server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		server.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}

func TestCheckTimeoutBoundsSlowPing(test *testing.T) {
	test.Parallel()
	server, err := NewHealthServer(blockingPinger{}, nil, WithCheckTimeout(20*time.Millisecond))
	if err != nil {
		test.Fatalf("new health server: %v", err)
	}
	if status := server.Refresh(context.Background()); status != healthpb.HealthCheckResponse_NOT_SERVING {
		test.Fatalf("expected NOT_SERVING after timed out ping, got %v", status)
	}
}

func TestCheckIntervalDrivesRun(test *testing.T) {
	test.Parallel()
	pinger := &countingPinger{pings: make(chan struct{}, 8)}
	server, err := NewHealthServer(pinger, nil, WithCheckInterval(5*time.Millisecond))
	if err != nil {
		test.Fatalf("new health server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)

	for index := 0; index < 3; index++ {
		select {
		case <-pinger.pings:
		case <-time.After(2 * time.Second):
			test.Fatalf("expected ping %d within the check interval", index+1)
		}
	}
}

func TestNewHealthServerRequiresPinger(test *testing.T) {
	test.Parallel()
	if _, err := NewHealthServer(nil, nil); err == nil {
		test.Fatalf("expected error for nil pinger")
	}
}

func newHealthClient(test *testing.T, server *HealthServer) healthpb.HealthClient {
	test.Helper()
	listener := bufconn.Listen(1024 * 1024)
	grpcServer := grpc.NewServer()
	server.Register(grpcServer)
	go func() { _ = grpcServer.Serve(listener) }()
	test.Cleanup(grpcServer.Stop)

	connection, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		test.Fatalf("dial bufconn: %v", err)
	}
	test.Cleanup(func() { _ = connection.Close() })
	return healthpb.NewHealthClient(connection)
}

func checkStatus(test *testing.T, client healthpb.HealthClient) healthpb.HealthCheckResponse_ServingStatus {
	test.Helper()
	response, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		test.Fatalf("health check: %v", err)
	}
	return response.GetStatus()
}

type switchablePinger struct {
	mutex sync.Mutex
	err   error
}

func (pinger *switchablePinger) fail(err error) {
	pinger.mutex.Lock()
	defer pinger.mutex.Unlock()
	pinger.err = err
}

func (pinger *switchablePinger) Ping(context.Context) error {
	pinger.mutex.Lock()
	defer pinger.mutex.Unlock()
	return pinger.err
}

type blockingPinger struct{}

func (blockingPinger) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type countingPinger struct {
	pings chan struct{}
}

func (pinger *countingPinger) Ping(context.Context) error {
	select {
	case pinger.pings <- struct{}{}:
	default:
	}
	return nil
}
