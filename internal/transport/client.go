package transport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Client checks the health of a running engine.
type Client struct {
	cc     *grpc.ClientConn
	health healthpb.HealthClient
}

func Dial(addr string) (*Client, error) {
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, health: healthpb.NewHealthClient(cc)}, nil
}

// DialPort connects to an engine on localhost.
func DialPort(port int) (*Client, error) {
	return Dial(fmt.Sprintf("localhost:%d", port))
}

// Serving reports whether the engine is accepting runs.
func (c *Client) Serving(ctx context.Context) (bool, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: Service})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func (c *Client) Close() error { return c.cc.Close() }
