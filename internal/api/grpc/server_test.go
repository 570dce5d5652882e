package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/codebyem/IndiaLimaYankee/internal/models"
)

func dial(t *testing.T, s *Server) grpc_health_v1.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return grpc_health_v1.NewHealthClient(conn)
}

func check(t *testing.T, c grpc_health_v1.HealthClient, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestUpdateHealth_MirrorsReport(t *testing.T) {
	s := NewServer(0, nil)
	c := dial(t, s)

	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, check(t, c, ""))

	s.UpdateHealth(models.HealthReport{
		Status: models.StatusDegraded,
		Services: map[string]models.ServiceHealth{
			"metar": {Status: models.StatusOK},
			"apod":  {Status: models.StatusDegraded},
			"epic":  {Status: models.StatusDown},
		},
	})

	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, check(t, c, ""))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, check(t, c, "metar"))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, check(t, c, "apod"))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, check(t, c, "epic"))

	s.UpdateHealth(models.HealthReport{Status: models.StatusDown, Services: map[string]models.ServiceHealth{}})
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, check(t, c, ""))
}
