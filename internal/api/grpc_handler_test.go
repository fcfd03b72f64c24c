package api

import (
	"context"
	"net"
	"testing"
	"time"

	"product-pricing-service/internal/automation"
	"product-pricing-service/internal/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const bufSize = 1024 * 1024

// startTestGRPCServer serves the AutomationService and the health service over an
// in-memory listener and returns a connected client.
func startTestGRPCServer(t *testing.T, ac AutomationController, hs *health.Server) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(bufSize)
	srv := grpc.NewServer()
	RegisterAutomationServer(srv, NewGRPCHandler(ac))
	if hs != nil {
		grpc_health_v1.RegisterHealthServer(srv, hs)
	}
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func invoke(t *testing.T, conn *grpc.ClientConn, method string) (*structpb.Struct, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := new(structpb.Struct)
	err := conn.Invoke(ctx, "/"+AutomationServiceName+"/"+method, &emptypb.Empty{}, out)
	return out, err
}

func TestGRPCHandler_StartStop(t *testing.T) {
	ctrl := new(MockAutomation)
	ctrl.On("Start").Return(true).Once()
	ctrl.On("Start").Return(false).Once()
	ctrl.On("Stop").Return(true).Once()
	ctrl.On("Stop").Return(false).Once()
	conn := startTestGRPCServer(t, ctrl, nil)

	res, err := invoke(t, conn, "Start")
	require.NoError(t, err)
	assert.Equal(t, "Automation started.", res.GetFields()["message"].GetStringValue())

	_, err = invoke(t, conn, "Start")
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	res, err = invoke(t, conn, "Stop")
	require.NoError(t, err)
	assert.Equal(t, "Automation stopped.", res.GetFields()["message"].GetStringValue())

	_, err = invoke(t, conn, "Stop")
	require.Error(t, err)
	st, _ := status.FromError(err)
	assert.Equal(t, codes.FailedPrecondition, st.Code())
	assert.Equal(t, "Automation was not running.", st.Message())

	ctrl.AssertExpectations(t)
}

func TestGRPCHandler_Status(t *testing.T) {
	last := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	ctrl := new(MockAutomation)
	ctrl.On("Status").Return(automation.Status{
		IsRunning:   true,
		LastUpdate:  &last,
		UpdateCount: 3,
		ErrorCount:  2,
		Interval:    10,
		PriceRange:  pricing.Band{MinFactor: 0.8, MaxFactor: 1.2},
	}).Once()
	conn := startTestGRPCServer(t, ctrl, nil)

	res, err := invoke(t, conn, "Status")
	require.NoError(t, err)

	got := res.AsMap()
	assert.Equal(t, true, got["is_running"])
	assert.Equal(t, "2026-07-01T08:00:00Z", got["last_update"])
	assert.Equal(t, 3.0, got["update_count"])
	assert.Equal(t, 2.0, got["error_count"])
	assert.Equal(t, 10.0, got["interval"])
	assert.Equal(t, map[string]any{"min_factor": 0.8, "max_factor": 1.2}, got["price_range"])

	ctrl.AssertExpectations(t)
}

func TestStatusToStruct_NoLastUpdate(t *testing.T) {
	st, err := statusToStruct(automation.Status{Interval: 1})
	require.NoError(t, err)

	v, ok := st.GetFields()["last_update"]
	require.True(t, ok, "last_update is always present")
	_, isNull := v.GetKind().(*structpb.Value_NullValue)
	assert.True(t, isNull)
}

func TestAutomationHealthListener(t *testing.T) {
	hs := health.NewServer()
	listener := AutomationHealthListener(hs)
	conn := startTestGRPCServer(t, new(MockAutomation), hs)
	client := grpc_health_v1.NewHealthClient(conn)

	check := func() grpc_health_v1.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		res, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: AutomationServiceName})
		require.NoError(t, err)
		return res.GetStatus()
	}

	listener(true)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, check())

	listener(false)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, check())
}
