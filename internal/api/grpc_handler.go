package api

import (
	"context"
	"log"
	"time"

	"product-pricing-service/internal/automation"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// AutomationServiceName is the fully-qualified gRPC service name. It is also the
// name reported by the health service.
const AutomationServiceName = "pricing.v1.AutomationService"

// AutomationServer is the server API for the AutomationService.
// Responses carry the same field names as the HTTP payloads.
type AutomationServer interface {
	Start(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Stop(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// GRPCHandler implements AutomationServer on top of the price scheduler.
type GRPCHandler struct {
	automation AutomationController
}

// NewGRPCHandler creates a new GRPCHandler.
func NewGRPCHandler(ac AutomationController) *GRPCHandler {
	return &GRPCHandler{automation: ac}
}

func (s *GRPCHandler) Start(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	log.Println("INFO: Received gRPC Start request")
	if !s.automation.Start() {
		return nil, status.Error(codes.FailedPrecondition, "Automation is already running.")
	}
	return messageStruct("Automation started.")
}

func (s *GRPCHandler) Stop(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	log.Println("INFO: Received gRPC Stop request")
	if !s.automation.Stop() {
		return nil, status.Error(codes.FailedPrecondition, "Automation was not running.")
	}
	return messageStruct("Automation stopped.")
}

func (s *GRPCHandler) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := statusToStruct(s.automation.Status())
	if err != nil {
		log.Printf("ERROR: Failed to convert automation status: %v", err)
		return nil, status.Errorf(codes.Internal, "Failed to build status: %v", err)
	}
	return st, nil
}

// --- Helpers for converting to protobuf messages ---

func messageStruct(message string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"message": message})
}

func statusToStruct(st automation.Status) (*structpb.Struct, error) {
	var lastUpdate any
	if st.LastUpdate != nil {
		lastUpdate = st.LastUpdate.UTC().Format(time.RFC3339Nano)
	}
	return structpb.NewStruct(map[string]any{
		"is_running":   st.IsRunning,
		"last_update":  lastUpdate,
		"update_count": st.UpdateCount,
		"error_count":  st.ErrorCount,
		"interval":     st.Interval,
		"price_range": map[string]any{
			"min_factor": st.PriceRange.MinFactor,
			"max_factor": st.PriceRange.MaxFactor,
		},
	})
}

// --- Service registration ---

// RegisterAutomationServer registers srv on s.
func RegisterAutomationServer(s grpc.ServiceRegistrar, srv AutomationServer) {
	s.RegisterService(&automationServiceDesc, srv)
}

var automationServiceDesc = grpc.ServiceDesc{
	ServiceName: AutomationServiceName,
	HandlerType: (*AutomationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Start", Handler: unaryHandler("Start", AutomationServer.Start)},
		{MethodName: "Stop", Handler: unaryHandler("Stop", AutomationServer.Stop)},
		{MethodName: "Status", Handler: unaryHandler("Status", AutomationServer.Status)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pricing/v1/automation.proto",
}

func unaryHandler(
	method string,
	call func(AutomationServer, context.Context, *emptypb.Empty) (*structpb.Struct, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + AutomationServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AutomationServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AutomationServer), ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AutomationHealthListener returns a scheduler state listener that reports the
// AutomationService as SERVING while the scheduler runs.
func AutomationHealthListener(hs *health.Server) func(running bool) {
	return func(running bool) {
		servingStatus := grpc_health_v1.HealthCheckResponse_NOT_SERVING
		if running {
			servingStatus = grpc_health_v1.HealthCheckResponse_SERVING
		}
		hs.SetServingStatus(AutomationServiceName, servingStatus)
	}
}
