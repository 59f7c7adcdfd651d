package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// ReportServiceName is the fully qualified gRPC service name.
const ReportServiceName = "supportmetrics.v1.ReportService"

const getWeeklyReportMethod = "/" + ReportServiceName + "/GetWeeklyReport"

// ReportServiceServer answers weekly report lookups. Requests and responses
// are protobuf well-known types, so no generated code is needed.
type ReportServiceServer interface {
	GetWeeklyReport(ctx context.Context, asOf *timestamppb.Timestamp) (*structpb.Struct, error)
}

func getWeeklyReportHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(timestamppb.Timestamp)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReportServiceServer).GetWeeklyReport(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: getWeeklyReportMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReportServiceServer).GetWeeklyReport(ctx, req.(*timestamppb.Timestamp))
	}
	return interceptor(ctx, in, info, handler)
}

// ReportServiceDesc describes ReportService for grpc.Server registration.
var ReportServiceDesc = grpc.ServiceDesc{
	ServiceName: ReportServiceName,
	HandlerType: (*ReportServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetWeeklyReport",
			Handler:    getWeeklyReportHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "supportmetrics/v1/report.proto",
}

func RegisterReportServiceServer(s grpc.ServiceRegistrar, srv ReportServiceServer) {
	s.RegisterService(&ReportServiceDesc, srv)
}

// ReportServiceClient calls ReportService over a client connection.
type ReportServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewReportServiceClient(cc grpc.ClientConnInterface) *ReportServiceClient {
	return &ReportServiceClient{cc: cc}
}

func (c *ReportServiceClient) GetWeeklyReport(ctx context.Context, asOf *timestamppb.Timestamp, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getWeeklyReportMethod, asOf, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
