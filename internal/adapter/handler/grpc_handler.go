package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

const ledgerServiceName = "stockledger.v1.Ledger"

type SubmitRequest struct {
	ItemSKU        string `json:"item_sku"`
	Direction      string `json:"direction"`
	Quantity       int32  `json:"quantity"`
	Actor          string `json:"actor,omitempty"`
	Note           string `json:"note,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type SubmitResponse struct {
	TransactionID    string `json:"transaction_id"`
	PreviousQuantity int32  `json:"previous_quantity"`
	NewQuantity      int32  `json:"new_quantity"`
	Status           string `json:"status"`
}

type StatusRequest struct {
	ItemSKU string `json:"item_sku"`
}

type StatusResponse struct {
	ItemSKU       string `json:"item_sku"`
	Quantity      int32  `json:"quantity"`
	MinStockLevel int32  `json:"min_stock_level"`
	Status        string `json:"status"`
}

// LedgerServer is the server API of the stockledger.v1.Ledger service.
type LedgerServer interface {
	Submit(context.Context, *SubmitRequest) (*SubmitResponse, error)
	GetStatus(context.Context, *StatusRequest) (*StatusResponse, error)
}

type GRPCHandler struct {
	ledger *service.LedgerService
}

func NewGRPCHandler(ledger *service.LedgerService) *GRPCHandler {
	return &GRPCHandler{ledger: ledger}
}

func (h *GRPCHandler) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	direction, err := domain.ParseDirection(req.Direction)
	if err != nil {
		return nil, grpcError(err)
	}
	committed, err := h.ledger.Submit(ctx, service.SubmitRequest{
		ItemSKU:        req.ItemSKU,
		Direction:      direction,
		Quantity:       int(req.Quantity),
		Actor:          req.Actor,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, grpcError(err)
	}

	// Stock never exceeds domain.MaxQuantity, which fits int32.
	return &SubmitResponse{
		TransactionID:    committed.Transaction.ID,
		PreviousQuantity: int32(committed.Transaction.PreviousQuantity),
		NewQuantity:      int32(committed.Transaction.NewQuantity),
		Status:           string(committed.Status),
	}, nil
}

func (h *GRPCHandler) GetStatus(ctx context.Context, req *StatusRequest) (*StatusResponse, error) {
	item, err := h.ledger.GetItem(ctx, req.ItemSKU)
	if err != nil {
		return nil, grpcError(err)
	}
	return &StatusResponse{
		ItemSKU:       item.SKU,
		Quantity:      int32(item.Quantity),
		MinStockLevel: int32(item.MinStockLevel),
		Status:        string(h.ledger.Calculator().ItemStatus(item)),
	}, nil
}

func grpcError(err error) error {
	m := mapError(err)
	msg := m.message
	if m.status < 500 {
		msg = err.Error()
	}
	return status.Error(m.code, msg)
}

// RegisterGRPC mounts the ledger service and the standard health service.
func RegisterGRPC(s *grpc.Server, srv LedgerServer) *health.Server {
	s.RegisterService(&ledgerServiceDesc, srv)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ledgerServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ledgerServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
		{MethodName: "GetStatus", Handler: getStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stockledger/v1/ledger",
}

func submitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubmitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ledgerServiceName + "/Submit"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServer).Submit(ctx, req.(*SubmitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ledgerServiceName + "/GetStatus"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServer).GetStatus(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// LedgerClient calls the ledger service over a JSON-coded connection.
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func (c *LedgerClient) Submit(ctx context.Context, in *SubmitRequest, opts ...grpc.CallOption) (*SubmitResponse, error) {
	out := new(SubmitResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ledgerServiceName+"/Submit", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) GetStatus(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ledgerServiceName+"/GetStatus", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
