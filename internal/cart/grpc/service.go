package grpc

import (
	"context"

	"github.com/dwikikusuma/shoping-cart/internal/cart/domain"
	"github.com/google/uuid"
	gogrpc "google.golang.org/grpc"
)

const ServiceName = "cart.v1.CartService"

type AddProductRequest struct {
	UserID    uuid.UUID `json:"user_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

type DecreaseProductRequest struct {
	UserID    uuid.UUID `json:"user_id"`
	ProductID uuid.UUID `json:"product_id"`
	Step      int       `json:"step"`
}

type RemoveProductRequest struct {
	UserID    uuid.UUID `json:"user_id"`
	ProductID uuid.UUID `json:"product_id"`
}

type SetItemQuantityRequest struct {
	UserID    uuid.UUID `json:"user_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

type CartRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

type ItemReply struct {
	CartID    uuid.UUID      `json:"cart_id"`
	ProductID uuid.UUID      `json:"product_id"`
	Quantity  int            `json:"quantity"`
	Summary   domain.Summary `json:"summary"`
}

type RemoveReply struct {
	CartID  uuid.UUID      `json:"cart_id"`
	Removed bool           `json:"removed"`
	Summary domain.Summary `json:"summary"`
}

type SummaryReply struct {
	CartID  uuid.UUID           `json:"cart_id"`
	Summary domain.Summary      `json:"summary"`
	Items   []domain.ItemDetail `json:"items"`
}

type CartServiceServer interface {
	AddProduct(context.Context, *AddProductRequest) (*ItemReply, error)
	DecreaseProduct(context.Context, *DecreaseProductRequest) (*ItemReply, error)
	RemoveProduct(context.Context, *RemoveProductRequest) (*RemoveReply, error)
	SetItemQuantity(context.Context, *SetItemQuantityRequest) (*ItemReply, error)
	ClearCart(context.Context, *CartRequest) (*SummaryReply, error)
	GetSummary(context.Context, *CartRequest) (*SummaryReply, error)
}

func RegisterCartServiceServer(s gogrpc.ServiceRegistrar, srv CartServiceServer) {
	s.RegisterService(&CartServiceDesc, srv)
}

// unary adapts a typed method to a grpc.MethodDesc handler.
func unary[Req any, Resp any](name string, call func(CartServiceServer, context.Context, *Req) (*Resp, error)) gogrpc.MethodDesc {
	return gogrpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(CartServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

var CartServiceDesc = gogrpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CartServiceServer)(nil),
	Methods: []gogrpc.MethodDesc{
		unary("AddProduct", CartServiceServer.AddProduct),
		unary("DecreaseProduct", CartServiceServer.DecreaseProduct),
		unary("RemoveProduct", CartServiceServer.RemoveProduct),
		unary("SetItemQuantity", CartServiceServer.SetItemQuantity),
		unary("ClearCart", CartServiceServer.ClearCart),
		unary("GetSummary", CartServiceServer.GetSummary),
	},
	Streams:  []gogrpc.StreamDesc{},
	Metadata: "cart/v1/cart.proto",
}

// Client calls CartService with the JSON codec.
type Client struct {
	cc gogrpc.ClientConnInterface
}

func NewClient(cc gogrpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc gogrpc.ClientConnInterface, method string, in any) (*Resp, error) {
	out := new(Resp)
	err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, gogrpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddProduct(ctx context.Context, in *AddProductRequest) (*ItemReply, error) {
	return invoke[ItemReply](ctx, c.cc, "AddProduct", in)
}

func (c *Client) DecreaseProduct(ctx context.Context, in *DecreaseProductRequest) (*ItemReply, error) {
	return invoke[ItemReply](ctx, c.cc, "DecreaseProduct", in)
}

func (c *Client) RemoveProduct(ctx context.Context, in *RemoveProductRequest) (*RemoveReply, error) {
	return invoke[RemoveReply](ctx, c.cc, "RemoveProduct", in)
}

func (c *Client) SetItemQuantity(ctx context.Context, in *SetItemQuantityRequest) (*ItemReply, error) {
	return invoke[ItemReply](ctx, c.cc, "SetItemQuantity", in)
}

func (c *Client) ClearCart(ctx context.Context, in *CartRequest) (*SummaryReply, error) {
	return invoke[SummaryReply](ctx, c.cc, "ClearCart", in)
}

func (c *Client) GetSummary(ctx context.Context, in *CartRequest) (*SummaryReply, error) {
	return invoke[SummaryReply](ctx, c.cc, "GetSummary", in)
}
