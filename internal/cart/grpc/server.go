package grpc

import (
	"context"
	"log/slog"

	"github.com/dwikikusuma/shoping-cart/internal/cart/app"
	"github.com/dwikikusuma/shoping-cart/internal/cart/domain"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server exposes the cart of an authenticated user to internal callers.
// Anonymous carts are only reachable over HTTP.
type Server struct {
	svc *app.Service
	log *slog.Logger
}

func NewServer(svc *app.Service, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{svc: svc, log: log}
}

func (s *Server) userCart(ctx context.Context, userID uuid.UUID) (domain.Cart, error) {
	if userID == uuid.Nil {
		return domain.Cart{}, status.Error(codes.InvalidArgument, "user_id is required")
	}
	cart, err := s.svc.GetOrCreateForUser(ctx, userID)
	if err != nil {
		return domain.Cart{}, s.mapErr(err, "error getting or creating cart")
	}
	return cart, nil
}

func (s *Server) itemReply(ctx context.Context, cart domain.Cart, productID uuid.UUID, qty int) (*ItemReply, error) {
	sum, err := s.svc.Summary(ctx, cart)
	if err != nil {
		return nil, s.mapErr(err, "error loading cart summary")
	}
	return &ItemReply{CartID: cart.ID, ProductID: productID, Quantity: qty, Summary: sum}, nil
}

func (s *Server) AddProduct(ctx context.Context, req *AddProductRequest) (*ItemReply, error) {
	cart, err := s.userCart(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	item, err := s.svc.AddProduct(ctx, cart, req.ProductID, req.Quantity)
	if err != nil {
		return nil, s.mapErr(err, "error adding product to cart")
	}
	return s.itemReply(ctx, cart, req.ProductID, item.Quantity)
}

func (s *Server) DecreaseProduct(ctx context.Context, req *DecreaseProductRequest) (*ItemReply, error) {
	cart, err := s.userCart(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	item, err := s.svc.DecreaseProduct(ctx, cart, req.ProductID, req.Step)
	if err != nil {
		return nil, s.mapErr(err, "error decreasing product")
	}
	return s.itemReply(ctx, cart, req.ProductID, item.Quantity)
}

func (s *Server) RemoveProduct(ctx context.Context, req *RemoveProductRequest) (*RemoveReply, error) {
	cart, err := s.userCart(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	removed, err := s.svc.RemoveProduct(ctx, cart, req.ProductID)
	if err != nil {
		return nil, s.mapErr(err, "error removing product")
	}
	sum, err := s.svc.Summary(ctx, cart)
	if err != nil {
		return nil, s.mapErr(err, "error loading cart summary")
	}
	return &RemoveReply{CartID: cart.ID, Removed: removed, Summary: sum}, nil
}

func (s *Server) SetItemQuantity(ctx context.Context, req *SetItemQuantityRequest) (*ItemReply, error) {
	cart, err := s.userCart(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	item, err := s.svc.SetItemQuantity(ctx, cart, req.ProductID, req.Quantity)
	if err != nil {
		return nil, s.mapErr(err, "error setting item quantity")
	}
	return s.itemReply(ctx, cart, req.ProductID, item.Quantity)
}

func (s *Server) ClearCart(ctx context.Context, req *CartRequest) (*SummaryReply, error) {
	cart, err := s.userCart(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Clear(ctx, cart); err != nil {
		return nil, s.mapErr(err, "error clearing cart")
	}
	return s.summary(ctx, cart)
}

func (s *Server) GetSummary(ctx context.Context, req *CartRequest) (*SummaryReply, error) {
	cart, err := s.userCart(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return s.summary(ctx, cart)
}

func (s *Server) summary(ctx context.Context, cart domain.Cart) (*SummaryReply, error) {
	view, err := s.svc.View(ctx, cart)
	if err != nil {
		return nil, s.mapErr(err, "error loading cart")
	}
	return &SummaryReply{CartID: cart.ID, Summary: view.Summary(), Items: view.Details()}, nil
}

func codeFromKind(k domain.ErrorKind) codes.Code {
	switch k {
	case domain.KindProductUnavailable, domain.KindNotEnoughStock:
		return codes.FailedPrecondition
	case domain.KindCartItemNotFound:
		return codes.NotFound
	case domain.KindInvalidQuantity:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// mapErr turns domain errors into their status codes with "key: message"
// text. Anything else is logged and reported as Internal.
func (s *Server) mapErr(err error, msg string) error {
	if de, ok := domain.AsError(err); ok {
		return status.Errorf(codeFromKind(de.Kind), "%s: %s", de.Key, de.Message)
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	s.log.Error(msg, slog.Any("err", err))
	return status.Error(codes.Internal, msg)
}

var _ CartServiceServer = (*Server)(nil)
