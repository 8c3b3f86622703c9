package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/item-catalog/internal/core/domain"
	"github.com/rl1809/item-catalog/internal/core/identity"
	"github.com/rl1809/item-catalog/internal/core/service"
)

const ItemServiceName = "catalog.v1.ItemService"

// JSONCodec carries item messages as JSON. Clients select it with
// grpc.CallContentSubtype(JSONCodec{}.Name()).
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(JSONCodec{})
}

// GetItemsRequest lists the caller's own items when ItemIDs is empty.
type GetItemsRequest struct {
	ItemIDs []int64 `json:"item_ids"`
}

type UpdateItemRequest struct {
	ID          *int64   `json:"id"`
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Quantity    *int     `json:"quantity,omitempty"`
	Price       *float64 `json:"price,omitempty"`
}

type ItemServiceServer interface {
	CreateItem(context.Context, *CreateItemRequest) (*ItemResponse, error)
	GetItems(context.Context, *GetItemsRequest) (*ItemsResponse, error)
	UpdateItem(context.Context, *UpdateItemRequest) (*ItemResponse, error)
}

var ItemServiceDesc = grpc.ServiceDesc{
	ServiceName: ItemServiceName,
	HandlerType: (*ItemServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateItem", Handler: unaryHandler("CreateItem", ItemServiceServer.CreateItem)},
		{MethodName: "GetItems", Handler: unaryHandler("GetItems", ItemServiceServer.GetItems)},
		{MethodName: "UpdateItem", Handler: unaryHandler("UpdateItem", ItemServiceServer.UpdateItem)},
	},
	Streams: []grpc.StreamDesc{},
}

func unaryHandler[Req, Resp any](method string, call func(ItemServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ItemServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ItemServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ItemServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type GRPCHandler struct {
	itemService *service.ItemService
	validate    *validator.Validate
}

func NewGRPCHandler(itemService *service.ItemService) *GRPCHandler {
	return &GRPCHandler{itemService: itemService, validate: validator.New()}
}

func (h *GRPCHandler) Register(s *grpc.Server) {
	s.RegisterService(&ItemServiceDesc, h)
}

func (h *GRPCHandler) CreateItem(ctx context.Context, req *CreateItemRequest) (*ItemResponse, error) {
	if err := h.validate.Struct(req); err != nil {
		return nil, status.Error(codes.InvalidArgument, fmt.Errorf("%w: %v", domain.ErrValidation, err).Error())
	}

	item, err := h.itemService.Create(ctx, domain.ItemFields{
		Name:        *req.Name,
		Description: *req.Description,
		Quantity:    *req.Quantity,
		Price:       *req.Price,
	})
	if err != nil {
		return nil, status.Error(serviceCode(err), reason(err))
	}
	resp := toItemResponse(item)
	return &resp, nil
}

func (h *GRPCHandler) GetItems(ctx context.Context, req *GetItemsRequest) (*ItemsResponse, error) {
	// An empty list means the same as no list, as it does over HTTP.
	ids := req.ItemIDs
	if len(ids) == 0 {
		ids = nil
	}
	items, err := h.itemService.Retrieve(ctx, ids)
	if err != nil {
		return nil, status.Error(serviceCode(err), reason(err))
	}

	resp := &ItemsResponse{Items: make([]ItemResponse, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, toItemResponse(item))
	}
	return resp, nil
}

func (h *GRPCHandler) UpdateItem(ctx context.Context, req *UpdateItemRequest) (*ItemResponse, error) {
	if req.ID == nil {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	item, err := h.itemService.Update(ctx, *req.ID, domain.ItemPatch{
		Name:        req.Name,
		Description: req.Description,
		Quantity:    req.Quantity,
		Price:       req.Price,
	})
	if err != nil {
		return nil, status.Error(serviceCode(err), reason(err))
	}
	resp := toItemResponse(item)
	return &resp, nil
}

// UnaryAuthInterceptor authenticates calls to the item service from the
// "authorization" metadata and binds the identity for the duration of the
// call. Other services, such as health checks, pass through.
func UnaryAuthInterceptor(resolver IdentityResolver, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ItemServiceName+"/") {
			return handler(ctx, req)
		}

		var authorization string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get("authorization"); len(v) > 0 {
				authorization = v[0]
			}
		}

		id, err := resolver.Resolve(ctx, authorization)
		if err != nil {
			logger.Info("Authentication failed", zap.String("method", info.FullMethod), zap.Error(err))
			_, message := authFailure(err)
			return nil, status.Error(authCode(err), message)
		}

		var resp any
		err = identity.Run(ctx, id, func(ctx context.Context) error {
			var callErr error
			resp, callErr = handler(ctx, req)
			return callErr
		})
		return resp, err
	}
}

func UnaryLoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("gRPC request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}

// ItemServiceClient calls the item service over conn with the JSON codec.
type ItemServiceClient struct {
	conn grpc.ClientConnInterface
}

func NewItemServiceClient(conn grpc.ClientConnInterface) *ItemServiceClient {
	return &ItemServiceClient{conn: conn}
}

func (c *ItemServiceClient) CreateItem(ctx context.Context, req *CreateItemRequest, opts ...grpc.CallOption) (*ItemResponse, error) {
	out := new(ItemResponse)
	if err := c.invoke(ctx, "CreateItem", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ItemServiceClient) GetItems(ctx context.Context, req *GetItemsRequest, opts ...grpc.CallOption) (*ItemsResponse, error) {
	out := new(ItemsResponse)
	if err := c.invoke(ctx, "GetItems", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ItemServiceClient) UpdateItem(ctx context.Context, req *UpdateItemRequest, opts ...grpc.CallOption) (*ItemResponse, error) {
	out := new(ItemResponse)
	if err := c.invoke(ctx, "UpdateItem", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ItemServiceClient) invoke(ctx context.Context, method string, req, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodec{}.Name())}, opts...)
	return c.conn.Invoke(ctx, "/"+ItemServiceName+"/"+method, req, out, opts...)
}
