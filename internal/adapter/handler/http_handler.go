package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rl1809/item-catalog/internal/core/domain"
	"github.com/rl1809/item-catalog/internal/core/service"
)

const maxBodyBytes = 1 << 20

type HTTPHandler struct {
	itemService *service.ItemService
	validate    *validator.Validate
	logger      *zap.Logger
}

type CreateItemRequest struct {
	Name        *string  `json:"name" validate:"required"`
	Description *string  `json:"description" validate:"required"`
	Quantity    *int     `json:"quantity" validate:"required"`
	Price       *float64 `json:"price" validate:"required"`
}

type ItemResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	OwnerID     string  `json:"owner_id"`
}

type ItemsResponse struct {
	Items []ItemResponse `json:"items"`
}

type FailureResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func NewHTTPHandler(itemService *service.ItemService, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		itemService: itemService,
		validate:    validator.New(),
		logger:      logger,
	}
}

func (h *HTTPHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.fail(w, r, http.StatusBadRequest, "Error adding new item", fmt.Errorf("%w: invalid request body", domain.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, http.StatusBadRequest, "Error adding new item", fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	item, err := h.itemService.Create(r.Context(), domain.ItemFields{
		Name:        *req.Name,
		Description: *req.Description,
		Quantity:    *req.Quantity,
		Price:       *req.Price,
	})
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, "Error adding new item", err)
		return
	}

	writeJSON(w, http.StatusCreated, toItemResponse(item))
}

// RetrieveItems lists the caller's items, or the items named by repeated
// item_ids query parameters.
func (h *HTTPHandler) RetrieveItems(w http.ResponseWriter, r *http.Request) {
	var ids []int64
	if raw, ok := r.URL.Query()["item_ids"]; ok {
		ids = make([]int64, 0, len(raw))
		for _, v := range raw {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				h.fail(w, r, http.StatusBadRequest, "Error fetching items", fmt.Errorf("%w: item_ids must be integers", domain.ErrValidation))
				return
			}
			ids = append(ids, id)
		}
	}

	items, err := h.itemService.Retrieve(r.Context(), ids)
	if err != nil {
		h.fail(w, r, http.StatusNotFound, "Error fetching items", err)
		return
	}

	resp := ItemsResponse{Items: make([]ItemResponse, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, toItemResponse(item))
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateItem applies the name, description, quantity and price keys present
// in the body to the item named by id. Other keys are ignored.
func (h *HTTPHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		h.fail(w, r, http.StatusBadRequest, "Error updating item", fmt.Errorf("%w: invalid request body", domain.ErrValidation))
		return
	}

	itemID, patch, err := parseUpdate(body)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, "Error updating item", err)
		return
	}

	item, err := h.itemService.Update(r.Context(), itemID, patch)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, "Error updating item", err)
		return
	}

	writeJSON(w, http.StatusOK, toItemResponse(item))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	log := h.logger.Info
	if !errors.Is(err, domain.ErrValidation) && !errors.Is(err, domain.ErrConflict) &&
		!errors.Is(err, domain.ErrUnauthorized) && !errors.Is(err, domain.ErrNotFound) {
		log = h.logger.Error
	}
	log(message,
		zap.String("method", r.Method),
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.Error(err),
	)

	writeJSON(w, status, FailureResponse{
		Status:  "failure",
		Message: message,
		Error:   reason(err),
	})
}

func parseUpdate(body map[string]json.RawMessage) (int64, domain.ItemPatch, error) {
	var patch domain.ItemPatch

	id, err := field[int64](body, "id")
	if err != nil {
		return 0, patch, err
	}
	if id == nil {
		return 0, patch, fmt.Errorf("%w: id is required", domain.ErrValidation)
	}

	if patch.Name, err = field[string](body, "name"); err != nil {
		return 0, patch, err
	}
	if patch.Description, err = field[string](body, "description"); err != nil {
		return 0, patch, err
	}
	if patch.Quantity, err = field[int](body, "quantity"); err != nil {
		return 0, patch, err
	}
	if patch.Price, err = field[float64](body, "price"); err != nil {
		return 0, patch, err
	}
	return *id, patch, nil
}

// field decodes body[key]. A missing key or a JSON null yields nil.
func field[T any](body map[string]json.RawMessage, key string) (*T, error) {
	raw, ok := body[key]
	if !ok {
		return nil, nil
	}
	var v *T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %s has the wrong type", domain.ErrValidation, key)
	}
	return v, nil
}

func toItemResponse(item domain.Item) ItemResponse {
	return ItemResponse{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		Quantity:    item.Quantity,
		Price:       item.Price,
		OwnerID:     item.OwnerID,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
