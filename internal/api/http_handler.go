package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"product-pricing-service/internal/automation"
	"product-pricing-service/internal/domain"
	"product-pricing-service/internal/pricing"
	"product-pricing-service/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const maxHistoryLimit = 1000

// AutomationController is the part of the price scheduler exposed over the API.
type AutomationController interface {
	Start() bool
	Stop() bool
	Status() automation.Status
	SetInterval(d time.Duration) error
	SetPriceRange(minFactor, maxFactor float64) error
}

var _ AutomationController = (*automation.Scheduler)(nil)

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	productStore store.ProductStorer
	automation   AutomationController
	validate     *validator.Validate
}

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(ps store.ProductStorer, ac AutomationController) *HTTPHandler {
	return &HTTPHandler{
		productStore: ps,
		automation:   ac,
		validate:     validator.New(),
	}
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is the body of the automation start/stop endpoints.
type MessageResponse struct {
	Message string `json:"message"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil { // Avoid writing empty body for 204 No Content
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("ERROR: Failed to encode JSON response: %v", err)
		}
	}
}

func parseProductID(r *http.Request) (int64, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil || productID <= 0 {
		return 0, false
	}
	return productID, true
}

// --- Product Handlers ---

// ProductCreateInput defines the expected input for creating a product.
// The current price starts at the original price.
type ProductCreateInput struct {
	Name          string   `json:"name" validate:"required,max=100"`
	Description   *string  `json:"description" validate:"omitempty,max=255"`
	Category      *string  `json:"category" validate:"omitempty,max=50"`
	ImageURL      *string  `json:"image_url" validate:"omitempty,url,max=2048"`
	OriginalPrice *float64 `json:"original_price" validate:"required,gte=0"`
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var input ProductCreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	product := &domain.Product{
		Name:          input.Name,
		Description:   input.Description,
		Category:      input.Category,
		ImageURL:      input.ImageURL,
		OriginalPrice: *input.OriginalPrice,
	}

	createdProduct, err := h.productStore.CreateProduct(r.Context(), product)
	if err != nil {
		log.Printf("ERROR: CreateProduct store operation failed: %v", err)
		if errors.Is(err, store.ErrInvalidPrice) {
			respondWithError(w, http.StatusBadRequest, store.ErrInvalidPrice.Error())
		} else {
			respondWithError(w, http.StatusInternalServerError, "Failed to create product")
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, createdProduct)
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.productStore.FetchAllProducts(r.Context())
	if err != nil {
		log.Printf("ERROR: ListProducts store operation failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve products")
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	respondWithJSON(w, http.StatusOK, products)
}

func (h *HTTPHandler) GetProductByID(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseProductID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	product, err := h.productStore.GetProductByID(r.Context(), productID)
	if err != nil {
		log.Printf("ERROR: GetProductByID store operation for ID %d failed: %v", productID, err)
		if errors.Is(err, store.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
		} else {
			respondWithError(w, http.StatusInternalServerError, "Failed to retrieve product")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseProductID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	if err := h.productStore.DeleteProduct(r.Context(), productID); err != nil {
		log.Printf("ERROR: DeleteProduct store operation for ID %d failed: %v", productID, err)
		if errors.Is(err, store.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
		} else {
			respondWithError(w, http.StatusInternalServerError, "Failed to delete product")
		}
		return
	}

	respondWithJSON(w, http.StatusNoContent, nil)
}

// GetPriceHistory returns a product's recorded prices, newest first.
func (h *HTTPHandler) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseProductID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	limit := 0 // store default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid limit: must be a positive integer")
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}

	history, err := h.productStore.GetPriceHistory(r.Context(), productID, limit)
	if err != nil {
		log.Printf("ERROR: GetPriceHistory store operation for ID %d failed: %v", productID, err)
		if errors.Is(err, store.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
		} else {
			respondWithError(w, http.StatusInternalServerError, "Failed to retrieve price history")
		}
		return
	}
	if history == nil {
		history = []domain.PriceHistoryEntry{}
	}
	respondWithJSON(w, http.StatusOK, history)
}

// --- Automation Handlers ---

func (h *HTTPHandler) StartAutomation(w http.ResponseWriter, r *http.Request) {
	if !h.automation.Start() {
		respondWithJSON(w, http.StatusBadRequest, MessageResponse{Message: "Automation is already running."})
		return
	}
	respondWithJSON(w, http.StatusOK, MessageResponse{Message: "Automation started."})
}

func (h *HTTPHandler) StopAutomation(w http.ResponseWriter, r *http.Request) {
	if !h.automation.Stop() {
		respondWithJSON(w, http.StatusBadRequest, MessageResponse{Message: "Automation was not running."})
		return
	}
	respondWithJSON(w, http.StatusOK, MessageResponse{Message: "Automation stopped."})
}

func (h *HTTPHandler) GetAutomationStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.automation.Status())
}

// AutomationConfigInput changes the scheduler at runtime. Omitted fields are left
// as they are; min_factor and max_factor must be sent together.
type AutomationConfigInput struct {
	Interval  *float64 `json:"interval" validate:"omitempty,gt=0"` // seconds
	MinFactor *float64 `json:"min_factor" validate:"omitempty,gte=0,lte=1000"`
	MaxFactor *float64 `json:"max_factor" validate:"omitempty,gte=0,lte=1000"`
}

func (h *HTTPHandler) UpdateAutomationConfig(w http.ResponseWriter, r *http.Request) {
	var input AutomationConfigInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}
	if (input.MinFactor == nil) != (input.MaxFactor == nil) {
		respondWithError(w, http.StatusBadRequest, "min_factor and max_factor must be provided together")
		return
	}

	// Check everything up front so a rejected request changes nothing.
	var interval time.Duration
	if input.Interval != nil {
		interval = time.Duration(*input.Interval * float64(time.Second))
		if interval <= 0 {
			respondWithError(w, http.StatusBadRequest, automation.ErrInvalidInterval.Error())
			return
		}
	}
	if input.MinFactor != nil {
		band := pricing.Band{MinFactor: *input.MinFactor, MaxFactor: *input.MaxFactor}
		if err := band.Validate(); err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if input.Interval != nil {
		if err := h.automation.SetInterval(interval); err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if input.MinFactor != nil {
		if err := h.automation.SetPriceRange(*input.MinFactor, *input.MaxFactor); err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	respondWithJSON(w, http.StatusOK, h.automation.Status())
}

// RegisterRoutes sets up the HTTP routes for the service.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)   // GET /products
		r.Post("/", h.CreateProduct) // POST /products

		r.Route("/{productId}", func(r chi.Router) {
			r.Get("/", h.GetProductByID)         // GET /products/{productId}
			r.Delete("/", h.DeleteProduct)       // DELETE /products/{productId}
			r.Get("/history", h.GetPriceHistory) // GET /products/{productId}/history
		})
	})

	r.Route("/automation", func(r chi.Router) {
		r.Post("/start", h.StartAutomation)
		r.Post("/stop", h.StopAutomation)
		r.Get("/status", h.GetAutomationStatus)
		r.Put("/config", h.UpdateAutomationConfig)
	})
}
