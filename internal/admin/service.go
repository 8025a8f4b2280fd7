// Package admin implements the operator surface: stock and delivery reports,
// product and offer mapping management, code import and admin login.
package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/digital-fulfillment/internal/inventory"
	pkgauth "github.com/angelmondragon/digital-fulfillment/pkg/auth"
	"github.com/angelmondragon/digital-fulfillment/pkg/config"
	"github.com/angelmondragon/digital-fulfillment/pkg/db"
	"github.com/angelmondragon/digital-fulfillment/pkg/db/models"
	pkgerrors "github.com/angelmondragon/digital-fulfillment/pkg/errors"
	"github.com/angelmondragon/digital-fulfillment/pkg/logger"
)

const (
	DefaultDeliveryLogLimit = 100
	MaxDeliveryLogLimit     = 1000
)

type catalog interface {
	StockReport(ctx context.Context) ([]inventory.StockRow, error)
	ListProducts(ctx context.Context) ([]inventory.ProductSummary, error)
	ListDeliveryLogs(ctx context.Context, limit int) ([]inventory.DeliveryLogView, error)
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error)
	AddCodes(ctx context.Context, productID uuid.UUID, texts []string) (int, error)
	CreateOfferMapping(ctx context.Context, mapping *models.OfferMapping) (*models.OfferMapping, error)
	ListOfferMappings(ctx context.Context) ([]models.OfferMapping, error)
}

// Service exposes the admin operations behind /api/admin/v1.
type Service interface {
	Stock(ctx context.Context) ([]inventory.StockRow, error)
	DeliveryLogs(ctx context.Context, limit int) ([]inventory.DeliveryLogView, error)
	ListProducts(ctx context.Context) ([]inventory.ProductSummary, error)
	CreateProduct(ctx context.Context, input CreateProductInput) (*ProductView, error)
	AddCodes(ctx context.Context, productID uuid.UUID, codes []string) (*AddCodesResult, error)
	ListOffers(ctx context.Context) ([]OfferView, error)
	CreateOffer(ctx context.Context, input CreateOfferInput) (*OfferView, error)
	Login(ctx context.Context, password string) (*LoginResult, error)
}

type CreateProductInput struct {
	Title      string
	ProductKey string
}

type CreateOfferInput struct {
	OfferID   string
	ProductID uuid.UUID
}

type ProductView struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	ProductKey string    `json:"productKey"`
	CreatedAt  time.Time `json:"createdAt"`
}

type OfferView struct {
	ID           uuid.UUID `json:"id"`
	OfferID      string    `json:"offerId"`
	ProductID    uuid.UUID `json:"productId"`
	ProductTitle string    `json:"productTitle,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type AddCodesResult struct {
	ProductID uuid.UUID `json:"productId"`
	Added     int       `json:"added"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type service struct {
	catalog catalog
	cfg     config.AdminConfig
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(catalog catalog, cfg config.AdminConfig, logg *logger.Logger) (Service, error) {
	if catalog == nil {
		return nil, fmt.Errorf("inventory catalog required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		catalog: catalog,
		cfg:     cfg,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Stock(ctx context.Context) ([]inventory.StockRow, error) {
	rows, err := s.catalog.StockReport(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock report")
	}
	return emptyIfNil(rows), nil
}

func (s *service) DeliveryLogs(ctx context.Context, limit int) ([]inventory.DeliveryLogView, error) {
	if limit <= 0 {
		limit = DefaultDeliveryLogLimit
	}
	if limit > MaxDeliveryLogLimit {
		limit = MaxDeliveryLogLimit
	}
	rows, err := s.catalog.ListDeliveryLogs(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery logs")
	}
	return emptyIfNil(rows), nil
}

func (s *service) ListProducts(ctx context.Context) ([]inventory.ProductSummary, error) {
	rows, err := s.catalog.ListProducts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return emptyIfNil(rows), nil
}

func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductView, error) {
	title := strings.TrimSpace(input.Title)
	key := strings.TrimSpace(input.ProductKey)
	if title == "" || key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title and productKey are required")
	}

	product, err := s.catalog.CreateProduct(ctx, &models.Product{Title: title, ProductKey: key})
	if err != nil {
		if db.IsUniqueViolation(err, "ux_products_product_key") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "product key already exists").
				WithDetails(map[string]any{"productKey": key})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"product_id":  product.ID.String(),
		"product_key": product.ProductKey,
	}), "product created")
	return &ProductView{
		ID:         product.ID,
		Title:      product.Title,
		ProductKey: product.ProductKey,
		CreatedAt:  product.CreatedAt,
	}, nil
}

// AddCodes appends codes as available stock. Callers pass sanitized, de-duplicated
// code texts; a code already stored for the product rejects the whole batch.
func (s *service) AddCodes(ctx context.Context, productID uuid.UUID, codes []string) (*AddCodesResult, error) {
	if len(codes) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no codes provided")
	}
	if err := s.requireProduct(ctx, productID); err != nil {
		return nil, err
	}

	added, err := s.catalog.AddCodes(ctx, productID, codes)
	if err != nil {
		if db.IsUniqueViolation(err, "ux_codes_product_code_text") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "one or more codes already exist for this product")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store codes")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"product_id": productID.String(),
		"added":      added,
	}), "codes imported")
	return &AddCodesResult{ProductID: productID, Added: added}, nil
}

func (s *service) ListOffers(ctx context.Context) ([]OfferView, error) {
	mappings, err := s.catalog.ListOfferMappings(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list offers")
	}
	views := make([]OfferView, 0, len(mappings))
	for _, m := range mappings {
		views = append(views, offerView(m))
	}
	return views, nil
}

func (s *service) CreateOffer(ctx context.Context, input CreateOfferInput) (*OfferView, error) {
	offerID := strings.TrimSpace(input.OfferID)
	if offerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offerId is required")
	}
	if err := s.requireProduct(ctx, input.ProductID); err != nil {
		return nil, err
	}

	mapping, err := s.catalog.CreateOfferMapping(ctx, &models.OfferMapping{OfferID: offerID, ProductID: input.ProductID})
	if err != nil {
		if db.IsUniqueViolation(err, "ux_offer_mappings_offer_id") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "offer already mapped").
				WithDetails(map[string]any{"offerId": offerID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create offer mapping")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"offer_id":   offerID,
		"product_id": input.ProductID.String(),
	}), "offer mapped")
	view := offerView(*mapping)
	return &view, nil
}

func (s *service) Login(ctx context.Context, password string) (*LoginResult, error) {
	if !s.cfg.HasCredentials() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access is not configured")
	}
	ok, err := pkgauth.CheckPassword(s.cfg, password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify admin password")
	}
	if !ok {
		s.logg.Warn(ctx, "admin login rejected")
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}

	token, expiresAt, err := pkgauth.MintAdminToken(s.cfg, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue admin token")
	}
	s.logg.Info(ctx, "admin login succeeded")
	return &LoginResult{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *service) requireProduct(ctx context.Context, productID uuid.UUID) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "productId is required")
	}
	if _, err := s.catalog.FindProduct(ctx, productID); err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "product not found").
				WithDetails(map[string]any{"productId": productID.String()})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return nil
}

func offerView(m models.OfferMapping) OfferView {
	view := OfferView{
		ID:        m.ID,
		OfferID:   m.OfferID,
		ProductID: m.ProductID,
		CreatedAt: m.CreatedAt,
	}
	if m.Product != nil {
		view.ProductTitle = m.Product.Title
	}
	return view
}

func emptyIfNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
