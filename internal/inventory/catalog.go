package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/digital-fulfillment/pkg/db/models"
	"github.com/angelmondragon/digital-fulfillment/pkg/enums"
)

// StockRow summarizes code counts for one product.
type StockRow struct {
	ProductID  uuid.UUID `gorm:"column:product_id" json:"productId"`
	Title      string    `gorm:"column:title" json:"title"`
	ProductKey string    `gorm:"column:product_key" json:"productKey"`
	Available  int64     `gorm:"column:available" json:"available"`
	Reserved   int64     `gorm:"column:reserved" json:"reserved"`
	Delivered  int64     `gorm:"column:delivered" json:"delivered"`
	Total      int64     `gorm:"column:total" json:"total"`
}

// ProductSummary is a product with its available code count.
type ProductSummary struct {
	ID         uuid.UUID `gorm:"column:id" json:"id"`
	Title      string    `gorm:"column:title" json:"title"`
	ProductKey string    `gorm:"column:product_key" json:"productKey"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"createdAt"`
	Available  int64     `gorm:"column:available" json:"available"`
}

// DeliveryLogView is a delivery log joined with its code and product title.
type DeliveryLogView struct {
	ID           uuid.UUID `gorm:"column:id" json:"id"`
	OrderID      string    `gorm:"column:order_id" json:"orderId"`
	ItemID       string    `gorm:"column:item_id" json:"itemId"`
	CodeID       uuid.UUID `gorm:"column:code_id" json:"codeId"`
	CodeText     string    `gorm:"column:code_text" json:"codeText"`
	ProductTitle string    `gorm:"column:product_title" json:"productTitle"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"createdAt"`
}

const stockQuery = `
SELECT p.id AS product_id,
       p.title,
       p.product_key,
       COALESCE(SUM(CASE WHEN c.status = ? THEN 1 ELSE 0 END), 0) AS available,
       COALESCE(SUM(CASE WHEN c.status = ? THEN 1 ELSE 0 END), 0) AS reserved,
       COALESCE(SUM(CASE WHEN c.status = ? THEN 1 ELSE 0 END), 0) AS delivered,
       COUNT(c.id) AS total
FROM products p
LEFT JOIN codes c ON c.product_id = p.id
GROUP BY p.id, p.title, p.product_key, p.created_at
ORDER BY p.created_at ASC, p.id ASC
`

const productSummaryQuery = `
SELECT p.id,
       p.title,
       p.product_key,
       p.created_at,
       COUNT(c.id) AS available
FROM products p
LEFT JOIN codes c ON c.product_id = p.id AND c.status = ?
GROUP BY p.id, p.title, p.product_key, p.created_at
ORDER BY p.created_at ASC, p.id ASC
`

const deliveryLogQuery = `
SELECT dl.id,
       dl.order_id,
       dl.item_id,
       dl.code_id,
       c.code_text,
       p.title AS product_title,
       dl.created_at
FROM delivery_logs dl
JOIN codes c ON c.id = dl.code_id
JOIN products p ON p.id = c.product_id
ORDER BY dl.created_at DESC, dl.id DESC
LIMIT ?
`

// StockReport returns per-product code counts by status.
func (r *Repository) StockReport(ctx context.Context) ([]StockRow, error) {
	var rows []StockRow
	err := r.db.WithContext(ctx).
		Raw(stockQuery, enums.CodeStatusAvailable, enums.CodeStatusReserved, enums.CodeStatusDelivered).
		Scan(&rows).Error
	return rows, err
}

// ListProducts returns every product with its available count.
func (r *Repository) ListProducts(ctx context.Context) ([]ProductSummary, error) {
	var rows []ProductSummary
	err := r.db.WithContext(ctx).Raw(productSummaryQuery, enums.CodeStatusAvailable).Scan(&rows).Error
	return rows, err
}

// ListDeliveryLogs returns the most recent deliveries first.
func (r *Repository) ListDeliveryLogs(ctx context.Context, limit int) ([]DeliveryLogView, error) {
	var rows []DeliveryLogView
	err := r.db.WithContext(ctx).Raw(deliveryLogQuery, limit).Scan(&rows).Error
	return rows, err
}

func (r *Repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

const codeInsertBatch = 500

// AddCodes appends available codes for a product. Rows are created in batches
// inside one transaction, so a duplicate anywhere stores nothing.
func (r *Repository) AddCodes(ctx context.Context, productID uuid.UUID, texts []string) (int, error) {
	if len(texts) == 0 {
		return 0, nil
	}
	codes := make([]models.Code, 0, len(texts))
	for _, text := range texts {
		codes = append(codes, models.Code{
			ProductID: productID,
			CodeText:  text,
			Status:    enums.CodeStatusAvailable,
		})
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&codes, codeInsertBatch).Error
	})
	if err != nil {
		return 0, err
	}
	return len(codes), nil
}

func (r *Repository) CreateOfferMapping(ctx context.Context, mapping *models.OfferMapping) (*models.OfferMapping, error) {
	if err := r.db.WithContext(ctx).Create(mapping).Error; err != nil {
		return nil, err
	}
	return mapping, nil
}

// ListOfferMappings returns mappings with their product preloaded.
func (r *Repository) ListOfferMappings(ctx context.Context) ([]models.OfferMapping, error) {
	var mappings []models.OfferMapping
	err := r.db.WithContext(ctx).
		Preload("Product").
		Order("created_at ASC, id ASC").
		Find(&mappings).Error
	return mappings, err
}
