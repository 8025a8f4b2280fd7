package inventory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/digital-fulfillment/pkg/db"
	"github.com/angelmondragon/digital-fulfillment/pkg/db/dbtest"
	"github.com/angelmondragon/digital-fulfillment/pkg/db/models"
	"github.com/angelmondragon/digital-fulfillment/pkg/enums"
)

func TestStockReportCountsByStatus(t *testing.T) {
	conn := dbtest.Open(t)
	product, codes := dbtest.SeedProduct(t, conn, "SKU-1", 3)
	empty, _ := dbtest.SeedProduct(t, conn, "SKU-2", 0)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now()

	_, err := repo.ClaimCode(ctx, codes[0].ID, "o", "1", now)
	require.NoError(t, err)
	_, err = repo.ClaimCode(ctx, codes[1].ID, "o", "2", now)
	require.NoError(t, err)
	_, err = repo.MarkDelivered(ctx, []uuid.UUID{codes[1].ID}, "o", "2", now)
	require.NoError(t, err)

	rows, err := repo.StockReport(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byID := map[uuid.UUID]StockRow{}
	for _, row := range rows {
		byID[row.ProductID] = row
	}
	assert.Equal(t, StockRow{ProductID: product.ID, Title: product.Title, ProductKey: product.ProductKey, Available: 1, Reserved: 1, Delivered: 1, Total: 3}, byID[product.ID])
	assert.EqualValues(t, 0, byID[empty.ID].Total)
}

func TestListProductsReportsAvailable(t *testing.T) {
	conn := dbtest.Open(t)
	product, codes := dbtest.SeedProduct(t, conn, "SKU-1", 2)
	repo := NewRepository(conn)
	ctx := context.Background()

	_, err := repo.ClaimCode(ctx, codes[0].ID, "o", "1", time.Now())
	require.NoError(t, err)

	rows, err := repo.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, product.ID, rows[0].ID)
	assert.EqualValues(t, 1, rows[0].Available)
}

func TestAddCodesAndDeliveryLogListing(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	product, err := repo.CreateProduct(ctx, &models.Product{Title: "Pass", ProductKey: "pass"})
	require.NoError(t, err)

	n, err := repo.AddCodes(ctx, product.ID, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	available, err := repo.ListAvailableCodes(ctx, product.ID, 10)
	require.NoError(t, err)
	require.Len(t, available, 2)

	require.NoError(t, repo.InsertDeliveryLog(ctx, &models.DeliveryLog{OrderID: "o", ItemID: "1", CodeID: available[0].ID}))

	logs, err := repo.ListDeliveryLogs(ctx, 100)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Pass", logs[0].ProductTitle)
	assert.Equal(t, available[0].CodeText, logs[0].CodeText)
}

func TestOfferMappings(t *testing.T) {
	conn := dbtest.Open(t)
	product, _ := dbtest.SeedProduct(t, conn, "", 0)
	repo := NewRepository(conn)
	ctx := context.Background()

	_, err := repo.CreateOfferMapping(ctx, &models.OfferMapping{OfferID: "SKU-9", ProductID: product.ID})
	require.NoError(t, err)
	_, err = repo.CreateOfferMapping(ctx, &models.OfferMapping{OfferID: "SKU-9", ProductID: product.ID})
	require.Error(t, err)

	mappings, err := repo.ListOfferMappings(ctx)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	require.NotNil(t, mappings[0].Product)
	assert.Equal(t, product.Title, mappings[0].Product.Title)
}

func TestAddCodesStoresNothingWhenAnyCodeIsDuplicate(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	product, seeded := dbtest.SeedProduct(t, conn, "offer-A", 1)

	texts := make([]string, 0, 600)
	for i := range 599 {
		texts = append(texts, fmt.Sprintf("NEW-%04d", i))
	}
	texts = append(texts, seeded[0].CodeText)

	n, err := repo.AddCodes(ctx, product.ID, texts)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, "ux_codes_product_code_text"))
	assert.Zero(t, n)
	assert.EqualValues(t, 1, dbtest.CountCodes(t, conn, product.ID, string(enums.CodeStatusAvailable)))

	n, err = repo.AddCodes(ctx, product.ID, texts[:599])
	require.NoError(t, err)
	assert.Equal(t, 599, n)
	assert.EqualValues(t, 600, dbtest.CountCodes(t, conn, product.ID, string(enums.CodeStatusAvailable)))
}

func TestSameCodeAllowedAcrossProducts(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	first, _ := dbtest.SeedProduct(t, conn, "", 0)
	second, err := repo.CreateProduct(ctx, &models.Product{Title: "Second", ProductKey: "second"})
	require.NoError(t, err)

	_, err = repo.AddCodes(ctx, first.ID, []string{"SHARED"})
	require.NoError(t, err)
	_, err = repo.AddCodes(ctx, second.ID, []string{"SHARED"})
	require.NoError(t, err)
}
