package pairs

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const skuGenerationTries = 10

// GenerateSKU synthesizes a globally-unique seller SKU in the
// XX-XXXX-XXXX format. exists is consulted before accepting a value, so
// concurrent generators converge through an optimistic re-check rather
// than a lock.
func GenerateSKU(ctx context.Context, exists func(ctx context.Context, sku string) (bool, error)) (string, error) {
	for i := 0; i < skuGenerationTries; i++ {
		sku := formatSKU(uuid.NewString())
		taken, err := exists(ctx, sku)
		if err != nil {
			return "", fmt.Errorf("checking sku uniqueness: %w", err)
		}
		if !taken {
			return sku, nil
		}
	}
	return "", fmt.Errorf("no unique sku after %d tries", skuGenerationTries)
}

func formatSKU(id string) string {
	hex := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	return fmt.Sprintf("%s-%s-%s", hex[:2], hex[2:6], hex[6:10])
}
