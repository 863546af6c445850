package poindex

import (
	"encoding/json"
	"fmt"
	"os"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

// databaseFile mirrors the on-disk purchase order database layout.
type databaseFile struct {
	PurchaseOrders []*models.PurchaseOrder `json:"purchase_orders"`
}

// LoadFile reads a purchase order database from a JSON file and builds
// the index. Records that fail validation reject the whole file; the
// database is static reference data and a bad record means a bad deploy,
// not a messy document.
func LoadFile(path string) (*Index, error) {
	log := logger.GetGlobalLogger().WithComponent("po_index")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, errors.FileError(errors.CodeUnexpectedError, path, err)
	}

	var db databaseFile
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, "purchase order database is not valid JSON", err)
	}

	seen := make(map[string]bool, len(db.PurchaseOrders))
	for i, po := range db.PurchaseOrders {
		if err := po.Validate(); err != nil {
			return nil, errors.ParseError(errors.CodeInvalidData, path,
				fmt.Sprintf("purchase order %d: %v", i, err), nil)
		}
		key := normalizeNumber(po.PONumber)
		if seen[key] {
			return nil, errors.ParseError(errors.CodeInvalidData, path,
				fmt.Sprintf("duplicate purchase order number %s", po.PONumber), nil)
		}
		seen[key] = true
	}

	index := NewIndex(db.PurchaseOrders)
	log.WithFields(logger.Fields{
		"path":            path,
		"purchase_orders": index.Size(),
	}).Info("Loaded purchase order database")

	return index, nil
}
