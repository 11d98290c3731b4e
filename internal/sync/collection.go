// Package sync implements the incremental download engine: an ordered
// walk over the role-filtered collection list, paginated delta queries,
// per-collection checkpoints, and an out-of-band single-record path with
// a retry queue.
package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fieldsync/fieldsync/internal/entity"
	"github.com/fieldsync/fieldsync/internal/store"
)

// SizeClass weights a collection for progress estimation. Transactional
// tables dominate sync time, so they count more than reference tables.
type SizeClass int

const (
	SizeSmall SizeClass = iota
	SizeLarge
)

// Collection describes one syncable collection: its wire name, table ID,
// progress weight, role filter, and the decode-and-persist step for a
// page of raw records.
type Collection struct {
	Name  string
	Table entity.TableID
	Size  SizeClass

	// Roles reports whether the collection is synced for a role.
	// A nil predicate means every role.
	Roles func(entity.RoleID) bool

	// Apply decodes a page of raw records and persists them in one
	// transaction.
	Apply func(ctx context.Context, s *store.Store, records []json.RawMessage) error
}

// SyncedFor reports whether this collection belongs in the walk for the
// given role.
func (c Collection) SyncedFor(role entity.RoleID) bool {
	return c.Roles == nil || c.Roles(role)
}

func decodePage[T any](records []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, raw := range records {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decoding record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func applyWith[T any](upsert func(*store.Store, context.Context, []T) error) func(context.Context, *store.Store, []json.RawMessage) error {
	return func(ctx context.Context, s *store.Store, records []json.RawMessage) error {
		recs, err := decodePage[T](records)
		if err != nil {
			return err
		}
		return upsert(s, ctx, recs)
	}
}

func managerOnly(r entity.RoleID) bool  { return r == entity.RoleManager }
func salesmanOnly(r entity.RoleID) bool { return r == entity.RoleSalesman }
func driverOrManager(r entity.RoleID) bool {
	return r == entity.RoleDriver || r == entity.RoleManager
}

// collections is the full walk in dependency order: reference data
// before the tables that point at it, orders before payments and
// deliveries. The engine never reorders it.
var collections = []Collection{
	{Name: "units", Table: entity.TableUnits, Size: SizeSmall,
		Apply: applyWith((*store.Store).UpsertUnits)},
	{Name: "categories", Table: entity.TableCategories, Size: SizeSmall,
		Apply: applyWith((*store.Store).UpsertCategories)},
	{Name: "car_brands", Table: entity.TableCarBrands, Size: SizeSmall,
		Apply: applyWith((*store.Store).UpsertCarBrands)},
	{Name: "car_models", Table: entity.TableCarModels, Size: SizeSmall,
		Apply: applyWith((*store.Store).UpsertCarModels)},
	{Name: "regions", Table: entity.TableRegions, Size: SizeSmall,
		Apply: applyWith((*store.Store).UpsertRegions)},
	{Name: "warehouses", Table: entity.TableWarehouses, Size: SizeSmall,
		Apply: applyWith((*store.Store).UpsertWarehouses)},
	{Name: "suppliers", Table: entity.TableSuppliers, Size: SizeSmall,
		Roles: managerOnly,
		Apply: applyWith((*store.Store).UpsertSuppliers)},
	{Name: "products", Table: entity.TableProducts, Size: SizeLarge,
		Apply: applyWith((*store.Store).UpsertProducts)},
	{Name: "price_lists", Table: entity.TablePriceLists, Size: SizeLarge,
		Apply: applyWith((*store.Store).UpsertPriceLists)},
	{Name: "stock_levels", Table: entity.TableStockLevels, Size: SizeLarge,
		Apply: applyWith((*store.Store).UpsertStockLevels)},
	{Name: "customers", Table: entity.TableCustomers, Size: SizeLarge,
		Apply: applyWith((*store.Store).UpsertCustomers)},
	{Name: "customer_cars", Table: entity.TableCustomerCars, Size: SizeSmall,
		Apply: applyWith((*store.Store).UpsertCustomerCars)},
	{Name: "salesmen", Table: entity.TableSalesmen, Size: SizeSmall,
		Apply: applyWith((*store.Store).UpsertSalesmen)},
	{Name: "routes", Table: entity.TableRoutes, Size: SizeSmall,
		Roles: salesmanOnly,
		Apply: applyWith((*store.Store).UpsertRoutes)},
	{Name: "route_stops", Table: entity.TableRouteStops, Size: SizeSmall,
		Roles: salesmanOnly,
		Apply: applyWith((*store.Store).UpsertRouteStops)},
	{Name: "visits", Table: entity.TableVisits, Size: SizeSmall,
		Roles: salesmanOnly,
		Apply: applyWith((*store.Store).UpsertVisits)},
	{Name: "orders", Table: entity.TableOrders, Size: SizeLarge,
		Apply: applyWith((*store.Store).UpsertOrders)},
	{Name: "payments", Table: entity.TablePayments, Size: SizeLarge,
		Apply: applyWith((*store.Store).UpsertPayments)},
	{Name: "deliveries", Table: entity.TableDeliveries, Size: SizeSmall,
		Roles: driverOrManager,
		Apply: applyWith((*store.Store).UpsertDeliveries)},
}

// Collections returns the full ordered walk.
func Collections() []Collection {
	return collections
}

// CollectionsFor returns the ordered walk filtered to one role.
func CollectionsFor(role entity.RoleID) []Collection {
	out := make([]Collection, 0, len(collections))
	for _, c := range collections {
		if c.SyncedFor(role) {
			out = append(out, c)
		}
	}
	return out
}

// ByTable resolves a collection from its table ID. Used by the
// out-of-band single-record path and the retry sweep.
func ByTable(table entity.TableID) (Collection, bool) {
	for _, c := range collections {
		if c.Table == table {
			return c, true
		}
	}
	return Collection{}, false
}
