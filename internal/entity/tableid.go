package entity

import "fmt"

// TableID is the closed enumeration used by the push-notification and
// failed-operation paths to address a syncable collection. Values are part
// of the wire contract with the push backend and must not be renumbered.
type TableID int

const (
	TableUnits TableID = iota + 1
	TableCategories
	TableCarBrands
	TableCarModels
	TableRegions
	TableWarehouses
	TableSuppliers
	TableProducts
	TablePriceLists
	TableStockLevels
	TableCustomers
	TableCustomerCars
	TableSalesmen
	TableRoutes
	TableRouteStops
	TableVisits
	TableOrders
	TablePayments
	TableDeliveries
)

// tableNames maps TableID to the remote collection identifier.
var tableNames = map[TableID]string{
	TableUnits:        "units",
	TableCategories:   "categories",
	TableCarBrands:    "car_brands",
	TableCarModels:    "car_models",
	TableRegions:      "regions",
	TableWarehouses:   "warehouses",
	TableSuppliers:    "suppliers",
	TableProducts:     "products",
	TablePriceLists:   "price_lists",
	TableStockLevels:  "stock_levels",
	TableCustomers:    "customers",
	TableCustomerCars: "customer_cars",
	TableSalesmen:     "salesmen",
	TableRoutes:       "routes",
	TableRouteStops:   "route_stops",
	TableVisits:       "visits",
	TableOrders:       "orders",
	TablePayments:     "payments",
	TableDeliveries:   "deliveries",
}

// String returns the remote collection identifier for the table.
func (t TableID) String() string {
	if name, ok := tableNames[t]; ok {
		return name
	}
	return fmt.Sprintf("table(%d)", int(t))
}

// Valid reports whether the value is a known table.
func (t TableID) Valid() bool {
	_, ok := tableNames[t]
	return ok
}

// ParseTableID converts a collection identifier back to its TableID.
func ParseTableID(name string) (TableID, error) {
	for id, n := range tableNames {
		if n == name {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown collection: %q", name)
}

// AllTables returns every TableID in collection sync order.
func AllTables() []TableID {
	return []TableID{
		TableUnits, TableCategories, TableCarBrands, TableCarModels,
		TableRegions, TableWarehouses, TableSuppliers, TableProducts,
		TablePriceLists, TableStockLevels, TableCustomers, TableCustomerCars,
		TableSalesmen, TableRoutes, TableRouteStops, TableVisits,
		TableOrders, TablePayments, TableDeliveries,
	}
}
