// Package entity defines the syncable record kinds exchanged with the
// remote API and persisted in the local store, plus the session identity
// used for role filtering.
package entity

import "time"

// RoleID identifies the business role of the signed-in user.
type RoleID int

const (
	RoleSalesman RoleID = 1
	RoleManager  RoleID = 2
	RoleDriver   RoleID = 3
)

// Identity is the session identity context, resolved once per sync
// session and immutable afterwards.
type Identity struct {
	RoleID  RoleID `json:"role_id"`
	ActorID int64  `json:"actor_id"`
}

// Unit is a measurement unit (piece, box, kg).
type Unit struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Abbrev    string    `json:"abbrev"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Category is a product category node.
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ParentID  int64     `json:"parent_id"` // 0 = root
	UpdatedAt time.Time `json:"updated_at"`
}

// CarBrand is a vehicle make in the customer-fleet taxonomy.
type CarBrand struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CarModel is a vehicle model belonging to a brand.
type CarModel struct {
	ID        int64     `json:"id"`
	BrandID   int64     `json:"brand_id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Region is a sales territory.
type Region struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Warehouse is a stock location.
type Warehouse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Supplier is an upstream vendor. Synced for managers only.
type Supplier struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product is a sellable item.
type Product struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Barcode    string    `json:"barcode"`
	CategoryID int64     `json:"category_id"`
	UnitID     int64     `json:"unit_id"`
	SupplierID int64     `json:"supplier_id"`
	Price      float64   `json:"price"`
	Active     bool      `json:"active"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PriceList is a customer-group specific price for a product.
type PriceList struct {
	ID            int64     `json:"id"`
	ProductID     int64     `json:"product_id"`
	CustomerGroup string    `json:"customer_group"`
	Price         float64   `json:"price"`
	ValidFrom     time.Time `json:"valid_from"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StockLevel is the on-hand quantity of a product in a warehouse.
type StockLevel struct {
	ID          int64     `json:"id"`
	ProductID   int64     `json:"product_id"`
	WarehouseID int64     `json:"warehouse_id"`
	Quantity    float64   `json:"quantity"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Customer is a retail outlet or client.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	RegionID  int64     `json:"region_id"`
	Group     string    `json:"group"`
	Debt      float64   `json:"debt"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CustomerCar links a customer to a vehicle model in their fleet.
type CustomerCar struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	ModelID    int64     `json:"model_id"`
	Plate      string    `json:"plate"`
	Year       int       `json:"year"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Salesman is a field staff member.
type Salesman struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	RoleID    RoleID    `json:"role_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Route is a salesman's visit route. Synced for the salesman role only.
type Route struct {
	ID         int64     `json:"id"`
	SalesmanID int64     `json:"salesman_id"`
	Name       string    `json:"name"`
	Weekday    int       `json:"weekday"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RouteStop is one customer position on a route.
type RouteStop struct {
	ID         int64     `json:"id"`
	RouteID    int64     `json:"route_id"`
	CustomerID int64     `json:"customer_id"`
	Position   int       `json:"position"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Visit is a completed route stop.
type Visit struct {
	ID         int64     `json:"id"`
	RouteID    int64     `json:"route_id"`
	CustomerID int64     `json:"customer_id"`
	SalesmanID int64     `json:"salesman_id"`
	VisitedAt  time.Time `json:"visited_at"`
	Note       string    `json:"note"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Order is a sales order. Order pages embed their lines, which embed
// suggestion records; the store persists each level parent-first.
type Order struct {
	ID         int64       `json:"id"`
	CustomerID int64       `json:"customer_id"`
	SalesmanID int64       `json:"salesman_id"`
	Status     string      `json:"status"`
	Total      float64     `json:"total"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Lines      []OrderLine `json:"lines"`
}

// OrderLine is one product position on an order.
type OrderLine struct {
	ID          int64            `json:"id"`
	OrderID     int64            `json:"order_id"`
	ProductID   int64            `json:"product_id"`
	Quantity    float64          `json:"quantity"`
	Price       float64          `json:"price"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Suggestions []LineSuggestion `json:"suggestions"`
}

// LineSuggestion is a server-computed upsell/replacement hint for a line.
type LineSuggestion struct {
	ID        int64     `json:"id"`
	LineID    int64     `json:"line_id"`
	ProductID int64     `json:"product_id"`
	Reason    string    `json:"reason"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Payment is a customer payment against an order.
type Payment struct {
	ID         int64     `json:"id"`
	OrderID    int64     `json:"order_id"`
	CustomerID int64     `json:"customer_id"`
	Amount     float64   `json:"amount"`
	Method     string    `json:"method"`
	PaidAt     time.Time `json:"paid_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Delivery is a scheduled order delivery. Synced for drivers and managers.
type Delivery struct {
	ID          int64     `json:"id"`
	OrderID     int64     `json:"order_id"`
	WarehouseID int64     `json:"warehouse_id"`
	Status      string    `json:"status"`
	ScheduledAt time.Time `json:"scheduled_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
