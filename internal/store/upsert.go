package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldsync/fieldsync/internal/entity"
)

// Upserts are replace-by-primary-key: the same page may be re-applied
// after a crash or out of order relative to a single-record fetch without
// creating duplicates. Every method commits its whole slice as one
// transaction (the page-commit unit).

// PersistError is a local write failure. The page transaction it
// belonged to was rolled back.
type PersistError struct {
	Table string
	Err   error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("upsert %s: %v", e.Table, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func (s *Store) UpsertUnits(ctx context.Context, records []entity.Unit) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO units (id, name, abbrev, updated_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					abbrev = excluded.abbrev,
					updated_at = excluded.updated_at
			`, r.ID, r.Name, r.Abbrev, ts(r.UpdatedAt))
			if err != nil {
				return &PersistError{Table: "units", Err: err}
			}
		}
		return nil
	})
}

func (s *Store) UpsertCategories(ctx context.Context, records []entity.Category) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO categories (id, name, parent_id, updated_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					parent_id = excluded.parent_id,
					updated_at = excluded.updated_at
			`, r.ID, r.Name, r.ParentID, ts(r.UpdatedAt))
			if err != nil {
				return &PersistError{Table: "categories", Err: err}
			}
		}
		return nil
	})
}

func (s *Store) UpsertCarBrands(ctx context.Context, records []entity.CarBrand) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO car_brands (id, name, updated_at)
				VALUES (?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					updated_at = excluded.updated_at
			`, r.ID, r.Name, ts(r.UpdatedAt))
			if err != nil {
				return &PersistError{Table: "car_brands", Err: err}
			}
		}
		return nil
	})
}

func (s *Store) UpsertCarModels(ctx context.Context, records []entity.CarModel) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO car_models (id, brand_id, name, updated_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					brand_id = excluded.brand_id,
					name = excluded.name,
					updated_at = excluded.updated_at
			`, r.ID, r.BrandID, r.Name, ts(r.UpdatedAt))
			if err != nil {
				return &PersistError{Table: "car_models", Err: err}
			}
		}
		return nil
	})
}

func (s *Store) UpsertRegions(ctx context.Context, records []entity.Region) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO regions (id, name, updated_at)
				VALUES (?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					updated_at = excluded.updated_at
			`, r.ID, r.Name, ts(r.UpdatedAt))
			if err != nil {
				return &PersistError{Table: "regions", Err: err}
			}
		}
		return nil
	})
}

func (s *Store) UpsertWarehouses(ctx context.Context, records []entity.Warehouse) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO warehouses (id, name, address, updated_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					address = excluded.address,
					updated_at = excluded.updated_at
			`, r.ID, r.Name, r.Address, ts(r.UpdatedAt))
			if err != nil {
				return &PersistError{Table: "warehouses", Err: err}
			}
		}
		return nil
	})
}

func (s *Store) UpsertSuppliers(ctx context.Context, records []entity.Supplier) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO suppliers (id, name, phone, email, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					phone = excluded.phone,
					email = excluded.email,
					updated_at = excluded.updated_at
			`, r.ID, r.Name, r.Phone, r.Email, ts(r.UpdatedAt))
			if err != nil {
				return &PersistError{Table: "suppliers", Err: err}
			}
		}
		return nil
	})
}

func (s *Store) UpsertProducts(ctx context.Context, records []entity.Product) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO products (id, name, barcode, category_id, unit_id, supplier_id, price, active, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					barcode = excluded.barcode,
					category_id = excluded.category_id,
					unit_id = excluded.unit_id,
					supplier_id = excluded.supplier_id,
					price = excluded.price,
					active = excluded.active,
					updated_at = excluded.updated_at
			`, r.ID, r.Name, r.Barcode, r.CategoryID, r.UnitID, r.SupplierID, r.Price, r.Active, ts(r.UpdatedAt))
			if err != nil {
				return &PersistError{Table: "products", Err: err}
			}
		}
		return nil
	})
}

func (s *Store) UpsertPriceLists(ctx context.Context, records []entity.PriceList) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO price_lists (id, product_id, customer_group, price, valid_from, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					product_id = excluded.product_id,
					customer_group = excluded.customer_group,
					price = excluded.price,
					valid_from = excluded.valid_from,
					updated_at = excluded.updated_at
			`, r.ID, r.ProductID, r.CustomerGroup, r.Price, ts(r.ValidFrom), ts(r.UpdatedAt))
			if err != nil {
				return &PersistError{Table: "price_lists", Err: err}
			}
		}
		return nil
	})
}

func (s *Store) UpsertStockLevels(ctx context.Context, records []entity.StockLevel) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO stock_levels (id, product_id, warehouse_id, quantity, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					product_id = excluded.product_id,
					warehouse_id = excluded.warehouse_id,
					quantity = excluded.quantity,
					updated_at = excluded.updated_at
			`, r.ID, r.ProductID, r.WarehouseID, r.Quantity, ts(r.UpdatedAt))
			if err != nil {
				return &PersistError{Table: "stock_levels", Err: err}
			}
		}
		return nil
	})
}

func (s *Store) UpsertCustomers(ctx context.Context, records []entity.Customer) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO customers (id, name, address, phone, region_id, customer_group, debt, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					address = excluded.address,
					phone = excluded.phone,
					region_id = excluded.region_id,
					customer_group = excluded.customer_group,
					debt = excluded.debt,
					updated_at = excluded.updated_at
			`, r.ID, r.Name, r.Address, r.Phone, r.RegionID, r.Group, r.Debt, ts(r.UpdatedAt))
			if err != nil {
				return &PersistError{Table: "customers", Err: err}
			}
		}
		return nil
	})
}

func (s *Store) UpsertCustomerCars(ctx context.Context, records []entity.CustomerCar) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO customer_cars (id, customer_id, model_id, plate, year, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					customer_id = excluded.customer_id,
					model_id = excluded.model_id,
					plate = excluded.plate,
					year = excluded.year,
					updated_at = excluded.updated_at
			`, r.ID, r.CustomerID, r.ModelID, r.Plate, r.Year, ts(r.UpdatedAt))
			if err != nil {
				return &PersistError{Table: "customer_cars", Err: err}
			}
		}
		return nil
	})
}

func (s *Store) UpsertSalesmen(ctx context.Context, records []entity.Salesman) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO salesmen (id, name, phone, role_id, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					phone = excluded.phone,
					role_id = excluded.role_id,
					updated_at = excluded.updated_at
			`, r.ID, r.Name, r.Phone, int(r.RoleID), ts(r.UpdatedAt))
			if err != nil {
				return &PersistError{Table: "salesmen", Err: err}
			}
		}
		return nil
	})
}

func (s *Store) UpsertRoutes(ctx context.Context, records []entity.Route) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO routes (id, salesman_id, name, weekday, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					salesman_id = excluded.salesman_id,
					name = excluded.name,
					weekday = excluded.weekday,
					updated_at = excluded.updated_at
			`, r.ID, r.SalesmanID, r.Name, r.Weekday, ts(r.UpdatedAt))
			if err != nil {
				return &PersistError{Table: "routes", Err: err}
			}
		}
		return nil
	})
}

func (s *Store) UpsertRouteStops(ctx context.Context, records []entity.RouteStop) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO route_stops (id, route_id, customer_id, position, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					route_id = excluded.route_id,
					customer_id = excluded.customer_id,
					position = excluded.position,
					updated_at = excluded.updated_at
			`, r.ID, r.RouteID, r.CustomerID, r.Position, ts(r.UpdatedAt))
			if err != nil {
				return &PersistError{Table: "route_stops", Err: err}
			}
		}
		return nil
	})
}

func (s *Store) UpsertVisits(ctx context.Context, records []entity.Visit) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO visits (id, route_id, customer_id, salesman_id, visited_at, note, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					route_id = excluded.route_id,
					customer_id = excluded.customer_id,
					salesman_id = excluded.salesman_id,
					visited_at = excluded.visited_at,
					note = excluded.note,
					updated_at = excluded.updated_at
			`, r.ID, r.RouteID, r.CustomerID, r.SalesmanID, ts(r.VisitedAt), r.Note, ts(r.UpdatedAt))
			if err != nil {
				return &PersistError{Table: "visits", Err: err}
			}
		}
		return nil
	})
}

// UpsertOrders persists orders with their nested lines and suggestions
// in dependency order (order, then lines, then suggestions) inside one
// transaction per page.
func (s *Store) UpsertOrders(ctx context.Context, records []entity.Order) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO orders (id, customer_id, salesman_id, status, total, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					customer_id = excluded.customer_id,
					salesman_id = excluded.salesman_id,
					status = excluded.status,
					total = excluded.total,
					created_at = excluded.created_at,
					updated_at = excluded.updated_at
			`, r.ID, r.CustomerID, r.SalesmanID, r.Status, r.Total, ts(r.CreatedAt), ts(r.UpdatedAt))
			if err != nil {
				return &PersistError{Table: "orders", Err: err}
			}

			for _, line := range r.Lines {
				if line.OrderID == 0 {
					line.OrderID = r.ID
				}
				_, err := tx.ExecContext(ctx, `
					INSERT INTO order_lines (id, order_id, product_id, quantity, price, updated_at)
					VALUES (?, ?, ?, ?, ?, ?)
					ON CONFLICT(id) DO UPDATE SET
						order_id = excluded.order_id,
						product_id = excluded.product_id,
						quantity = excluded.quantity,
						price = excluded.price,
						updated_at = excluded.updated_at
				`, line.ID, line.OrderID, line.ProductID, line.Quantity, line.Price, ts(line.UpdatedAt))
				if err != nil {
					return &PersistError{Table: "order_lines", Err: err}
				}

				for _, sug := range line.Suggestions {
					if sug.LineID == 0 {
						sug.LineID = line.ID
					}
					_, err := tx.ExecContext(ctx, `
						INSERT INTO line_suggestions (id, line_id, product_id, reason, updated_at)
						VALUES (?, ?, ?, ?, ?)
						ON CONFLICT(id) DO UPDATE SET
							line_id = excluded.line_id,
							product_id = excluded.product_id,
							reason = excluded.reason,
							updated_at = excluded.updated_at
					`, sug.ID, sug.LineID, sug.ProductID, sug.Reason, ts(sug.UpdatedAt))
					if err != nil {
						return &PersistError{Table: "line_suggestions", Err: err}
					}
				}
			}
		}
		return nil
	})
}

func (s *Store) UpsertPayments(ctx context.Context, records []entity.Payment) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO payments (id, order_id, customer_id, amount, method, paid_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					order_id = excluded.order_id,
					customer_id = excluded.customer_id,
					amount = excluded.amount,
					method = excluded.method,
					paid_at = excluded.paid_at,
					updated_at = excluded.updated_at
			`, r.ID, r.OrderID, r.CustomerID, r.Amount, r.Method, ts(r.PaidAt), ts(r.UpdatedAt))
			if err != nil {
				return &PersistError{Table: "payments", Err: err}
			}
		}
		return nil
	})
}

func (s *Store) UpsertDeliveries(ctx context.Context, records []entity.Delivery) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO deliveries (id, order_id, warehouse_id, status, scheduled_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					order_id = excluded.order_id,
					warehouse_id = excluded.warehouse_id,
					status = excluded.status,
					scheduled_at = excluded.scheduled_at,
					updated_at = excluded.updated_at
			`, r.ID, r.OrderID, r.WarehouseID, r.Status, ts(r.ScheduledAt), ts(r.UpdatedAt))
			if err != nil {
				return &PersistError{Table: "deliveries", Err: err}
			}
		}
		return nil
	})
}

// ProductByID returns one product, or nil if absent.
func (s *Store) ProductByID(ctx context.Context, id int64) (*entity.Product, error) {
	var p entity.Product
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, barcode, category_id, unit_id, supplier_id, price, active, updated_at
		FROM products WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.Barcode, &p.CategoryID, &p.UnitID, &p.SupplierID, &p.Price, &p.Active, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

// OrderByID returns one order with its lines and suggestions, or nil.
func (s *Store) OrderByID(ctx context.Context, id int64) (*entity.Order, error) {
	var o entity.Order
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, salesman_id, status, total, created_at, updated_at
		FROM orders WHERE id = ?
	`, id).Scan(&o.ID, &o.CustomerID, &o.SalesmanID, &o.Status, &o.Total, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	o.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, price, updated_at
		FROM order_lines WHERE order_id = ? ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line entity.OrderLine
		var lineUpdated string
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.Quantity, &line.Price, &lineUpdated); err != nil {
			return nil, err
		}
		line.UpdatedAt, _ = time.Parse(time.RFC3339, lineUpdated)

		sugRows, err := s.db.QueryContext(ctx, `
			SELECT id, line_id, product_id, reason, updated_at
			FROM line_suggestions WHERE line_id = ? ORDER BY id
		`, line.ID)
		if err != nil {
			return nil, err
		}
		for sugRows.Next() {
			var sug entity.LineSuggestion
			var sugUpdated string
			if err := sugRows.Scan(&sug.ID, &sug.LineID, &sug.ProductID, &sug.Reason, &sugUpdated); err != nil {
				sugRows.Close()
				return nil, err
			}
			sug.UpdatedAt, _ = time.Parse(time.RFC3339, sugUpdated)
			line.Suggestions = append(line.Suggestions, sug)
		}
		sugRows.Close()

		o.Lines = append(o.Lines, line)
	}
	return &o, rows.Err()
}
