package decision

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"daily-equity-trader/internal/errors"
	"daily-equity-trader/internal/models"
)

// OrdersHeader is the column layout of orders.csv.
const OrdersHeader = "order_id,ticker,side,order_type,quantity,limit_price_gbp,time_in_force,stop_price_gbp,reason"

// orderRow is one raw orders.csv record. Every column is read as text so a
// bad cell drops its row instead of failing the file.
type orderRow struct {
	OrderID     string `csv:"order_id"`
	Ticker      string `csv:"ticker"`
	Side        string `csv:"side"`
	OrderType   string `csv:"order_type"`
	Quantity    string `csv:"quantity"`
	LimitPrice  string `csv:"limit_price_gbp"`
	TimeInForce string `csv:"time_in_force"`
	StopPrice   string `csv:"stop_price_gbp"`
	Reason      string `csv:"reason"`
}

// ParseOrdersCSV parses an orders.csv stream. Records without a ticker or
// side, with an unknown side, or without a positive quantity are dropped.
// Empty input yields no orders.
func ParseOrdersCSV(r io.Reader) ([]models.Order, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows []orderRow
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("parsing orders: %w", err)
	}

	orders := make([]models.Order, 0, len(rows))
	for _, row := range rows {
		if o, ok := row.toOrder(); ok {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

// ReadOrdersFile parses an orders.csv file. A missing file yields no orders.
func ReadOrdersFile(path string) ([]models.Order, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return ParseOrdersCSV(f)
}

func (row orderRow) toOrder() (models.Order, bool) {
	ticker := strings.TrimSpace(row.Ticker)
	if ticker == "" {
		return models.Order{}, false
	}
	side, ok := models.ParseOrderSide(row.Side)
	if !ok {
		return models.Order{}, false
	}
	qty, err := decimal.NewFromString(strings.TrimSpace(row.Quantity))
	if err != nil || !qty.IsPositive() {
		return models.Order{}, false
	}

	return models.Order{
		ID:          strings.TrimSpace(row.OrderID),
		Ticker:      ticker,
		Side:        side,
		Type:        strings.TrimSpace(row.OrderType),
		Quantity:    qty,
		LimitPrice:  optionalDecimal(row.LimitPrice),
		StopPrice:   optionalDecimal(row.StopPrice),
		TimeInForce: strings.TrimSpace(row.TimeInForce),
		Reason:      strings.TrimSpace(row.Reason),
	}, true
}

func optionalDecimal(s string) decimal.NullDecimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// WriteOrdersCSV writes orders in the orders.csv layout. With no orders only
// the header is written.
func WriteOrdersCSV(w io.Writer, orders []models.Order) error {
	rows := make([]orderRow, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, orderRow{
			OrderID:     o.ID,
			Ticker:      o.Ticker,
			Side:        string(o.Side),
			OrderType:   o.Type,
			Quantity:    o.Quantity.String(),
			LimitPrice:  nullString(o.LimitPrice),
			TimeInForce: o.TimeInForce,
			StopPrice:   nullString(o.StopPrice),
			Reason:      o.Reason,
		})
	}
	return gocsv.Marshal(&rows, w)
}

// WriteOrdersFile writes orders to path, creating parent directories.
func WriteOrdersFile(path string, orders []models.Order) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteOrdersCSV(f, orders); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}
