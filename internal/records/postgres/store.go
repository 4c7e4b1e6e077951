// Package postgres implements records.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/servicechange/internal/platform/db"
	"github.com/odyssey-erp/servicechange/internal/records"
)

// Schema creates every table the store reads and writes.
//
//go:embed schema.sql
var Schema string

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

var tables = map[records.RecordType]string{
	records.TypeCustomer:      "customers",
	records.TypeCommReg:       "commencement_registers",
	records.TypeService:       "services",
	records.TypeServiceChange: "service_changes",
	records.TypeSalesRecord:   "sales_records",
	records.TypePartner:       "partners",
}

// Store is a pgx backed records.Store.
type Store struct {
	db   dbtx
	pool db.TxBeginner
}

// New constructs a Store on top of pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, pool: pool}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

const commRegColumns = "t.id, t.customer_id, t.partner_id, t.sales_record_id, t.commencement_date, t.trial_expiry_date, t.billing_start_date, t.signup_date, t.in_outbound, t.status"

const serviceColumns = "t.id, t.customer_id, t.comm_reg_id, t.service_type_id, t.name, t.description, t.price, t.active, t.frequency, t.category"

const serviceChangeColumns = "t.id, t.service_id, t.comm_reg_id, t.customer_id, t.service_type_id, t.status, t.change_type, t.old_price, t.new_price, t.old_frequency, t.new_frequency, t.effective_date, t.cessation_date, t.cancellation_date, t.trial_end_date, t.billing_start_date, t.inactive, t.created_by"

func scanCommReg(row pgx.Row) (records.CommReg, error) {
	var c records.CommReg
	var commencement *time.Time
	var status int64
	err := row.Scan(&c.ID, &c.CustomerID, &c.PartnerID, &c.SalesRecordID, &commencement,
		&c.TrialExpiryDate, &c.BillingStartDate, &c.SignupDate, &c.InOutbound, &status)
	if err != nil {
		return c, err
	}
	if commencement != nil {
		c.CommencementDate = *commencement
	}
	c.Status = records.CommRegStatus(status)
	return c, nil
}

func scanService(row pgx.Row) (records.Service, error) {
	var v records.Service
	var price, frequency string
	err := row.Scan(&v.ID, &v.CustomerID, &v.CommRegID, &v.ServiceTypeID, &v.Name, &v.Description,
		&price, &v.Active, &frequency, &v.Category)
	if err != nil {
		return v, err
	}
	if v.Price, err = decimal.NewFromString(price); err != nil {
		return v, errors.Wrapf(err, "service %d price", v.ID)
	}
	if v.Frequency, err = records.ParseFrequency(frequency); err != nil {
		return v, errors.Wrapf(err, "service %d frequency", v.ID)
	}
	return v, nil
}

func scanServiceChange(row pgx.Row) (records.ServiceChange, error) {
	var v records.ServiceChange
	var status int64
	var oldPrice string
	var newPrice *string
	var oldFreq, newFreq string
	var effective *time.Time
	err := row.Scan(&v.ID, &v.ServiceID, &v.CommRegID, &v.CustomerID, &v.ServiceTypeID, &status,
		&v.ChangeType, &oldPrice, &newPrice, &oldFreq, &newFreq, &effective, &v.CessationDate,
		&v.CancellationDate, &v.TrialEndDate, &v.BillingStartDate, &v.Inactive, &v.CreatedBy)
	if err != nil {
		return v, err
	}
	v.Status = records.ServiceChangeStatus(status)
	if effective != nil {
		v.EffectiveDate = *effective
	}
	if v.OldPrice, err = decimal.NewFromString(oldPrice); err != nil {
		return v, errors.Wrapf(err, "service change %d old price", v.ID)
	}
	if newPrice != nil {
		d, err := decimal.NewFromString(*newPrice)
		if err != nil {
			return v, errors.Wrapf(err, "service change %d new price", v.ID)
		}
		v.NewPrice = decimal.NewNullDecimal(d)
	}
	if v.OldFrequency, err = records.ParseFrequency(oldFreq); err != nil {
		return v, errors.Wrapf(err, "service change %d old frequency", v.ID)
	}
	if v.NewFrequency, err = records.ParseFrequency(newFreq); err != nil {
		return v, errors.Wrapf(err, "service change %d new frequency", v.ID)
	}
	return v, nil
}

func queryRows[T any](ctx context.Context, q dbtx, rt records.RecordType, columns string, filter records.Filter, scan func(pgx.Row) (T, error)) ([]T, error) {
	where, args, err := compileFilter(rt, filter, 1)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s t WHERE %s ORDER BY t.id", columns, tables[rt], where)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", rt)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, errors.Wrapf(err, "scan %s", rt)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func loadRow[T any](ctx context.Context, q dbtx, rt records.RecordType, columns string, id int64, scan func(pgx.Row) (T, error)) (*T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s t WHERE t.id = $1", columns, tables[rt])
	item, err := scan(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(records.ErrNotFound, "%s %d", rt, id)
		}
		return nil, errors.Wrapf(err, "load %s %d", rt, id)
	}
	return &item, nil
}

func (s *Store) QueryCommRegs(ctx context.Context, filter records.Filter) ([]records.CommReg, error) {
	return queryRows(ctx, s.db, records.TypeCommReg, commRegColumns, filter, scanCommReg)
}

func (s *Store) QueryServices(ctx context.Context, filter records.Filter) ([]records.Service, error) {
	return queryRows(ctx, s.db, records.TypeService, serviceColumns, filter, scanService)
}

func (s *Store) QueryServiceChanges(ctx context.Context, filter records.Filter) ([]records.ServiceChange, error) {
	return queryRows(ctx, s.db, records.TypeServiceChange, serviceChangeColumns, filter, scanServiceChange)
}

func (s *Store) LoadCustomer(ctx context.Context, id int64) (*records.Customer, error) {
	var c records.Customer
	var status int64
	var rate, extra, reduced string
	err := s.db.QueryRow(ctx, `
		SELECT id, company_name, email, partner_id, status, monthly_service_rate,
		       monthly_extra_service_rate, monthly_reduced_service_rate, pricing_notes
		FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.CompanyName, &c.Email, &c.PartnerID, &status, &rate, &extra, &reduced, &c.PricingNotes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(records.ErrNotFound, "%s %d", records.TypeCustomer, id)
		}
		return nil, errors.Wrapf(err, "load customer %d", id)
	}
	c.Status = records.CustomerStatus(status)
	c.MonthlyServiceRate = decimal.RequireFromString(rate)
	c.MonthlyExtraServiceRate = decimal.RequireFromString(extra)
	c.MonthlyReducedServiceRate = decimal.RequireFromString(reduced)

	rows, err := s.db.Query(ctx, `
		SELECT item_id, price_level, rate FROM customer_billing_lines
		WHERE customer_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load billing lines of customer %d", id)
	}
	defer rows.Close()
	for rows.Next() {
		var line records.BillingLine
		var lineRate string
		if err := rows.Scan(&line.ItemID, &line.PriceLevel, &lineRate); err != nil {
			return nil, errors.Wrapf(err, "scan billing line of customer %d", id)
		}
		if line.Rate, err = decimal.NewFromString(lineRate); err != nil {
			return nil, errors.Wrapf(err, "billing line rate of customer %d", id)
		}
		c.AddLine(line)
	}
	return &c, rows.Err()
}

func (s *Store) LoadCommReg(ctx context.Context, id int64) (*records.CommReg, error) {
	return loadRow(ctx, s.db, records.TypeCommReg, commRegColumns, id, scanCommReg)
}

func (s *Store) LoadService(ctx context.Context, id int64) (*records.Service, error) {
	return loadRow(ctx, s.db, records.TypeService, serviceColumns, id, scanService)
}

func (s *Store) LoadServiceChange(ctx context.Context, id int64) (*records.ServiceChange, error) {
	return loadRow(ctx, s.db, records.TypeServiceChange, serviceChangeColumns, id, scanServiceChange)
}

func (s *Store) LoadSalesRecord(ctx context.Context, id int64) (*records.SalesRecord, error) {
	return loadRow(ctx, s.db, records.TypeSalesRecord, "t.id, t.customer_id, t.completed, t.campaign_id, t.sales_rep_id", id,
		func(row pgx.Row) (records.SalesRecord, error) {
			var v records.SalesRecord
			err := row.Scan(&v.ID, &v.CustomerID, &v.Completed, &v.CampaignID, &v.SalesRepID)
			return v, err
		})
}

func (s *Store) LoadPartner(ctx context.Context, id int64) (*records.Partner, error) {
	return loadRow(ctx, s.db, records.TypePartner, "t.id, t.name, t.email", id,
		func(row pgx.Row) (records.Partner, error) {
			var v records.Partner
			err := row.Scan(&v.ID, &v.Name, &v.Email)
			return v, err
		})
}

// SaveCustomer rewrites the customer row and its billing lines in one transaction.
func (s *Store) SaveCustomer(ctx context.Context, c *records.Customer) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE customers SET company_name = $1, email = $2, partner_id = $3, status = $4,
			       monthly_service_rate = $5, monthly_extra_service_rate = $6,
			       monthly_reduced_service_rate = $7, pricing_notes = $8
			WHERE id = $9`,
			c.CompanyName, c.Email, c.PartnerID, c.Status.Code(), c.MonthlyServiceRate.String(),
			c.MonthlyExtraServiceRate.String(), c.MonthlyReducedServiceRate.String(), c.PricingNotes, c.ID)
		if err != nil {
			return errors.Wrapf(err, "update customer %d", c.ID)
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(records.ErrNotFound, "%s %d", records.TypeCustomer, c.ID)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM customer_billing_lines WHERE customer_id = $1", c.ID); err != nil {
			return errors.Wrapf(err, "clear billing lines of customer %d", c.ID)
		}
		for i, line := range c.BillingLines {
			_, err := tx.Exec(ctx, `
				INSERT INTO customer_billing_lines (customer_id, line_no, item_id, price_level, rate)
				VALUES ($1, $2, $3, $4, $5)`,
				c.ID, i, line.ItemID, line.PriceLevel, line.Rate.String())
			if err != nil {
				return errors.Wrapf(err, "insert billing line %d of customer %d", i, c.ID)
			}
		}
		return nil
	})
}

func commRegValues(c *records.CommReg) records.Values {
	return records.Values{
		records.FieldCustomer:         c.CustomerID,
		records.FieldPartner:          c.PartnerID,
		records.FieldSalesRecord:      c.SalesRecordID,
		records.FieldCommencementDate: c.CommencementDate,
		records.FieldTrialExpiry:      c.TrialExpiryDate,
		records.FieldBillingStart:     c.BillingStartDate,
		records.FieldSignupDate:       c.SignupDate,
		records.FieldInOutbound:       c.InOutbound,
		records.FieldStatus:           c.Status,
	}
}

func serviceValues(v *records.Service) records.Values {
	return records.Values{
		records.FieldCustomer:    v.CustomerID,
		records.FieldCommReg:     v.CommRegID,
		records.FieldServiceType: v.ServiceTypeID,
		records.FieldName:        v.Name,
		records.FieldDescription: v.Description,
		records.FieldPrice:       v.Price,
		records.FieldActive:      v.Active,
		records.FieldFrequency:   v.Frequency,
		records.FieldCategory:    v.Category,
	}
}

func serviceChangeValues(v *records.ServiceChange) records.Values {
	return records.Values{
		records.FieldService:       v.ServiceID,
		records.FieldCommReg:       v.CommRegID,
		records.FieldCustomer:      v.CustomerID,
		records.FieldServiceType:   v.ServiceTypeID,
		records.FieldStatus:        v.Status,
		records.FieldChangeType:    v.ChangeType,
		records.FieldOldPrice:      v.OldPrice,
		records.FieldNewPrice:      v.NewPrice,
		records.FieldOldFrequency:  v.OldFrequency,
		records.FieldNewFrequency:  v.NewFrequency,
		records.FieldEffectiveDate: v.EffectiveDate,
		records.FieldCessationDate: v.CessationDate,
		records.FieldCancelledDate: v.CancellationDate,
		records.FieldTrialEndDate:  v.TrialEndDate,
		records.FieldBillingStart:  v.BillingStartDate,
		records.FieldInactive:      v.Inactive,
		records.FieldCreatedBy:     v.CreatedBy,
	}
}

func (s *Store) SaveCommReg(ctx context.Context, c *records.CommReg) (int64, error) {
	return s.save(ctx, records.TypeCommReg, &c.ID, commRegValues(c))
}

func (s *Store) SaveService(ctx context.Context, v *records.Service) (int64, error) {
	return s.save(ctx, records.TypeService, &v.ID, serviceValues(v))
}

func (s *Store) SaveServiceChange(ctx context.Context, v *records.ServiceChange) (int64, error) {
	return s.save(ctx, records.TypeServiceChange, &v.ID, serviceChangeValues(v))
}

func (s *Store) save(ctx context.Context, rt records.RecordType, id *int64, values records.Values) (int64, error) {
	if *id != 0 {
		if err := s.UpdateFields(ctx, rt, *id, values); err != nil {
			return 0, err
		}
		return *id, nil
	}
	columns, args := assignments(values)
	holders := make([]string, len(columns))
	for i := range columns {
		holders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		tables[rt], strings.Join(columns, ", "), strings.Join(holders, ", "))
	if err := s.db.QueryRow(ctx, query, args...).Scan(id); err != nil {
		return 0, errors.Wrapf(err, "insert %s", rt)
	}
	return *id, nil
}

// assignments orders columns by name so generated statements are stable.
func assignments(values records.Values) ([]string, []any) {
	columns := make([]string, 0, len(values))
	for f := range values {
		columns = append(columns, string(f))
	}
	sort.Strings(columns)
	args := make([]any, 0, len(columns))
	for _, col := range columns {
		args = append(args, sqlValue(values[records.Field(col)]))
	}
	return columns, args
}

// UpdateFields writes a partial update. Every value is checked against the field table
// of rt before any SQL runs.
func (s *Store) UpdateFields(ctx context.Context, rt records.RecordType, id int64, values records.Values) error {
	if len(values) == 0 {
		return nil
	}
	table, ok := tables[rt]
	if !ok {
		return errors.Newf("record type %s is not updatable", rt)
	}
	normalized := make(records.Values, len(values))
	for f, v := range values {
		if f == records.FieldID {
			return errors.Wrapf(records.ErrReadOnlyField, "%s", f)
		}
		nv, err := records.Normalize(rt, f, v)
		if err != nil {
			return err
		}
		normalized[f] = nv
	}

	columns, args := assignments(normalized)
	sets := make([]string, len(columns))
	for i, col := range columns {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(sets, ", "), len(args))
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "update %s %d", rt, id)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(records.ErrNotFound, "%s %d", rt, id)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, rt records.RecordType, id int64) error {
	switch rt {
	case records.TypeCommReg, records.TypeService, records.TypeServiceChange:
	default:
		return errors.Newf("record type %s cannot be deleted", rt)
	}
	tag, err := s.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", tables[rt]), id)
	if err != nil {
		return errors.Wrapf(err, "delete %s %d", rt, id)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(records.ErrNotFound, "%s %d", rt, id)
	}
	return nil
}

// ListOptions reads a lookup table. Identifiers are quoted, never interpolated raw.
func (s *Store) ListOptions(ctx context.Context, list, valueColumn, textColumn string) ([]records.Option, error) {
	query := fmt.Sprintf("SELECT %s::text, %s::text FROM %s ORDER BY 2",
		pgx.Identifier{valueColumn}.Sanitize(), pgx.Identifier{textColumn}.Sanitize(), pgx.Identifier{list}.Sanitize())
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", list)
	}
	defer rows.Close()
	out := make([]records.Option, 0)
	for rows.Next() {
		var o records.Option
		if err := rows.Scan(&o.Value, &o.Text); err != nil {
			return nil, errors.Wrapf(err, "scan %s", list)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) ListServiceTypes(ctx context.Context, category int64) ([]records.ServiceType, error) {
	rows, err := s.db.Query(ctx, "SELECT id, name, category FROM service_types WHERE category = $1 ORDER BY name", category)
	if err != nil {
		return nil, errors.Wrap(err, "list service types")
	}
	defer rows.Close()
	out := make([]records.ServiceType, 0)
	for rows.Next() {
		var t records.ServiceType
		if err := rows.Scan(&t.ID, &t.Name, &t.Category); err != nil {
			return nil, errors.Wrap(err, "scan service type")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

var _ records.Store = (*Store)(nil)
