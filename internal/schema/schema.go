package schema

import (
	"fmt"
	"sort"

	"github.com/MAKaminski/alpha-kite/internal/model"
)

// Built-in table names.
const (
	TableEquity                = "equity_data"
	TableOptions               = "options_data"
	TableOptionsMinuteAggs     = "options_minute_aggs"
	TableOptionsMinuteAggsNorm = "options_minute_aggs_normalized"
	DefaultPrimaryKey          = model.FieldID
)

// TableDescriptor describes one logical table.
type TableDescriptor struct {
	Name           string
	RequiredFields []string // Declaration order is preserved in validation errors
	PrimaryKey     string   // Defaults to "id"
}

func (d TableDescriptor) clone() TableDescriptor {
	d.RequiredFields = append([]string(nil), d.RequiredFields...)
	return d
}

// UnknownTableError is returned for lookups of unregistered tables.
type UnknownTableError struct {
	Table string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("unknown table %q", e.Table)
}

// Registry maps table names to descriptors.
type Registry struct {
	tables map[string]TableDescriptor
}

// NewRegistry builds a registry from the given descriptors. Duplicate or
// unnamed tables are rejected.
func NewRegistry(descriptors ...TableDescriptor) (*Registry, error) {
	r := &Registry{tables: make(map[string]TableDescriptor, len(descriptors))}
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("table descriptor has no name")
		}
		if _, ok := r.tables[d.Name]; ok {
			return nil, fmt.Errorf("table %q registered twice", d.Name)
		}
		if d.PrimaryKey == "" {
			d.PrimaryKey = DefaultPrimaryKey
		}
		r.tables[d.Name] = d.clone()
	}
	return r, nil
}

// Default returns a registry holding the built-in market-data tables.
func Default() *Registry {
	r, err := NewRegistry(DefaultTables()...)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultTables returns the built-in table descriptors.
func DefaultTables() []TableDescriptor {
	return []TableDescriptor{
		{
			Name:           TableEquity,
			RequiredFields: []string{model.FieldSymbol, model.FieldPrice, model.FieldTimestamp},
		},
		{
			Name: TableOptions,
			RequiredFields: []string{
				model.FieldSymbol, model.FieldStrike, model.FieldType,
				model.FieldExpiry, model.FieldTimestamp,
			},
		},
		{
			Name:           TableOptionsMinuteAggs,
			RequiredFields: []string{model.FieldTimestamp, model.FieldData},
		},
		{
			Name:           TableOptionsMinuteAggsNorm,
			RequiredFields: []string{model.FieldTimestamp, model.FieldData},
		},
	}
}

// Descriptor returns a copy of the table's descriptor.
func (r *Registry) Descriptor(table string) (TableDescriptor, error) {
	d, ok := r.tables[table]
	if !ok {
		return TableDescriptor{}, &UnknownTableError{Table: table}
	}
	return d.clone(), nil
}

// RequiredFields returns the fields a record must carry to be written to table.
func (r *Registry) RequiredFields(table string) ([]string, error) {
	d, err := r.Descriptor(table)
	if err != nil {
		return nil, err
	}
	return d.RequiredFields, nil
}

// PrimaryKey returns the primary-key field of table.
func (r *Registry) PrimaryKey(table string) (string, error) {
	d, ok := r.tables[table]
	if !ok {
		return "", &UnknownTableError{Table: table}
	}
	return d.PrimaryKey, nil
}

// Has reports whether table is registered.
func (r *Registry) Has(table string) bool {
	_, ok := r.tables[table]
	return ok
}

// Tables returns the registered table names in sorted order.
func (r *Registry) Tables() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
