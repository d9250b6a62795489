package matcher

import (
	"bank-transfer-reconciler/internal/models"
)

// RecordIndex looks billing records up by transfer code
type RecordIndex struct {
	byCode map[string]*models.BillingRecord
	// AllRecords holds all indexed records
	AllRecords []*models.BillingRecord
}

// NewRecordIndex creates an index over records. Codes are compared in their
// normalized, upper-case form. If two records share a code the first wins;
// the store's unique index prevents that in practice.
func NewRecordIndex(records []*models.BillingRecord) *RecordIndex {
	index := &RecordIndex{
		byCode:     make(map[string]*models.BillingRecord, len(records)),
		AllRecords: records,
	}
	for _, r := range records {
		if r == nil {
			continue
		}
		code := models.NormalizeCode(r.Code)
		if _, exists := index.byCode[code]; !exists {
			index.byCode[code] = r
		}
	}
	return index
}

// Lookup returns the record carrying code
func (ri *RecordIndex) Lookup(code string) (*models.BillingRecord, bool) {
	r, ok := ri.byCode[models.NormalizeCode(code)]
	return r, ok
}

// Replace swaps the indexed record carrying the same code for record
func (ri *RecordIndex) Replace(record *models.BillingRecord) {
	if record == nil {
		return
	}
	code := models.NormalizeCode(record.Code)
	if _, ok := ri.byCode[code]; !ok {
		ri.AllRecords = append(ri.AllRecords, record)
	}
	ri.byCode[code] = record
}

// Size returns the number of distinct codes indexed
func (ri *RecordIndex) Size() int {
	return len(ri.byCode)
}

// ReferenceSet holds the bank references already recorded per billing record
type ReferenceSet struct {
	refs map[uint]map[string]struct{}
}

// NewReferenceSet creates a reference set from existing payments
func NewReferenceSet(payments []*models.Payment) *ReferenceSet {
	rs := &ReferenceSet{refs: make(map[uint]map[string]struct{})}
	for _, p := range payments {
		if p != nil {
			rs.Add(p.BillingRecordID, p.BankReference)
		}
	}
	return rs
}

// Add records reference for the billing record
func (rs *ReferenceSet) Add(recordID uint, reference string) {
	set, ok := rs.refs[recordID]
	if !ok {
		set = make(map[string]struct{})
		rs.refs[recordID] = set
	}
	set[reference] = struct{}{}
}

// Contains reports whether reference is already recorded for the record
func (rs *ReferenceSet) Contains(recordID uint, reference string) bool {
	_, ok := rs.refs[recordID][reference]
	return ok
}

// Len returns the number of recorded references
func (rs *ReferenceSet) Len() int {
	n := 0
	for _, set := range rs.refs {
		n += len(set)
	}
	return n
}
