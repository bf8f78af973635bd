package matcher

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"gst-reconciliation-service/internal/models"
	gsterrors "gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"
)

// Bucket classifies one reconciliation pair. Every input record lands in
// exactly one bucket; the six buckets partition the input.
type Bucket string

const (
	// BucketMatched holds pairs whose totals agree within the tolerance.
	BucketMatched Bucket = "MATCHED"

	// BucketMismatchProbable holds pairs found under the same join key whose
	// totals differ by more than the tolerance.
	BucketMismatchProbable Bucket = "MISMATCH_PROBABLE"

	// BucketInvoiceMismatch holds pairs joined by the fuzzy pass: same
	// counterparty, same invoice date, amounts in tolerance, but the invoice
	// numbers differ between the two sources.
	BucketInvoiceMismatch Bucket = "INVOICE_MISMATCH"

	// BucketOnlyInA holds groups present only in the first source.
	BucketOnlyInA Bucket = "ONLY_IN_SOURCE_A"

	// BucketOnlyInB holds groups present only in the second source.
	BucketOnlyInB Bucket = "ONLY_IN_SOURCE_B"

	// BucketOutOfPeriod holds records dated outside the selected period,
	// regardless of how well they would otherwise match.
	BucketOutOfPeriod Bucket = "OUT_OF_PERIOD"
)

// Buckets returns all buckets in presentation order.
func Buckets() []Bucket {
	return []Bucket{
		BucketMatched,
		BucketMismatchProbable,
		BucketInvoiceMismatch,
		BucketOnlyInA,
		BucketOnlyInB,
		BucketOutOfPeriod,
	}
}

// JoinKey identifies a group of records belonging to one invoice. An absent
// GSTIN is part of the identity: a record without a GSTIN never joins a
// record that has one, even when the invoice numbers agree.
type JoinKey struct {
	GSTIN    string
	HasGSTIN bool
	Invoice  string
}

// KeyFor derives the join key for a transaction. The invoice number is
// normalized so that cosmetic differences ("INV-001" vs "inv 001") do not
// break the join.
func KeyFor(t *models.Transaction) JoinKey {
	k := JoinKey{Invoice: models.NormalizeInvoice(t.InvoiceNumber)}
	if t.HasGSTIN {
		k.GSTIN = t.CounterpartyGSTIN
		k.HasGSTIN = true
	}
	return k
}

// String renders the key for logs and report rows.
func (k JoinKey) String() string {
	if !k.HasGSTIN {
		return "-/" + k.Invoice
	}
	return k.GSTIN + "/" + k.Invoice
}

// less orders keys for deterministic output. Keys with a GSTIN sort before
// keys without one.
func (k JoinKey) less(o JoinKey) bool {
	if k.HasGSTIN != o.HasGSTIN {
		return k.HasGSTIN
	}
	if k.GSTIN != o.GSTIN {
		return k.GSTIN < o.GSTIN
	}
	return k.Invoice < o.Invoice
}

// Pair is one reconciliation outcome: the records grouped under a join key
// on each side, their aggregated totals rounded to two decimals, and the
// bucket the outcome landed in. Either side may be empty for the ONLY_IN_*
// and OUT_OF_PERIOD buckets.
type Pair struct {
	Key    JoinKey
	Bucket Bucket

	// KeyB is set only for INVOICE_MISMATCH pairs, where the second source
	// matched under a different invoice number than Key.
	KeyB *JoinKey

	A []*models.Transaction
	B []*models.Transaction

	TotalA decimal.Decimal
	TotalB decimal.Decimal

	// Diff is TotalA minus TotalB.
	Diff decimal.Decimal
}

// Result is the full outcome of one matching run.
type Result struct {
	Pairs  []*Pair
	Counts map[Bucket]int
}

// PairsIn returns the pairs classified into one bucket, in output order.
func (r *Result) PairsIn(b Bucket) []*Pair {
	var out []*Pair
	for _, p := range r.Pairs {
		if p.Bucket == b {
			out = append(out, p)
		}
	}
	return out
}

// RecordCounts returns how many input records from each source ended up in
// the result across all buckets.
func (r *Result) RecordCounts() (a int, b int) {
	for _, p := range r.Pairs {
		a += len(p.A)
		b += len(p.B)
	}
	return a, b
}

// group is one side of a potential pair: all records sharing a join key,
// with their summed total.
type group struct {
	key     JoinKey
	records []*models.Transaction
	total   decimal.Decimal
}

func groupByKey(records []*models.Transaction) map[JoinKey]*group {
	groups := make(map[JoinKey]*group)
	for _, t := range records {
		key := KeyFor(t)
		g, ok := groups[key]
		if !ok {
			g = &group{key: key}
			groups[key] = g
		}
		g.records = append(g.records, t)
		g.total = g.total.Add(t.TotalValue())
	}
	for _, g := range groups {
		g.total = models.Round2(g.total)
	}
	return groups
}

func sortedKeys(groups map[JoinKey]*group) []JoinKey {
	keys := make([]JoinKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys
}

// Match reconciles two record sets and partitions every record into one of
// the six buckets. The output order is fully determined by the input
// contents, so repeated runs over the same data produce identical results.
func Match(sourceA, sourceB []*models.Transaction, cfg *Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sourceA == nil || sourceB == nil {
		return nil, gsterrors.ValidationError(
			gsterrors.CodeMissingField, "records", nil, nil)
	}

	log := logger.WithComponent("matcher")

	// Records dated outside the selected period are set aside up front.
	// They reappear at the end as OUT_OF_PERIOD pairs, so a stray entry
	// from another year can never absorb an in-period counterpart.
	inA, outA := splitByPeriod(sourceA, cfg)
	inB, outB := splitByPeriod(sourceB, cfg)

	groupsA := groupByKey(inA)
	groupsB := groupByKey(inB)

	var pairs []*Pair

	// Exact join on (GSTIN, invoice). Duplicate rows on either side were
	// already summed by groupByKey, so a single portal entry reconciles
	// against several book entries for the same invoice.
	consumedB := make(map[JoinKey]bool)
	for _, key := range sortedKeys(groupsA) {
		ga := groupsA[key]
		gb, ok := groupsB[key]
		if !ok {
			continue
		}
		consumedB[key] = true

		p := &Pair{
			Key:    key,
			A:      ga.records,
			B:      gb.records,
			TotalA: ga.total,
			TotalB: gb.total,
			Diff:   ga.total.Sub(gb.total),
		}
		if p.Diff.Abs().LessThanOrEqual(cfg.Tolerance) {
			p.Bucket = BucketMatched
		} else {
			p.Bucket = BucketMismatchProbable
		}
		pairs = append(pairs, p)
		delete(groupsA, key)
	}
	for key := range consumedB {
		delete(groupsB, key)
	}

	// Fuzzy pass over the residue: a likely typo in the invoice number
	// shows up as the same counterparty billing the same amount on the
	// same date under a different invoice.
	pairs = append(pairs, fuzzyPass(groupsA, groupsB, cfg.Tolerance)...)

	for _, key := range sortedKeys(groupsA) {
		g := groupsA[key]
		pairs = append(pairs, &Pair{
			Key:    key,
			Bucket: BucketOnlyInA,
			A:      g.records,
			TotalA: g.total,
			Diff:   g.total,
		})
	}
	for _, key := range sortedKeys(groupsB) {
		g := groupsB[key]
		pairs = append(pairs, &Pair{
			Key:    key,
			Bucket: BucketOnlyInB,
			B:      g.records,
			TotalB: g.total,
			Diff:   g.total.Neg(),
		})
	}

	pairs = append(pairs, outOfPeriodPairs(outA, outB)...)

	result := &Result{Pairs: orderPairs(pairs), Counts: make(map[Bucket]int)}
	for _, b := range Buckets() {
		result.Counts[b] = 0
	}
	for _, p := range result.Pairs {
		result.Counts[p.Bucket]++
	}

	gotA, gotB := result.RecordCounts()
	if gotA != len(sourceA) || gotB != len(sourceB) {
		return nil, gsterrors.InternalError(gsterrors.CodeUnexpectedError,
			"matching", errors.Errorf(
				"record conservation violated: %d/%d in, %d/%d out",
				len(sourceA), len(sourceB), gotA, gotB))
	}

	log.WithFields(logger.Fields{
		"records_a": len(sourceA),
		"records_b": len(sourceB),
		"pairs":     len(result.Pairs),
		"matched":   result.Counts[BucketMatched],
	}).Debug("matching complete")

	return result, nil
}

func splitByPeriod(records []*models.Transaction, cfg *Config) (in, out []*models.Transaction) {
	for _, t := range records {
		if cfg.Period.Contains(t.InvoiceDate) {
			in = append(in, t)
		} else {
			out = append(out, t)
		}
	}
	return in, out
}

// fuzzyPass pairs unconsumed groups whose keys differ only in invoice
// number. Both sides must carry the same GSTIN, share an invoice date, and
// agree on the total within the tolerance. Each group joins at most one
// partner; candidates are scanned in key order so the choice is stable.
func fuzzyPass(groupsA, groupsB map[JoinKey]*group, tolerance decimal.Decimal) []*Pair {
	var pairs []*Pair
	keysB := sortedKeys(groupsB)

	for _, keyA := range sortedKeys(groupsA) {
		if !keyA.HasGSTIN {
			continue
		}
		ga := groupsA[keyA]

		for _, keyB := range keysB {
			gb, ok := groupsB[keyB]
			if !ok || !keyB.HasGSTIN || keyB.GSTIN != keyA.GSTIN || keyB.Invoice == keyA.Invoice {
				continue
			}
			if !sharesDate(ga.records, gb.records) {
				continue
			}
			if ga.total.Sub(gb.total).Abs().GreaterThan(tolerance) {
				continue
			}

			kb := keyB
			pairs = append(pairs, &Pair{
				Key:    keyA,
				Bucket: BucketInvoiceMismatch,
				KeyB:   &kb,
				A:      ga.records,
				B:      gb.records,
				TotalA: ga.total,
				TotalB: gb.total,
				Diff:   ga.total.Sub(gb.total),
			})
			delete(groupsA, keyA)
			delete(groupsB, keyB)
			break
		}
	}
	return pairs
}

func sharesDate(a, b []*models.Transaction) bool {
	dates := make(map[string]bool, len(a))
	for _, t := range a {
		dates[t.InvoiceDate.Format("2006-01-02")] = true
	}
	for _, t := range b {
		if dates[t.InvoiceDate.Format("2006-01-02")] {
			return true
		}
	}
	return false
}

// outOfPeriodPairs regroups the set-aside records by join key, pairing both
// sources under one entry where the keys coincide.
func outOfPeriodPairs(outA, outB []*models.Transaction) []*Pair {
	groupsA := groupByKey(outA)
	groupsB := groupByKey(outB)

	keys := make(map[JoinKey]bool)
	for k := range groupsA {
		keys[k] = true
	}
	for k := range groupsB {
		keys[k] = true
	}
	ordered := make([]JoinKey, 0, len(keys))
	for k := range keys {
		ordered = append(ordered, k)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].less(ordered[j]) })

	var pairs []*Pair
	for _, key := range ordered {
		p := &Pair{Key: key, Bucket: BucketOutOfPeriod}
		if g, ok := groupsA[key]; ok {
			p.A = g.records
			p.TotalA = g.total
		}
		if g, ok := groupsB[key]; ok {
			p.B = g.records
			p.TotalB = g.total
		}
		p.Diff = p.TotalA.Sub(p.TotalB)
		pairs = append(pairs, p)
	}
	return pairs
}

// orderPairs fixes the final output order: bucket presentation order first,
// then key order within each bucket.
func orderPairs(pairs []*Pair) []*Pair {
	rank := make(map[Bucket]int, 6)
	for i, b := range Buckets() {
		rank[b] = i
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if rank[pairs[i].Bucket] != rank[pairs[j].Bucket] {
			return rank[pairs[i].Bucket] < rank[pairs[j].Bucket]
		}
		return pairs[i].Key.less(pairs[j].Key)
	})
	return pairs
}
