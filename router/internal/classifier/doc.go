// Package classifier implements the threshold rule that splits transaction
// records into the "fraud" and "non-fraud" channels.
//
// Classify reads transaction.amount, parses it as a float64 and compares it
// to the configured threshold with a strict greater-than: amounts above the
// threshold are tagged transaction.status=fraud, everything else
// transaction.status=non-fraud. A missing amount is logged at WARN and an
// unparseable one at ERROR; both yield a Dropped outcome and the caller must
// discard the record.
//
// descriptor.go holds the static Transaction Threshold property and the two
// relationship descriptors exposed to the host.
package classifier
