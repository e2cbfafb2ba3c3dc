// Package cost converts observed and forecast power draw into energy and
// dollar figures, priced by a flat tariff or the merged market price.
//
// Realized and projected totals are kept strictly apart: a realized summary
// only covers buckets that have already happened, and forecast buckets never
// leak into it.
package cost
