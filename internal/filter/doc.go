// Package filter compiles filter specifications into predicates and renders
// them for each store backend.
//
// A Spec maps field names to one of:
//   - a scalar, compiled to an equality constraint
//   - a slice or array, compiled to a membership constraint
//   - an operator map (gte, lte, gt, lt), compiled to one range constraint per key
//
// All constraints are combined with AND. There is no OR.
package filter
