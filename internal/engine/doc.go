// Package engine implements the tag-migration rule engine.
//
// The engine is built leaf-first:
//
//   - RuleTable: normalized rules indexed by old key, immutable after construction
//   - Match: picks the single applicable rule for one key/value
//   - Rewriter: applies every matching rule to an entity's tags
//   - LabelTable and Enricher: merge external labels without overwriting
//   - Pipeline: runs Rewriter then Enricher per entity, decides the
//     directive for the sink, and owns run statistics and the action ledger
//
// Determinism:
//
// Rules are evaluated in registration order. The first candidate whose old
// value matches wins; the table never re-sorts. Actions are stamped with a
// run-scoped logical clock in input order, including when transforms run on
// a worker pool (results are resequenced before they reach the sink).
//
// Failure:
//
// Rewriting and enrichment cannot fail for a well-formed tag set. Any fault
// during a pass surfaces as a PipelineError and aborts the whole run; the
// caller discards partial output.
package engine
