// Package harness runs migration conformance scenarios.
//
// A scenario is a YAML file holding a rule set, a label table, a short
// entity stream and the expected outcome:
//
//	name: ford
//	description: deprecated highway=ford becomes ford=yes
//	rules:
//	  - {id: "101", kind: KeyValueToFixedFixed, old_key: highway, old_value: ford, new_key_1: ford, new_value_1: "yes"}
//	entities:
//	  - {type: node, id: 1, tags: {highway: ford}}
//	expect:
//	  - {type: node, id: 1, directive: replace, tags: {ford: "yes"}}
//	assertions:
//	  - {type: action_count, kind: update_deprecated_tag, count: 1}
//
// Run executes the real pipeline over the stream, persists the run to an
// in-memory store and reads the ledger back, so a scenario exercises the
// rule loader, the transform, the driver and the store together. Run ids
// come from a fixed generator, which keeps ledger snapshots byte-identical
// across executions and lets RunWithGolden compare them to files under
// testdata/golden.
//
// Tag mappings are decoded in document order, so tags: {b: "1", a: "2"}
// is the tag set [b=1 a=2].
package harness
