// Package ir provides the domain types shared by every other package:
// migration rules, tag sets, map entities, label rows and audit actions.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Rule recipes are a closed set of variants (see Recipe); dispatch on them
//     with a type switch, never on a kind string.
//   - TagSet preserves insertion order and is never shared between entities.
//   - Action details are machine-parseable (see ParseDetail) so the ledger can
//     be replayed without re-running the matcher.
//   - All JSON tags use snake_case.
package ir
