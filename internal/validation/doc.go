// Package validation implements the CSV validation and typing engine.
//
// The engine takes raw CSV text and produces typed, validated rows plus a
// dataset-level summary. It is pure logic with no I/O: callers hand it file
// contents and consume the report.
//
// # Pipeline
//
// Raw text flows through four stages:
//
//  1. [ValidateFile] splits the text into a header and data lines, dropping
//     blank lines.
//  2. [InferColumnType] assigns one of five semantic types to every header
//     column from its name alone (email, date, number, boolean, string).
//  3. [ValidateCell] validates and coerces each raw cell against its
//     column's type, yielding a typed [Value] or a typed null plus errors.
//  4. [RowValidator.ValidateRow] aggregates cells into rows, detecting
//     duplicates by fingerprinting the coerced data, and the summary
//     builder folds all rows into a [Summary].
//
// # Ownership
//
// A [RowValidator] owns its column-type mapping and seen-row set for
// exactly one file's run. Instances must not be shared or reused across
// files; [ValidateFile] constructs a fresh one per call.
//
// # Failure model
//
// Cell-level problems (missing values, format violations) are recorded in
// the owning row's error list and never abort a run. Only empty input
// fails, with [ErrEmptyFile]. Duplicate rows are a classification, not an
// error.
package validation
