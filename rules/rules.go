//go:build ruleguard

// Package gorules holds project lint rules run through gocritic's ruleguard
// checker.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// StdLogger flags the standard library logger. Packages log through
// internal/logger so output honours the configured level and format.
func StdLogger(m dsl.Matcher) {
	m.Match(`log.Printf($*_)`, `log.Println($*_)`, `log.Print($*_)`, `log.Fatalf($*_)`, `log.Fatal($*_)`).
		Where(m.File().Imports("log")).
		Report("use the package logger from internal/logger instead of the log package")
}

// BackgroundInTests prefers the test context, which is canceled when the
// test ends.
func BackgroundInTests(m dsl.Matcher) {
	m.Match(`context.Background()`, `context.TODO()`).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("use t.Context() in tests")
}

// UncheckedRollback catches a rollback whose error is dropped without the
// blank identifier making that explicit.
func UncheckedRollback(m dsl.Matcher) {
	m.Match(`$tx.Rollback()`).
		Where(m["tx"].Type.Implements("github.com/tphakala/datamover/internal/etl.Transaction")).
		Report("handle or explicitly discard the error from $tx.Rollback()")
}

// TimeSub suggests time.Since for elapsed time.
func TimeSub(m dsl.Matcher) {
	m.Match(`time.Now().Sub($t)`).
		Report("use time.Since($t)").
		Suggest("time.Since($t)")
}

// DeferInLoop reports defers inside loops, which run only when the
// function returns. Batch loops must release per iteration.
func DeferInLoop(m dsl.Matcher) {
	m.Match(`for $*_ { $*_; defer $_; $*_ }`).
		Report("defer inside a loop runs at function exit, release resources per iteration")
}
