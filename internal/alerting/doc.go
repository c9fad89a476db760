// Package alerting classifies metric writes and raises alerts from them.
//
// Every recorded metric is classified against its baseline (explicit, or
// the previous active value of the same scope) and against the active
// population of its project and metric type. Two independent triggers
// raise an alert: a hard threshold breach, and a significant or major
// change from baseline. Repeats of an open alert are merged by the
// deduplication package instead of opening new alerts.
package alerting
