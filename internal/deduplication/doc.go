// Package deduplication merges repeating alerts.
//
// # Overview
//
// A metric stream that stays out of bounds would otherwise open a new
// alert on every write. Before an alert is created, the engine asks the
// Deduplicator whether an open alert with the same signature already
// exists. A signature is (project, alert_type, metric_type,
// scope_identifier); "open" means open, acknowledged or investigating.
//
// Any open match is a repeat, however old its last sighting. The
// candidate is folded into the existing alert instead of being created:
//   - similar_alert_count increments
//   - last_seen_at moves to the write time
//   - the trigger, baseline and threshold values take the latest reading
//   - severity only ever rises
//
// # Escalation
//
// Every EscalateEvery repeats raise escalation_level by one (capped at
// MaxEscalationLevel) and, with BumpSeverity, raise severity one band.
// Only repeats arriving within Window of the previous sighting escalate;
// a repeat after a longer quiet gap is counted without escalating.
// The same Escalate step is used by the alerting engine's
// acknowledgement-SLA sweep.
//
// # Configuration
//
//   - Window: 24h
//   - EscalateEvery: 3
//   - MaxEscalationLevel: 3
//
// See DefaultConfig() and ConfigFromEnv() for the DEVPULSE_DEDUP_*
// overrides.
//
// # Usage
//
//	dedup, err := deduplication.New(deduplication.DefaultConfig())
//	...
//	err = store.WithMetricTx(ctx, func(tx *sqlite.MetricTx) error {
//	    decision, err := dedup.Check(ctx, tx, candidate, tx.Now())
//	    if err != nil {
//	        return err
//	    }
//	    if decision.IsDuplicate {
//	        return tx.UpdateAlert(ctx, decision.Existing)
//	    }
//	    return tx.CreateAlert(ctx, candidate)
//	})
package deduplication
