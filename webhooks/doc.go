// Package webhooks receives and verifies provider delivery-event
// callbacks (bounces, deliveries, complaints) and folds them back into
// delivery records.
//
// Event processing is driven by a claim lifecycle:
// pending/retry_ready -> processing -> processed|dead.
// This makes retries and crash-recovery explicit and prevents transient
// failures from being deduped as permanently processed.
package webhooks
