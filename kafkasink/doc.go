// Package kafkasink publishes goTrust audit events to a Kafka topic.
//
// A [Sink] is an [goTrust.AuditSink]. It runs on the engine's audit worker,
// so a slow broker delays only the audit queue, never a request. Events are
// keyed by principal so that one principal's trail stays ordered within a
// partition.
package kafkasink
