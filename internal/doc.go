// Package internal documents the club website server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, rendering, and routing
// - datepicker: the date/range picker state machine behind the admin forms
// - domain: business logic and domain models
// - storage: PostgreSQL repositories and blob storage for uploads
// - cms, cache, calendar: headless CMS client, its cache, and the month/ICS views
// - jobs: background email and maintenance workers
// - auth, audit, config, metrics, telemetry: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
