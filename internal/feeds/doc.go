// Package feeds contains the thin HTTP clients for the external data sources
// the pipeline consults: geocoding, planning activity, flood zones and live
// flood warnings, energy certificates and street-level crime.
//
// Clients do no scoring and no fallback handling; they fetch, parse and
// return typed data or an error. Degradation policy lives in the stages.
// Every call is bounded by the shared HTTP client timeout plus the caller's
// context.
package feeds
