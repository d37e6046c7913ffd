// Package profile is the validation boundary between loosely-typed client
// input and the rest of the service. Everything downstream of Normalize only
// ever sees the canonical HouseholdProfile type.
package profile
