// Package users models the actors that are authorized and their personal
// permission overrides.
//
// Overrides narrow what a user's role grants; they can never widen it. The
// stored document shape for each resource is a boolean, an array of action
// names or an object of named capabilities, decoded into the Grant variants
// BooleanGrant, ActionSetGrant and NamedCapabilityGrant. Any other shape is
// kept as an UnrecognizedGrant and denies.
package users
