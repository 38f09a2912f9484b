// Package core contains the canonical bridge domain entities and contracts.
// Classification, registry, dispatch, and validation packages depend on this
// package; core must not depend on provider-specific or storage adapters.
package core
